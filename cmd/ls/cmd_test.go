package ls

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRepositoriesOnePerLine(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"site/.git", "group/app/.git", "plain/dir"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}

	out := &bytes.Buffer{}
	cobraCommand := &cobra.Command{}
	cobraCommand.SetOut(out)

	require.NoError(t, printRepositories(cobraCommand, root))
	assert.Equal(t, "group/app\nsite\n", out.String())
}

func TestPrintRepositoriesMissingRoot(t *testing.T) {
	out := &bytes.Buffer{}
	cobraCommand := &cobra.Command{}
	cobraCommand.SetOut(out)

	assert.Error(t, printRepositories(cobraCommand, filepath.Join(t.TempDir(), "missing")))
	assert.Empty(t, out.String())
}
