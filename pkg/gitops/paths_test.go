package gitops

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRepositoryPath(t *testing.T) {
	valid := []string{"site", "group/app", "my-site_v2", "a.b", `win\path`}
	invalid := []string{"", "with space", "semi;colon", "ünïcode", "q?x"}
	for _, p := range valid {
		assert.True(t, ValidRepositoryPath(p), p)
	}
	for _, p := range invalid {
		assert.False(t, ValidRepositoryPath(p), p)
	}
}

func TestResolveRepositoryPath(t *testing.T) {
	root := "/srv/sites"

	resolved, err := ResolveRepositoryPath(root, "group/app/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "group", "app"), resolved)

	resolved, err = ResolveRepositoryPath(root, "site/../other")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "other"), resolved)

	for _, escaping := range []string{"..", "../etc", "site/../../etc", "with space"} {
		_, err := ResolveRepositoryPath(root, escaping)
		require.Error(t, err, escaping)
		_, ok := err.(*InvalidPathError)
		assert.True(t, ok, escaping)
	}
}
