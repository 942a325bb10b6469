package gitops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/combust-labs/gitwebhook/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Updater brings a working copy up to date with its remote.
// An update discards local changes to tracked files, removes untracked
// files and directories and pulls from the configured remote.
type Updater interface {
	Update(ctx context.Context, repoPath string) error
}

// CommandError is returned when a Git operation fails.
type CommandError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed: %s", e.Op, e.Stderr)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

func newCommandError(op string, err error, stderr string) *CommandError {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" && err != nil {
		stderr = err.Error()
	}
	return &CommandError{Op: op, Stderr: stderr, Err: err}
}

// NewUpdater returns the updater for the configured backend.
func NewUpdater(config *configs.GitConfig, logger hclog.Logger) (Updater, error) {
	switch config.Backend {
	case configs.GitBackendCLI:
		return NewCLIUpdater(config, logger)
	case configs.GitBackendGoGit, "":
		return NewGoGitUpdater(config, logger)
	default:
		return nil, fmt.Errorf("unsupported git backend '%s'", config.Backend)
	}
}

// IsRepository returns true if the path is a Git working copy root.
// Both a .git directory and a .git file, as used by worktrees and submodules, qualify.
func IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// Discover returns sorted, slash separated paths, relative to parent, of all working copies under parent.
// Discovery does not descend into a found working copy.
func Discover(parent string) ([]string, error) {
	result := []string{}
	err := filepath.Walk(parent, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == parent {
				return err
			}
			// unreadable subtrees are skipped
			return filepath.SkipDir
		}
		if !info.IsDir() || path == parent {
			return nil
		}
		if info.Name() == ".git" {
			return filepath.SkipDir
		}
		if IsRepository(path) {
			rel, relErr := filepath.Rel(parent, path)
			if relErr != nil {
				return relErr
			}
			result = append(result, filepath.ToSlash(rel))
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed discovering repositories in '%s'", parent)
	}
	sort.Strings(result)
	return result, nil
}
