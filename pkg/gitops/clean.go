package gitops

import (
	"github.com/go-git/go-billy/v5"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/pkg/errors"
)

// cleanWorktree removes untracked files and directories the way `git clean -fd` does.
// Ignored files and directories, at any depth, are kept. Nested working copies are kept.
func cleanWorktree(worktree *git.Worktree) error {
	status, err := worktree.Status()
	if err != nil {
		return errors.Wrap(err, "failed reading worktree status")
	}
	patterns, err := gitignore.ReadPatterns(worktree.Filesystem, nil)
	if err != nil {
		return errors.Wrap(err, "failed reading ignore patterns")
	}
	patterns = append(patterns, worktree.Excludes...)
	c := &cleaner{
		fs:      worktree.Filesystem,
		status:  status,
		ignored: gitignore.NewMatcher(patterns),
	}
	return c.cleanDir(nil)
}

type cleaner struct {
	fs      billy.Filesystem
	status  git.Status
	ignored gitignore.Matcher
}

func (c *cleaner) cleanDir(dir []string) error {
	entries, err := c.fs.ReadDir(c.fs.Join(dir...))
	if err != nil {
		return errors.Wrapf(err, "failed listing '%s'", c.fs.Join(dir...))
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		parts := append(append([]string{}, dir...), entry.Name())
		path := c.fs.Join(parts...)

		if entry.IsDir() {
			if c.ignored.Match(parts, true) {
				continue
			}
			if _, err := c.fs.Lstat(c.fs.Join(path, git.GitDirName)); err == nil {
				continue
			}
			if err := c.cleanDir(parts); err != nil {
				return err
			}
			if err := c.removeIfEmpty(path); err != nil {
				return err
			}
			continue
		}

		if c.ignored.Match(parts, false) || !c.status.IsUntracked(path) {
			continue
		}
		if err := c.fs.Remove(path); err != nil {
			return errors.Wrapf(err, "failed removing '%s'", path)
		}
	}
	return nil
}

// removeIfEmpty removes a directory left empty. Git does not track directories,
// so an empty directory is always untracked.
func (c *cleaner) removeIfEmpty(path string) error {
	entries, err := c.fs.ReadDir(path)
	if err != nil {
		return errors.Wrapf(err, "failed listing '%s'", path)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := c.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "failed removing '%s'", path)
	}
	return nil
}
