package configs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var repositoriesEnvBindings = map[string]string{
	"GIT_REPO_DIR": "git-repo-dir",
}

// RepositoriesConfig points at the parent directory of the working copies.
type RepositoriesConfig struct {
	flagBase

	GitRepoDir string `mapstructure:"GIT_REPO_DIR"`
}

// NewRepositoriesConfig returns a new instance of the configuration.
func NewRepositoriesConfig() *RepositoriesConfig {
	return &RepositoriesConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *RepositoriesConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.GitRepoDir, "git-repo-dir", "", "Parent directory for Git repositories, defaults to $GIT_REPO_DIR")
	}
	return c.flagSet
}

// UpdateFromEnvironment updates the configuration from the environment.
func (c *RepositoriesConfig) UpdateFromEnvironment(env map[string]string) error {
	return decodeEnvironment(c, &c.flagBase, repositoriesEnvBindings, env)
}

// RepositoryRoot returns the absolute, cleaned parent directory for Git repositories.
func (c *RepositoriesConfig) RepositoryRoot() (string, error) {
	if c.GitRepoDir == "" {
		return "", fmt.Errorf("--git-repo-dir or GIT_REPO_DIR is required")
	}
	abs, err := filepath.Abs(c.GitRepoDir)
	if err != nil {
		return "", errors.Wrapf(err, "failed resolving absolute path of '%s'", c.GitRepoDir)
	}
	return filepath.Clean(abs), nil
}

// Validate checks that the repository root is set and is an existing directory.
func (c *RepositoriesConfig) Validate() error {
	root, err := c.RepositoryRoot()
	if err != nil {
		return err
	}
	stat, statErr := os.Stat(root)
	if statErr != nil {
		return errors.Wrapf(statErr, "--git-repo-dir '%s' is not accessible", root)
	}
	if !stat.IsDir() {
		return fmt.Errorf("--git-repo-dir '%s' is not a directory", root)
	}
	return nil
}
