package configs

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
)

const (
	// GitBackendGoGit updates repositories in process, no git executable required.
	GitBackendGoGit = "go-git"
	// GitBackendCLI updates repositories with the git executable found on PATH.
	GitBackendCLI = "cli"
)

var gitEnvBindings = map[string]string{
	"WEBHOOK_GIT_BACKEND":          "git-backend",
	"WEBHOOK_GIT_REMOTE":           "git-remote",
	"WEBHOOK_GIT_SSH_KEY":          "git-ssh-key",
	"WEBHOOK_GIT_SSH_KEY_PASSWORD": "git-ssh-key-password",
	"WEBHOOK_GIT_SSH_USER":         "git-ssh-user",
	"WEBHOOK_GIT_SSH_KNOWN_HOSTS":  "git-ssh-known-hosts",
	"WEBHOOK_GIT_HTTP_USERNAME":    "git-http-username",
	"WEBHOOK_GIT_HTTP_PASSWORD":    "git-http-password",
	"WEBHOOK_GIT_TIMEOUT":          "git-timeout",
}

// GitConfig contains the repository update settings.
type GitConfig struct {
	flagBase

	Backend        string        `mapstructure:"WEBHOOK_GIT_BACKEND"`
	Remote         string        `mapstructure:"WEBHOOK_GIT_REMOTE"`
	SSHKey         string        `mapstructure:"WEBHOOK_GIT_SSH_KEY"`
	SSHKeyPassword string        `mapstructure:"WEBHOOK_GIT_SSH_KEY_PASSWORD"`
	SSHUser        string        `mapstructure:"WEBHOOK_GIT_SSH_USER"`
	SSHKnownHosts  string        `mapstructure:"WEBHOOK_GIT_SSH_KNOWN_HOSTS"`
	HTTPUsername   string        `mapstructure:"WEBHOOK_GIT_HTTP_USERNAME"`
	HTTPPassword   string        `mapstructure:"WEBHOOK_GIT_HTTP_PASSWORD"`
	Timeout        time.Duration `mapstructure:"WEBHOOK_GIT_TIMEOUT"`
}

// NewGitConfig returns a new instance of the configuration.
func NewGitConfig() *GitConfig {
	return &GitConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *GitConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Backend, "git-backend", GitBackendGoGit, "Repository update backend: go-git or cli")
		c.flagSet.StringVar(&c.Remote, "git-remote", "origin", "Name of the remote to pull from")
		c.flagSet.StringVar(&c.SSHKey, "git-ssh-key", "", "Path to the SSH private key used to pull over SSH")
		c.flagSet.StringVar(&c.SSHKeyPassword, "git-ssh-key-password", "", "Password of the SSH private key")
		c.flagSet.StringVar(&c.SSHUser, "git-ssh-user", "git", "SSH user used to pull over SSH")
		c.flagSet.StringVar(&c.SSHKnownHosts, "git-ssh-known-hosts", "", "Path to the known_hosts file; if empty, host keys are not verified")
		c.flagSet.StringVar(&c.HTTPUsername, "git-http-username", "", "HTTP basic auth user name used to pull over HTTP(S)")
		c.flagSet.StringVar(&c.HTTPPassword, "git-http-password", "", "HTTP basic auth password or token used to pull over HTTP(S)")
		c.flagSet.DurationVar(&c.Timeout, "git-timeout", 2*time.Minute, "Maximum duration of a single repository update")
	}
	return c.flagSet
}

// UpdateFromEnvironment updates the configuration from the environment.
func (c *GitConfig) UpdateFromEnvironment(env map[string]string) error {
	return decodeEnvironment(c, &c.flagBase, gitEnvBindings, env)
}

// Validate validates the correctness of the configuration.
func (c *GitConfig) Validate() error {
	var result *multierror.Error
	switch c.Backend {
	case GitBackendGoGit, GitBackendCLI:
	default:
		result = multierror.Append(result, fmt.Errorf("--git-backend must be one of %s, %s; got '%s'", GitBackendGoGit, GitBackendCLI, c.Backend))
	}
	if c.Remote == "" {
		result = multierror.Append(result, fmt.Errorf("--git-remote is required"))
	}
	if c.SSHKey != "" && (c.HTTPUsername != "" || c.HTTPPassword != "") {
		result = multierror.Append(result, fmt.Errorf("--git-ssh-key and --git-http-* credentials are mutually exclusive"))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("--git-timeout must be positive"))
	}
	return result.ErrorOrNil()
}
