package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

var lockEnvBindings = map[string]string{
	"WEBHOOK_LOCK_DIR":     "lock-dir",
	"WEBHOOK_LOCK_TIMEOUT": "lock-timeout",
}

// LockConfig contains the repository lock settings.
type LockConfig struct {
	flagBase

	LockDir     string        `mapstructure:"WEBHOOK_LOCK_DIR"`
	LockTimeout time.Duration `mapstructure:"WEBHOOK_LOCK_TIMEOUT"`
}

// NewLockConfig returns a new instance of the configuration.
func NewLockConfig() *LockConfig {
	return &LockConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *LockConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.LockDir, "lock-dir", filepath.Join(os.TempDir(), "gitwebhook"), "Directory for repository lock files")
		c.flagSet.DurationVar(&c.LockTimeout, "lock-timeout", 30*time.Second, "How long to wait for a concurrent update of the same repository")
	}
	return c.flagSet
}

// UpdateFromEnvironment updates the configuration from the environment.
func (c *LockConfig) UpdateFromEnvironment(env map[string]string) error {
	return decodeEnvironment(c, &c.flagBase, lockEnvBindings, env)
}

// Validate validates the correctness of the configuration.
func (c *LockConfig) Validate() error {
	if c.LockDir == "" || c.LockDir == "/" {
		return fmt.Errorf("--lock-dir cannot be empty or /")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("--lock-timeout must be positive")
	}
	return nil
}
