package configs

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
)

// DefaultRestartTriggerFile is the file touched when a restart is signalled.
const DefaultRestartTriggerFile = "/tmp/webhook_restart_trigger"

var serverEnvBindings = map[string]string{
	"WEBHOOK_BIND_HOST":             "bind-host",
	"WEBHOOK_PORT":                  "port",
	"WEBHOOK_SECURITY_TOKEN":        "security-token",
	"WEBHOOK_DEBUG":                 "debug",
	"WEBHOOK_RESTART_TRIGGER_FILE":  "restart-trigger-file",
	"WEBHOOK_RESTART_POLL_INTERVAL": "restart-poll-interval",
	"WEBHOOK_METRICS_ENABLE":        "metrics-enable",
}

// ServerConfig contains the webhook server settings.
type ServerConfig struct {
	flagBase

	BindHost            string        `mapstructure:"WEBHOOK_BIND_HOST"`
	Port                int           `mapstructure:"WEBHOOK_PORT"`
	SecurityToken       string        `mapstructure:"WEBHOOK_SECURITY_TOKEN"`
	Debug               bool          `mapstructure:"WEBHOOK_DEBUG"`
	RestartTriggerFile  string        `mapstructure:"WEBHOOK_RESTART_TRIGGER_FILE"`
	RestartPollInterval time.Duration `mapstructure:"WEBHOOK_RESTART_POLL_INTERVAL"`
	ShutdownTimeout     time.Duration `mapstructure:"-"`
	MetricsEnable       bool          `mapstructure:"WEBHOOK_METRICS_ENABLE"`
}

// NewServerConfig returns a new instance of the configuration.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *ServerConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.BindHost, "bind-host", "0.0.0.0", "Host to bind the webhook server on")
		c.flagSet.IntVar(&c.Port, "port", 5123, "Port for the webhook server")
		c.flagSet.StringVar(&c.SecurityToken, "security-token", "", "Security token for webhook authentication, expected in the X-Security-Token header")
		c.flagSet.BoolVar(&c.Debug, "debug", false, "Enable debug mode (Warning: may expose sensitive information)")
		c.flagSet.StringVar(&c.RestartTriggerFile, "restart-trigger-file", DefaultRestartTriggerFile, "File touched when a repository update signals a restart")
		c.flagSet.DurationVar(&c.RestartPollInterval, "restart-poll-interval", time.Second, "How often the restart monitor checks for the restart signal")
		c.flagSet.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "How long to wait for in-flight requests on shutdown")
		c.flagSet.BoolVar(&c.MetricsEnable, "metrics-enable", false, "If set, exposes Prometheus metrics under /metrics")
	}
	return c.flagSet
}

// UpdateFromEnvironment updates the configuration from the environment.
func (c *ServerConfig) UpdateFromEnvironment(env map[string]string) error {
	return decodeEnvironment(c, &c.flagBase, serverEnvBindings, env)
}

// BindHostPort returns the address the server listens on.
func (c *ServerConfig) BindHostPort() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// Validate validates the correctness of the configuration.
func (c *ServerConfig) Validate() error {
	var result *multierror.Error
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("--port must be in range 1-65535, got %d", c.Port))
	}
	if c.RestartTriggerFile == "" {
		result = multierror.Append(result, fmt.Errorf("--restart-trigger-file is required"))
	}
	if c.RestartPollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("--restart-poll-interval must be positive"))
	}
	if c.ShutdownTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("--shutdown-timeout must not be negative"))
	}
	return result.ErrorOrNil()
}
