package configs

import (
	"github.com/spf13/pflag"
)

var tracingEnvBindings = map[string]string{
	"WEBHOOK_TRACING_ENABLE":              "tracing-enable",
	"WEBHOOK_TRACING_COLLECTOR_HOST_PORT": "tracing-collector-host-port",
	"WEBHOOK_TRACING_LOG_ENABLE":          "tracing-log-enable",
}

// TracingConfig is the tracing configuration.
type TracingConfig struct {
	flagBase

	ApplicationName string `mapstructure:"-"`
	Enable          bool   `mapstructure:"WEBHOOK_TRACING_ENABLE"`
	HostPort        string `mapstructure:"WEBHOOK_TRACING_COLLECTOR_HOST_PORT"`
	LogEnable       bool   `mapstructure:"WEBHOOK_TRACING_LOG_ENABLE"`
}

// NewTracingConfig returns a new instance of the configuration.
func NewTracingConfig(appName string) *TracingConfig {
	return &TracingConfig{
		ApplicationName: appName,
	}
}

// UpdateFromEnvironment updates the configuration from the environment.
func (c *TracingConfig) UpdateFromEnvironment(env map[string]string) error {
	return decodeEnvironment(c, &c.flagBase, tracingEnvBindings, env)
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *TracingConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.BoolVar(&c.Enable, "tracing-enable", false, "If set, enables tracing")
		c.flagSet.StringVar(&c.HostPort, "tracing-collector-host-port", "127.0.0.1:6831", "Host port of the collector")
		c.flagSet.BoolVar(&c.LogEnable, "tracing-log-enable", false, "If set, enables tracer logging")
	}
	return c.flagSet
}
