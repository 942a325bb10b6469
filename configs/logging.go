package configs

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

// LogConfig represents logging configuration.
type LogConfig struct {
	flagBase

	LogLevel      string
	LogColor      bool
	LogForceColor bool
	LogAsJSON     bool
}

// NewLogConfig returns a new instance of the configuration.
func NewLogConfig() *LogConfig {
	return &LogConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *LogConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.LogLevel, "log-level", "info", "Log level")
		c.flagSet.BoolVar(&c.LogAsJSON, "log-as-json", false, "Log as JSON")
		c.flagSet.BoolVar(&c.LogColor, "log-color", false, "Log in color")
		c.flagSet.BoolVar(&c.LogForceColor, "log-force-color", false, "Force colored log output")
	}
	return c.flagSet
}

// NewLogger returns a new configured logger.
func (c *LogConfig) NewLogger(name string) hclog.Logger {
	return NewLogger(name, c)
}

// NewLogger returns a new configured logger.
func NewLogger(name string, logConfig *LogConfig) hclog.Logger {
	loggerColorOption := hclog.ColorOff
	if logConfig.LogColor {
		loggerColorOption = hclog.AutoColor
	}
	if logConfig.LogForceColor {
		loggerColorOption = hclog.ForceColor
	}

	level := hclog.LevelFromString(logConfig.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Color:      loggerColorOption,
		JSONFormat: logConfig.LogAsJSON,
	})
}
