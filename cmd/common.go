package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/combust-labs/gitwebhook/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ValidateConfigs validates every configuration and returns all problems found.
func ValidateConfigs(validating ...configs.ValidatingConfig) error {
	var result *multierror.Error
	for _, cfg := range validating {
		if err := cfg.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// InstallSignalHandlers returns a context cancelled on SIGINT or SIGTERM.
func InstallSignalHandlers(parent context.Context, logger hclog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case s := <-c:
			logger.Info("Caught signal, requesting clean shutdown", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
