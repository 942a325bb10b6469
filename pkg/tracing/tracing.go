package tracing

import (
	"github.com/combust-labs/gitwebhook/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
)

// GetTracer returns a Jaeger tracer reporting to the configured collector,
// or a tracer backed by the null reporter, if tracing is disabled.
// The returned function flushes and closes the tracer.
func GetTracer(logger hclog.Logger, config *configs.TracingConfig) (opentracing.Tracer, func(), error) {
	reporter, err := newReporter(logger, config)
	if err != nil {
		return nil, func() {}, err
	}
	tracer, closer := jaeger.NewTracer(config.ApplicationName,
		jaeger.NewConstSampler(true),
		reporter,
	)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			logger.Warn("failed closing tracer", "reason", err)
		}
	}, nil
}

func newReporter(logger hclog.Logger, config *configs.TracingConfig) (jaeger.Reporter, error) {
	if !config.Enable {
		return jaeger.NewNullReporter(), nil
	}

	transport, err := jaeger.NewUDPTransport(config.HostPort, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed constructing jaeger UDP transport")
	}

	if !config.LogEnable {
		return jaeger.NewRemoteReporter(transport), nil
	}

	logAdapter := &adapter{log: logger.Named("jaeger")}
	return jaeger.NewCompositeReporter(
		jaeger.NewLoggingReporter(logAdapter),
		jaeger.NewRemoteReporter(transport, jaeger.ReporterOptions.Logger(logAdapter)),
	), nil
}
