package tracing

import (
	"testing"

	"github.com/combust-labs/gitwebhook/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTracerStillTraces(t *testing.T) {
	tracer, closer, err := GetTracer(hclog.NewNullLogger(), configs.NewTracingConfig("gitwebhook-test"))
	require.NoError(t, err)
	defer closer()

	span := tracer.StartSpan("webhook")
	assert.NotNil(t, span.Context())
	span.Finish()
}

func TestEnabledTracerWithLogging(t *testing.T) {
	cfg := configs.NewTracingConfig("gitwebhook-test")
	cfg.Enable = true
	cfg.LogEnable = true
	cfg.HostPort = "127.0.0.1:6831"

	tracer, closer, err := GetTracer(hclog.NewNullLogger(), cfg)
	require.NoError(t, err)
	tracer.StartSpan("webhook").Finish()
	closer()
}
