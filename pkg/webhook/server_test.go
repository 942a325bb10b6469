package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/combust-labs/gitwebhook/pkg/restart"
	"github.com/combust-labs/gitwebhook/pkg/utilstest"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	logger := hclog.Default()
	logger.SetLevel(hclog.Debug)

	cfg := &ServerConfig{
		BindHostPort:    "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}
	server := NewServer(cfg, env.router, logger.Named("webhook-server"))
	server.Start()

	select {
	case startErr := <-server.FailedNotify():
		t.Fatal("expected the server to start but it failed", startErr)
	case <-server.ReadyNotify():
		t.Log("server started and serving on", server.Addr())
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/webhook/site", server.Addr()), nil)
	require.NoError(t, err)
	req.Header.Set(SecurityTokenHeader, "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	response := Response{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", response.Status)

	server.Stop()
	select {
	case <-server.StoppedNotify():
	case <-time.After(5 * time.Second):
		t.Fatal("expected the server to stop")
	}
}

func TestServerFailsOnBusyAddress(t *testing.T) {
	env := newTestEnv(t, "")
	logger := hclog.NewNullLogger()

	first := NewServer(&ServerConfig{BindHostPort: "127.0.0.1:0", ShutdownTimeout: time.Second}, env.router, logger)
	first.Start()
	<-first.ReadyNotify()
	defer first.Stop()

	second := NewServer(&ServerConfig{BindHostPort: first.Addr(), ShutdownTimeout: time.Second}, env.router, logger)
	second.Start()
	select {
	case err := <-second.FailedNotify():
		assert.Error(t, err)
	case <-second.ReadyNotify():
		t.Fatal("expected the second server to fail")
	}
}

func TestWebhookTriggersRestartMonitor(t *testing.T) {
	env := newTestEnv(t, "")
	trigger := filepath.Join(t.TempDir(), "trigger")
	monitor := restart.NewMonitor(trigger, 10*time.Millisecond, hclog.NewNullLogger())

	router, err := NewRouter(env.config, &Dependencies{
		Updater:   env.updater,
		Locks:     mustLocks(t),
		Restarter: monitor,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	env.router = router

	rec, _ := env.do(http.MethodPost, "/webhook/site", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, monitor.Pending())

	monitor.Tick()
	utilstest.MustEventuallyWithDefaults(t, func() error {
		if monitor.Triggered() != 1 {
			return fmt.Errorf("restart not triggered")
		}
		return nil
	})
	assert.FileExists(t, trigger)
}
