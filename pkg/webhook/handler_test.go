package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/combust-labs/gitwebhook/pkg/flock"
	"github.com/combust-labs/gitwebhook/pkg/gitops"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUpdater struct {
	sync.Mutex
	updated []string
	err     error
	block   chan struct{}
}

func (u *testUpdater) Update(ctx context.Context, repoPath string) error {
	if u.block != nil {
		<-u.block
	}
	u.Lock()
	defer u.Unlock()
	u.updated = append(u.updated, repoPath)
	return u.err
}

func (u *testUpdater) Updated() []string {
	u.Lock()
	defer u.Unlock()
	return append([]string{}, u.updated...)
}

type testRestarter struct {
	sync.Mutex
	signals int
}

func (r *testRestarter) Signal() {
	r.Lock()
	defer r.Unlock()
	r.signals = r.signals + 1
}

func (r *testRestarter) Signals() int {
	r.Lock()
	defer r.Unlock()
	return r.signals
}

type testEnv struct {
	root      string
	config    *HandlerConfig
	updater   *testUpdater
	restarter *testRestarter
	registry  *prometheus.Registry
	router    http.Handler
}

func newTestEnv(t *testing.T, token string) *testEnv {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "site", ".git"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "group", "app", ".git"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0644))

	env := &testEnv{
		root: root,
		config: &HandlerConfig{
			RepositoryRoot: root,
			SecurityToken:  token,
			LockTimeout:    200 * time.Millisecond,
			MetricsEnable:  true,
		},
		updater:   &testUpdater{},
		restarter: &testRestarter{},
		registry:  prometheus.NewRegistry(),
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "webhook-test", Level: hclog.Debug})
	router, err := NewRouter(env.config, &Dependencies{
		Updater:   env.updater,
		Locks:     mustLocks(t),
		Restarter: env.restarter,
		Registry:  env.registry,
	}, logger)
	require.NoError(t, err)
	env.router = router
	return env
}

func mustLocks(t *testing.T) flock.Provider {
	locks, err := flock.NewProvider(t.TempDir())
	require.NoError(t, err)
	return locks
}

func (e *testEnv) do(method, path, token string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(SecurityTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	response := Response{}
	json.Unmarshal(rec.Body.Bytes(), &response)
	return rec, response
}

func TestWebhookUpdatesRepository(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	rec, response := env.do(http.MethodPost, "/webhook/site", "s3cret")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, Response{Status: "success", Message: "Repository updated"}, response)
	assert.Equal(t, []string{filepath.Join(env.root, "site")}, env.updater.Updated())
	assert.Equal(t, 1, env.restarter.Signals())
}

func TestWebhookNestedPath(t *testing.T) {
	env := newTestEnv(t, "")

	rec, _ := env.do(http.MethodPost, "/webhook/group/app", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{filepath.Join(env.root, "group", "app")}, env.updater.Updated())
}

func TestWebhookNoTokenConfiguredAcceptsAnyRequest(t *testing.T) {
	env := newTestEnv(t, "")

	rec, _ := env.do(http.MethodPost, "/webhook/site", "whatever")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookUnauthorized(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	for _, token := range []string{"", "wrong"} {
		rec, response := env.do(http.MethodPost, "/webhook/site", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, Response{Status: "error", Message: "Unauthorized"}, response)
	}
	assert.Empty(t, env.updater.Updated())
	assert.Equal(t, 0, env.restarter.Signals())
}

func TestWebhookTokenCheckedBeforePath(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	rec, _ := env.do(http.MethodPost, "/webhook/bad%20path", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookInvalidPath(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{
		"/webhook/",
		"/webhook/bad%20path",
		"/webhook/site;rm",
		"/webhook/../etc",
		"/webhook/site/../../etc",
		"/webhook/..",
	} {
		rec, response := env.do(http.MethodPost, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, Response{Status: "error", Message: "Invalid repository path"}, response, path)
	}
	assert.Empty(t, env.updater.Updated())
}

func TestWebhookRepositoryNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{"/webhook/missing", "/webhook/file.txt"} {
		rec, response := env.do(http.MethodPost, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, Response{Status: "error", Message: "Repository not found"}, response, path)
	}
	assert.Empty(t, env.updater.Updated())
}

func TestWebhookGitFailure(t *testing.T) {
	env := newTestEnv(t, "")
	env.updater.err = &gitops.CommandError{Op: "pull", Stderr: "fatal: couldn't find remote ref"}

	rec, response := env.do(http.MethodPost, "/webhook/site", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, Response{Status: "error", Message: "Git operation failed: fatal: couldn't find remote ref"}, response)
	assert.Equal(t, 0, env.restarter.Signals())
}

func TestWebhookGenericFailure(t *testing.T) {
	env := newTestEnv(t, "")
	env.updater.err = fmt.Errorf("boom")

	rec, response := env.do(http.MethodPost, "/webhook/site", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Git operation failed: boom", response.Message)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, "")

	rec, response := env.do(http.MethodGet, "/webhook/site", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "error", response.Status)
}

func TestWebhookUnknownRoute(t *testing.T) {
	env := newTestEnv(t, "")

	rec, _ := env.do(http.MethodPost, "/hooks/site", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookConcurrentUpdateOfSameRepository(t *testing.T) {
	env := newTestEnv(t, "")
	env.updater.block = make(chan struct{})

	first := make(chan int, 1)
	go func() {
		rec, _ := env.do(http.MethodPost, "/webhook/site", "")
		first <- rec.Code
	}()

	// give the first request time to take the lock
	<-time.After(100 * time.Millisecond)
	rec, response := env.do(http.MethodPost, "/webhook/site", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Repository update in progress", response.Message)

	close(env.updater.block)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestWebhookMetrics(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	env.do(http.MethodPost, "/webhook/site", "s3cret")
	env.do(http.MethodPost, "/webhook/site", "wrong")
	env.do(http.MethodPost, "/webhook/site", "wrong")

	expected := `
# HELP gitwebhook_requests_total Webhook requests by response status code.
# TYPE gitwebhook_requests_total counter
gitwebhook_requests_total{code="200"} 1
gitwebhook_requests_total{code="401"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(env.registry, strings.NewReader(expected), "gitwebhook_requests_total"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gitwebhook_update_duration_seconds")
}

type failingWriter struct {
	header http.Header
	code   int
}

func (w *failingWriter) Header() http.Header {
	return w.header
}

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("connection reset by peer")
}

func (w *failingWriter) WriteHeader(code int) {
	w.code = code
}

func TestWriteResponseLogsBodyWriteFailure(t *testing.T) {
	output := &strings.Builder{}
	logger := hclog.New(&hclog.LoggerOptions{Name: "webhook-test", Level: hclog.Debug, Output: output})
	w := &failingWriter{header: http.Header{}}

	writeResponse(w, logger, success("Repository updated"))

	assert.Equal(t, http.StatusOK, w.code)
	assert.Equal(t, "application/json", w.header.Get("Content-Type"))
	assert.Contains(t, output.String(), "Failed writing response body")
	assert.Contains(t, output.String(), "connection reset by peer")
}
