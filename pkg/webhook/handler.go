package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/combust-labs/gitwebhook/pkg/flock"
	"github.com/combust-labs/gitwebhook/pkg/gitops"
	"github.com/combust-labs/gitwebhook/pkg/restart"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// SecurityTokenHeader carries the shared webhook token.
	SecurityTokenHeader = "X-Security-Token"
	// RequestIDHeader carries the generated request id in responses.
	RequestIDHeader = "X-Request-Id"

	statusSuccess = "success"
	statusError   = "error"
)

// Response is the JSON body of every webhook response.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlerConfig contains the request handling settings.
type HandlerConfig struct {
	// Absolute parent directory of the working copies.
	RepositoryRoot string
	// If not empty, requests must carry this token.
	SecurityToken string
	// Logs received tokens when set.
	Debug bool
	// How long to wait for a concurrent update of the same repository.
	LockTimeout time.Duration
	// Exposes /metrics when set.
	MetricsEnable bool
}

// Dependencies groups the collaborators of the handler.
type Dependencies struct {
	Updater   gitops.Updater
	Locks     flock.Provider
	Restarter restart.Signaler
	Tracer    opentracing.Tracer
	// Registry receives the webhook metrics. If nil, a private registry is created.
	Registry *prometheus.Registry
}

type outcome struct {
	code     int
	response Response
}

func success(message string) outcome {
	return outcome{code: http.StatusOK, response: Response{Status: statusSuccess, Message: message}}
}

func failure(code int, message string) outcome {
	return outcome{code: code, response: Response{Status: statusError, Message: message}}
}

type handler struct {
	config  *HandlerConfig
	deps    *Dependencies
	logger  hclog.Logger
	metrics *metrics
}

// NewRouter returns the webhook HTTP handler.
func NewRouter(config *HandlerConfig, deps *Dependencies, logger hclog.Logger) (http.Handler, error) {
	if deps.Tracer == nil {
		deps.Tracer = opentracing.NoopTracer{}
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(deps.Registry)
	if err != nil {
		return nil, err
	}

	h := &handler{
		config:  config,
		deps:    deps,
		logger:  logger,
		metrics: m,
	}

	router := mux.NewRouter()
	// path validation is done by the handler, do not let the router redirect
	router.SkipClean(true)
	router.Handle("/webhook/{path:.*}", h).Methods(http.MethodPost)
	if config.MetricsEnable {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, logger, failure(http.StatusNotFound, "Not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, logger, failure(http.StatusMethodNotAllowed, "Method not allowed"))
	})
	return router, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.Must(uuid.NewV4()).String()
	reqLogger := h.logger.With("request-id", requestID)

	spanOptions := []opentracing.StartSpanOption{}
	if spanCtx, err := h.deps.Tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header)); err == nil {
		spanOptions = append(spanOptions, ext.RPCServerOption(spanCtx))
	}
	span := h.deps.Tracer.StartSpan("webhook", spanOptions...)
	defer span.Finish()
	span.SetTag("request-id", requestID)
	ext.HTTPMethod.Set(span, r.Method)
	ext.HTTPUrl.Set(span, r.URL.Path)

	result := h.handle(opentracing.ContextWithSpan(r.Context(), span), reqLogger, r)

	ext.HTTPStatusCode.Set(span, uint16(result.code))
	if result.code >= http.StatusInternalServerError {
		ext.Error.Set(span, true)
	}
	h.metrics.requests.WithLabelValues(strconv.Itoa(result.code)).Inc()

	w.Header().Set(RequestIDHeader, requestID)
	writeResponse(w, reqLogger, result)
}

func (h *handler) handle(ctx context.Context, logger hclog.Logger, r *http.Request) outcome {
	token := r.Header.Get(SecurityTokenHeader)
	if !h.validSecurityToken(logger, token) {
		logger.Warn("Unauthorized access attempt", "remote-addr", r.RemoteAddr)
		return failure(http.StatusUnauthorized, "Unauthorized")
	}

	subpath := mux.Vars(r)["path"]
	repoPath, err := gitops.ResolveRepositoryPath(h.config.RepositoryRoot, subpath)
	if err != nil {
		logger.Error("Invalid repository path", "path", subpath)
		return failure(http.StatusBadRequest, "Invalid repository path")
	}

	logger = logger.With("repo", repoPath)
	logger.Info("Processing webhook")

	if stat, err := os.Stat(repoPath); err != nil || !stat.IsDir() {
		logger.Error("Repository directory not found")
		return failure(http.StatusNotFound, "Repository not found")
	}

	lock := h.deps.Locks.ForRepository(repoPath)
	if err := lock.AcquireWithTimeout(ctx, h.config.LockTimeout); err != nil {
		if err == flock.ErrTimeout {
			logger.Warn("Repository update in progress, lock not acquired", "lock-timeout", h.config.LockTimeout)
			return failure(http.StatusConflict, "Repository update in progress")
		}
		logger.Error("Failed locking repository", "reason", err)
		return failure(http.StatusInternalServerError, "Failed locking repository")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed releasing repository lock", "reason", err)
		}
	}()

	if err := h.update(ctx, repoPath); err != nil {
		message := "Git operation failed: " + err.Error()
		if commandErr, ok := err.(*gitops.CommandError); ok {
			message = "Git operation failed: " + commandErr.Stderr
		}
		logger.Error(message)
		return failure(http.StatusInternalServerError, message)
	}

	h.deps.Restarter.Signal()
	logger.Info("Repository updated")
	return success("Repository updated")
}

func (h *handler) update(ctx context.Context, repoPath string) error {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, h.deps.Tracer, "git-update")
	defer span.Finish()

	started := time.Now()
	// the update must finish even when the caller goes away,
	// its duration is bounded by the git timeout
	err := h.deps.Updater.Update(context.WithoutCancel(ctx), repoPath)
	result := "success"
	if err != nil {
		result = "failure"
		ext.Error.Set(span, true)
		span.SetTag("reason", err.Error())
	}
	h.metrics.updateDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
	return err
}

func (h *handler) validSecurityToken(logger hclog.Logger, token string) bool {
	if h.config.SecurityToken == "" {
		return true
	}
	if h.config.Debug {
		logger.Debug("Received token", "token", token)
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.config.SecurityToken)) == 1
}

func writeResponse(w http.ResponseWriter, logger hclog.Logger, result outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.code)
	if err := json.NewEncoder(w).Encode(result.response); err != nil {
		// the status is already sent, the client most likely went away
		logger.Debug("Failed writing response body", "status-code", result.code, "reason", err)
	}
}
