package webhook

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ServerConfig contains the configuration for the HTTP server.
type ServerConfig struct {
	// Host and port to bind on.
	// Updated to the actual listener address once the server is ready.
	BindHostPort string
	// How long to wait for in-flight requests on stop
	// before closing forcefully.
	ShutdownTimeout time.Duration
}

// Provider defines the webhook server behaviour.
type Provider interface {
	// Starts the server.
	Start()
	// Stops the server, if the server is started.
	Stop()
	// Addr returns the address the server listens on, valid once ready.
	Addr() string
	// ReadyNotify returns a channel that will be closed when the server is ready to serve client requests.
	ReadyNotify() <-chan struct{}
	// FailedNotify returns a channel that will be contain the error if the server has failed.
	FailedNotify() <-chan error
	// StoppedNotify returns a channel that will be closed when the server has stopped.
	StoppedNotify() <-chan struct{}
}

type httpSvc struct {
	sync.Mutex

	config  *ServerConfig
	logger  hclog.Logger
	handler http.Handler

	srv *http.Server

	chanReady   chan struct{}
	chanStopped chan struct{}
	chanFailed  chan error
	stopOnce    sync.Once

	wasStarted bool
	running    bool
}

// NewServer returns a new instance of the server.
func NewServer(cfg *ServerConfig, handler http.Handler, logger hclog.Logger) Provider {
	return &httpSvc{
		config:      cfg,
		logger:      logger,
		handler:     handler,
		chanFailed:  make(chan error, 1),
		chanReady:   make(chan struct{}),
		chanStopped: make(chan struct{}),
	}
}

// Start starts the server.
func (s *httpSvc) Start() {
	s.Lock()
	defer s.Unlock()

	if s.wasStarted {
		s.logger.Warn("Server was already started, can't start twice")
		return
	}
	s.wasStarted = true

	listener, err := net.Listen("tcp", s.config.BindHostPort)
	if err != nil {
		s.logger.Error("Failed to bind", "bind-host-port", s.config.BindHostPort, "reason", err)
		s.chanFailed <- err
		return
	}

	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to serve", "reason", err)
			s.chanFailed <- err
			s.closeStopped()
		}
	}()

	s.running = true
	s.config.BindHostPort = listener.Addr().String()
	s.logger.Info("Webhook server running", "bind-host-port", s.config.BindHostPort)
	close(s.chanReady)
}

// Stop stops the server, if the server is started.
func (s *httpSvc) Stop() {
	s.Lock()
	defer s.Unlock()

	if !s.running {
		s.logger.Warn("server not running")
		return
	}

	s.logger.Info("attempting graceful stop")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("failed to stop gracefully within timeout, forceful stop", "reason", err)
		s.srv.Close()
	} else {
		s.logger.Info("stopped gracefully")
	}

	s.running = false
	s.closeStopped()
}

func (s *httpSvc) closeStopped() {
	s.stopOnce.Do(func() {
		close(s.chanStopped)
	})
}

func (s *httpSvc) Addr() string {
	s.Lock()
	defer s.Unlock()
	return s.config.BindHostPort
}

// ReadyNotify returns a channel that will be closed when the server is ready to serve client requests.
func (s *httpSvc) ReadyNotify() <-chan struct{} {
	return s.chanReady
}

// FailedNotify returns a channel that will be contain the error if the server has failed.
func (s *httpSvc) FailedNotify() <-chan error {
	return s.chanFailed
}

// StoppedNotify returns a channel that will be closed when the server has stopped.
func (s *httpSvc) StoppedNotify() <-chan struct{} {
	return s.chanStopped
}
