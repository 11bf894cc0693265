package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/runtime"
)

// Server serves the helios HTTP API over one listener.
type Server struct {
	cfg    config.ServerConfig
	rt     *runtime.Runtime
	logger *slog.Logger

	// mu guards httpSrv, listener and running.
	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	running  bool

	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a server over rt. The server does not own the runtime's
// lifecycle; callers start and stop the runtime themselves.
func New(rt *runtime.Runtime, cfg config.ServerConfig) *Server {
	return &Server{
		cfg:    cfg,
		rt:     rt,
		logger: slog.Default().With("component", "server"),
		done:   make(chan struct{}),
	}
}

// Start binds the listen address and serves until ctx is cancelled, Shutdown
// is called, or serving fails. The listener is bound when Start blocks, so a
// caller that sees no immediate error can connect.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}

	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}
	s.running = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", listener.Addr().String())
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.done:
		return nil
	}
}

// Shutdown drains in-flight requests and stops the listener, bounded by the
// configured shutdown timeout. Calling Shutdown more than once returns the
// first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpSrv
		s.running = false
		s.mu.Unlock()

		if srv != nil {
			s.logger.Info("shutting down server", "timeout", s.cfg.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.shutdownErr = fmt.Errorf("server shutdown: %w", err)
			}
			s.logger.Info("server stopped")
		}
		close(s.done)
	})
	return s.shutdownErr
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listen address, useful when the config asked for
// port 0. Empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler builds the route table wrapped in the middleware chain. Tests use
// it directly with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/generate", s.handleGenerate)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/v1/health/providers", s.handleProviderHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)

	metricsPath := s.rt.Config().Telemetry.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, s.rt.Metrics().Handler())

	var handler http.Handler = mux
	handler = s.withRequestID(handler)
	handler = s.withLogging(handler)
	handler = s.withRecovery(handler)
	return handler
}
