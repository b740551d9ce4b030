// Package server runs the HTTP listeners of the mock services with the shared
// middleware stack: tracing, request logging and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config describes one listener.
type Config struct {
	// Name labels logs, metrics and spans.
	Name    string
	Addr    string
	Handler http.Handler
	// Metrics is optional; when set, requests are recorded and MetricsPath
	// serves the registry.
	Metrics         *Metrics
	MetricsPath     string
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

// Server is an HTTP listener that stops when its run context is cancelled.
// Request contexts derive from the run context, so open streams end as soon
// as shutdown begins.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	mu        sync.RWMutex
	addr      net.Addr
}

// New builds a server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", cfg.Name)

	mux := http.NewServeMux()
	mux.Handle("/", cfg.Handler)
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics.Handler())
	}

	var handler http.Handler = mux
	if cfg.Metrics != nil {
		handler = cfg.Metrics.Middleware(cfg.Name, handler)
	}
	handler = RequestLogger(logger, handler)
	handler = otelhttp.NewHandler(handler, cfg.Name)

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Name implements service.Service.
func (s *Server) Name() string { return s.cfg.Name }

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen on %s: %w", s.cfg.Name, s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: serve: %w", s.cfg.Name, err)
	case <-ctx.Done():
	}

	s.logger.Info("HTTP server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing connections", "error", err)
		_ = srv.Close()
	}
	<-errCh

	s.logger.Info("HTTP server stopped")
	return nil
}
