// Package server exposes the operational HTTP endpoints: Prometheus metrics
// and a dependency health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/server/handler"
	"github.com/alanyoungcy/marketgraph/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr string
}

// Server is the headless operational HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server serving metrics on /metrics and the health
// check on /healthz.
func NewServer(cfg Config, metrics http.Handler, health *handler.HealthHandler, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", health.HealthCheck)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.Logging(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called, which makes it return nil.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("ops server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
