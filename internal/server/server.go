// Package server hosts the HTTP API, the WebSocket status stream, and the
// metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/handlers"
)

// Handlers bundles the route handlers the server mounts
type Handlers struct {
	API     *handlers.APIHandler
	Imports *handlers.ImportHandler
	Notes   *handlers.NoteHandler
	WS      *handlers.WebSocketHandler
}

// Server manages the HTTP server and routes
type Server struct {
	config   *common.ServerConfig
	logger   arbor.ILogger
	handlers Handlers
	registry *prometheus.Registry
	router   *http.ServeMux
	server   *http.Server
}

// New creates a new HTTP server over the given handlers
func New(config *common.ServerConfig, handlerSet Handlers, registry *prometheus.Registry, logger arbor.ILogger) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		handlers: handlerSet,
		registry: registry,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
