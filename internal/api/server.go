// Package api exposes the matching service over a JSON REST interface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/efebarandurmaz/kindred/internal/matching"
	"github.com/efebarandurmaz/kindred/internal/server"
)

// Version reported by the root and health endpoints.
const Version = "1.0.0"

// Config holds API server configuration.
type Config struct {
	ListenAddr string // e.g. ":8000"
}

// Server is the REST API server.
type Server struct {
	config  *Config
	service *matching.Service
	health  *server.HealthRegistry
	server  *http.Server
}

// NewServer creates the API server and wires its routes.
func NewServer(config *Config, service *matching.Service, health *server.HealthRegistry) *Server {
	s := &Server{
		config:  config,
		service: service,
		health:  health,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /profiles", s.handleCreateProfile)
	mux.HandleFunc("GET /profiles", s.handleListProfiles)
	mux.HandleFunc("POST /profiles/search", s.handleSearchProfiles)
	mux.HandleFunc("GET /profiles/{id}", s.handleGetProfile)
	mux.HandleFunc("DELETE /profiles/{id}", s.handleDeleteProfile)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := corsMiddleware(loggingMiddleware(tracingMiddleware(mux)))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving the API. Blocks until Stop or failure.
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("stopping API server")
	return s.server.Shutdown(ctx)
}
