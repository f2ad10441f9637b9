// Package core provides the API chassis for the RainWatch service. It
// creates the chi router, enforces cross-cutting concerns such as panic
// recovery, request correlation, logging, and CORS before requests reach
// domain handlers, and exposes the health and metrics endpoints.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"rainwatch/internal/config"
	"rainwatch/internal/types"
)

// Server encapsulates all dependencies for the RainWatch API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Repo      types.MonitorRepository
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked by GET /health. The entry point registers
	// one per critical dependency (database, weather provider).
	HealthProbes []HealthProbe

	// Gatherer backs GET /metrics. When nil the default prometheus
	// registry is served.
	Gatherer prometheus.Gatherer

	// V1RouteRegistrars are populated by the application entry point.
	// This indirection avoids import cycles between core and the handler
	// packages.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// dependencies.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction; the separation lets tests customize route registration.
func NewServer(cfg *config.Config, repo types.MonitorRepository, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("monitor repository must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Repo:      repo,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources, closing the
// repository's connection pool when it supports closing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.Repo.(interface{ Close() }); ok {
		closer.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
