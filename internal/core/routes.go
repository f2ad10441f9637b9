package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// It leaves headroom under the server write timeout for the error response.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy: the global
// middleware chain, the /v1 API group, and the operational endpoints.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)

	s.router.Get("/health", s.HandleHealth)
	s.router.Method("GET", "/metrics", s.metricsHandler())
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering rationale:
//  1. Recoverer        - catches panics; outermost to catch all failures.
//  2. ContextTimeout   - sets the soft deadline for the whole chain.
//  3. RequestID        - generates/propagates the correlation ID.
//  4. SecurityHeaders  - present on all responses, including errors.
//  5. RequestLogger    - structured logging with redacted headers.
//  6. CORS             - browser preflight handling.
//  7. Compression      - innermost so logging sees the real status code.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(CompressionMiddleware)
}

// mountV1 registers all v1 endpoints. Domain handler routes arrive via
// V1RouteRegistrars, populated by the application entry point, which keeps
// core free of handler imports.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// corsAllowedOrigins returns the configured CORS origins, defaulting to
// allow-all when the configuration names none.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CORSAllowedOrigins) > 0 {
		return s.Config.Server.CORSAllowedOrigins
	}
	return []string{"*"}
}

// metricsHandler serves the prometheus registry backing s.Gatherer, or
// the default registry when none was injected.
func (s *Server) metricsHandler() http.Handler {
	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
