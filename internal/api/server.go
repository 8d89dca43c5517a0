package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/service"
	"github.com/gradometer/gradometer/internal/watch"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *service.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *watch.Engine, rateLimit domain.RateLimitConfig, version string) *Server {
	handler := NewHandler(svc, repo, cache, bus, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Report ingestion, rate limited per tenant
		r.With(RateLimitMiddleware(cache, rateLimit)).Post("/reports", handler.IngestReport)

		// Projects
		r.Get("/projects", handler.ListProjects)
		r.Get("/projects/{id}", handler.GetProject)
		r.Delete("/projects/{id}", handler.DeleteProject)
		r.Get("/projects/{id}/diff", handler.GetProjectDiff)
		r.Get("/projects/{id}/flags", handler.GetProjectFlags)
		r.Get("/projects/{id}/stats", handler.GetProjectStats)

		// Portfolio overview
		r.Get("/stats", handler.GetPortfolioStats)

		// Classification audit trail
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		// Watch rule management
		r.Get("/watchrules", handler.ListWatchRules)
		r.Get("/watchrules/{id}", handler.GetWatchRule)
		r.Post("/watchrules", handler.CreateWatchRule)
		r.Delete("/watchrules/{id}", handler.DeleteWatchRule)
		r.Post("/watchrules/reload", handler.ReloadWatchRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
