package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/health"
	"github.com/openprocure/harrier/internal/queue"
	"github.com/openprocure/harrier/internal/ratelimit"
	"github.com/openprocure/harrier/internal/scheduler"
	"github.com/openprocure/harrier/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg domain.ServerConfig,
	repo domain.Repository,
	cache domain.Cache,
	checker *health.Checker,
	sched *scheduler.Scheduler,
	q *queue.Queue,
	limiter *ratelimit.Limiter,
	engine *scoring.Engine,
	version string,
) *Server {
	handler := NewHandler(repo, cache, checker, sched, q, limiter, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Control-plane routes (tenant-agnostic)
	router.Get("/status", handler.Status)

	router.Get("/schedules", handler.ListSchedules)
	router.Put("/schedules/{source}", handler.SaveSchedule)

	router.Post("/sources/{source}/trigger", handler.TriggerSource)
	router.Put("/sources/{source}/limits", handler.SetLimits)

	router.Get("/jobs", handler.JobCounts)
	router.Get("/jobs/{id}", handler.GetJob)
	router.Post("/jobs/{id}/cancel", handler.CancelJob)

	router.Get("/rules", handler.ListRules)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

	router.Post("/tenants", handler.CreateTenant)
	router.Put("/tenants/{id}/profile", handler.SaveProfile)

	// Feed routes (tenant required)
	router.Route("/opportunities", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Get("/", handler.ListOpportunities)
		r.Get("/{id}", handler.GetOpportunity)
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
