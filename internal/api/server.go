// Package api exposes the Kestrel HTTP surface: event ingestion, epoch
// control, trust queries, ring queries and the assessment handoff.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trustlab/kestrel/internal/assessment"
	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
	"github.com/trustlab/kestrel/internal/pipeline"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, builder *graph.Builder, scheduler *pipeline.Scheduler, orchestrator *assessment.Orchestrator, version string) *Server {
	handler := NewHandler(repo, cache, bus, builder, scheduler, orchestrator, version)
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

	// Ingestion (ETL collaborator)
	router.Post("/events", handler.IngestEvents)
	router.Post("/profiles", handler.SaveProfiles)

	// Epoch control
	router.Post("/epochs", handler.TriggerEpoch)
	router.Get("/epochs/current", handler.GetCurrentEpoch)
	router.Get("/epochs/{id}", handler.GetEpoch)

	// Trust queries (dashboard/assessment collaborators)
	router.Get("/users/{id}/trust", handler.GetTrust)
	router.Get("/users/{id}/trust/history", handler.GetTrustHistory)
	router.Get("/users/{id}/assessment", handler.GetAssessment)
	router.Get("/trust/summary", handler.GetTrustSummary)

	// Ring queries
	router.Get("/rings", handler.ListRings)
	router.Get("/rings/{id}", handler.GetRing)

	// Model artifact management
	router.Put("/models/classifier", handler.UploadModel)
	router.Get("/models/classifier", handler.GetActiveModel)

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
