// Package api is the HTTP surface of the review service. It only talks
// to the core packages; no pipeline logic lives here.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightpath-pm/billflow/internal/entrata"
	"github.com/brightpath-pm/billflow/internal/review"
	"github.com/brightpath-pm/billflow/internal/ubi"
)

// Server represents the API server.
type Server struct {
	Addr   string
	router *chi.Mux
	server *http.Server

	reviewSvc    *review.Service
	builder      *entrata.Builder
	orchestrator *entrata.Orchestrator
	engine       *ubi.Engine
	metrics      http.Handler
}

// NewServer creates a new API server over the core services. The metrics
// handler may be nil; /metrics then returns 404.
func NewServer(addr string, reviewSvc *review.Service, builder *entrata.Builder,
	orchestrator *entrata.Orchestrator, engine *ubi.Engine, metricsHandler http.Handler) *Server {

	s := &Server{
		Addr:         addr,
		router:       chi.NewRouter(),
		reviewSvc:    reviewSvc,
		builder:      builder,
		orchestrator: orchestrator,
		engine:       engine,
		metrics:      metricsHandler,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/dates", s.handleDates)
		r.Get("/invoices", s.handleInvoices)
		r.Post("/submit", s.handleSubmit)
		r.Post("/post_to_entrata", s.handlePostToEntrata)
		r.Post("/bulk_assign_property", s.handleBulkAssignProperty)
		r.Post("/bulk_assign_vendor", s.handleBulkAssignVendor)
		r.Post("/bulk_rework", s.handleBulkRework)

		r.Route("/billback/ubi", func(r chi.Router) {
			r.Get("/unassigned", s.handleListUnassigned)
			r.Get("/assigned", s.handleListAssigned)
			r.Get("/archived", s.handleListArchived)
			r.Get("/suggest", s.handleSuggest)
			r.Get("/stats_by_property", s.handleStatsByProperty)
			r.Post("/assign", s.handleAssign)
			r.Post("/unassign", s.handleUnassign)
			r.Post("/reassign", s.handleReassign)
			r.Post("/archive", s.handleArchive)
		})

		r.Post("/master-bills/generate", s.handleMasterBills)
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Response is the standard API envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Error writes an error response. The message must already be sanitized.
func (s *Server) Error(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
