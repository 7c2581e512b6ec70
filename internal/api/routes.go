// Package api provides HTTP handlers and routing for the service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
}

// NewServer creates a new API server. Extra middleware (auth, rate
// limiting) is applied outermost in the order given.
func NewServer(h *Handlers, extra ...mux.MiddlewareFunc) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.setupRoutes(extra...)
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(extra ...mux.MiddlewareFunc) {
	// Health and observability endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Workflow management
	api.HandleFunc("/workflows", s.handlers.CreateWorkflow).Methods("POST")
	api.HandleFunc("/workflows", s.handlers.ListWorkflows).Methods("GET")
	api.HandleFunc("/workflows/import", s.handlers.ImportWorkflow).Methods("POST")
	api.HandleFunc("/workflows/{id}", s.handlers.GetWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{id}", s.handlers.UpdateWorkflow).Methods("PUT")
	api.HandleFunc("/workflows/{id}", s.handlers.DeleteWorkflow).Methods("DELETE")
	api.HandleFunc("/workflows/{id}/schema", s.handlers.GetWorkflowSchema).Methods("GET")
	api.HandleFunc("/workflows/{id}/export", s.handlers.ExportWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{id}/run", s.handlers.RunWorkflow).Methods("POST")

	// Graph validation
	api.HandleFunc("/validate", s.handlers.ValidateGraph).Methods("POST")

	// Run management
	api.HandleFunc("/runs", s.handlers.ExecuteGraph).Methods("POST")
	api.HandleFunc("/runs", s.handlers.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handlers.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", s.handlers.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/events", s.handlers.StreamEvents).Methods("GET")

	// Media uploads
	api.HandleFunc("/uploads/presign", s.handlers.PresignUpload).Methods("POST")

	// Credits
	api.HandleFunc("/credits/balance", s.handlers.GetBalance).Methods("GET")
	api.HandleFunc("/credits/grant", s.handlers.GrantCredits).Methods("POST")

	// Store diagnostics
	api.HandleFunc("/store/info", s.handlers.StoreInfo).Methods("GET")

	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	for _, mw := range extra {
		s.router.Use(mw)
	}
}
