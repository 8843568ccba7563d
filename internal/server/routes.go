package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket status stream
	mux.HandleFunc("/ws", s.handlers.WS.HandleWebSocket)

	// API routes - Imports
	mux.HandleFunc("/api/imports", s.handleImportsRoute)  // GET (list), POST (submit)
	mux.HandleFunc("/api/imports/", s.handleImportRoutes) // GET /{id}, GET /{id}/events

	// API routes - Notes
	mux.HandleFunc("/api/notes", s.handlers.Notes.ListNotesHandler)
	mux.HandleFunc("/api/notes/", s.handleNoteRoutes) // GET /{id}, GET /{id}/status

	// API routes - System
	mux.HandleFunc("/api/version", s.handlers.API.VersionHandler)
	mux.HandleFunc("/api/health", s.handlers.API.HealthHandler)
	mux.HandleFunc("/healthz", s.handlers.API.HealthHandler)

	// Prometheus metrics
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handlers.API.NotFoundHandler)

	return mux
}

// handleImportsRoute routes /api/imports requests (list and submit)
func (s *Server) handleImportsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.handlers.Imports.ListImportsHandler(w, r)
	case "POST":
		s.handlers.Imports.SubmitImportHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNoteRoutes routes /api/notes/{id} and /api/notes/{id}/status
func (s *Server) handleNoteRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/status") {
		s.handlers.Notes.GetNoteStatusHandler(w, r)
		return
	}
	s.handlers.Notes.GetNoteHandler(w, r)
}

// handleImportRoutes routes /api/imports/{id} and /api/imports/{id}/events
func (s *Server) handleImportRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/events") {
		s.handlers.Imports.GetImportEventsHandler(w, r)
		return
	}
	s.handlers.Imports.GetImportHandler(w, r)
}
