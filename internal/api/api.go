// Package api implements the HTTP API server for revpanel.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/analyzer"
	"github.com/revlab-dev/revpanel/internal/github"
	"github.com/revlab-dev/revpanel/internal/model"
	"github.com/revlab-dev/revpanel/internal/orchestrator"
)

// Server is the revpanel HTTP API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server

	registry *agents.Registry
	backend  analyzer.Analyzer
	ocfg     orchestrator.Config
	gh       *github.Client
}

// New creates a new API server. The GitHub client may be nil, in which case
// the PR review endpoint responds with 503.
func New(addr string, registry *agents.Registry, backend analyzer.Analyzer, ocfg orchestrator.Config, gh *github.Client) *Server {
	s := &Server{
		addr:     addr,
		registry: registry,
		backend:  backend,
		ocfg:     ocfg,
		gh:       gh,
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // reviews fan out to slow model backends
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/review", s.handleReview)
	s.mux.HandleFunc("POST /api/review/pr", s.handleReviewPR)
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Printf("revpanel API server listening on %s", s.addr)
	return s.server.ListenAndServe()
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// orchestrate builds a fresh orchestrator so callers can attach their own
// progress sink without racing other requests.
func (s *Server) orchestrate(progress func(agent string, status model.OutcomeStatus)) *orchestrator.Orchestrator {
	orch := orchestrator.New(s.registry, s.backend, s.ocfg)
	orch.ProgressFunc = progress
	return orch
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
