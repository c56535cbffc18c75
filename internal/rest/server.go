// Package rest builds the HTTP surface of slp-api: a CRUD router generated
// per reflected table, plus the discovery, health, and subjects-filter
// endpoints.
package rest

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/slpdev/slp-api/internal/database"
	"github.com/slpdev/slp-api/internal/errs"
	"github.com/slpdev/slp-api/internal/logger"
	"github.com/slpdev/slp-api/internal/schema"
)

// Server aggregates one CRUD router per exposed table under a single mux.
type Server struct {
	db       database.DB
	registry *schema.Registry
	log      *logger.Logger
	router   chi.Router
	prefixes map[string]string // logical name -> mount prefix
}

// NewServer wires middleware, per-table CRUD routers, the subjects filter
// endpoint, and the discovery/health endpoints. It fails if any exposed
// table lacks a usable primary key.
func NewServer(db database.DB, registry *schema.Registry, log *logger.Logger) (*Server, error) {
	s := &Server{
		db:       db,
		registry: registry,
		log:      log,
		prefixes: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	// Permissive CORS: every origin, method, and header. Acceptable for
	// the current deployment, but revisit before exposing this publicly.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	for _, logical := range registry.Logical() {
		table, err := registry.Lookup(logical)
		if err != nil {
			return nil, err
		}

		tr, err := NewTableRouter(db, table, log)
		if err != nil {
			return nil, fmt.Errorf("building router for %q: %w", logical, err)
		}

		// The subjects table carries one extra fixed-predicate filter
		// endpoint. It is a one-off, not a query DSL.
		if logical == "subjects" {
			tr.Get("/filter", s.handleSubjectsFilter(table))
		}

		prefix := "/api/" + logical
		s.prefixes[logical] = prefix
		r.Mount(prefix, tr)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s, nil
}

// Router returns the http.Handler for the whole API.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleRoot lists the absolute URL of every mounted table prefix.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	urls := make(map[string]string, len(s.prefixes))
	for logical, prefix := range s.prefixes {
		urls[logical] = fmt.Sprintf("%s://%s%s/", scheme, r.Host, prefix)
	}
	respondJSON(w, http.StatusOK, urls)
}

// handleHealth reports constant liveness. It deliberately does not touch
// the database.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleSubjectsFilter returns subjects rows matching both equality
// predicates. Both query parameters are required.
func (s *Server) handleSubjectsFilter(table *schema.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrollmentID := r.URL.Query().Get("enrollment_id")
		subject := r.URL.Query().Get("subject")
		if enrollmentID == "" || subject == "" {
			respondDetail(w, http.StatusBadRequest,
				"enrollment_id and subject query parameters are required")
			return
		}

		sql, args, err := database.Select(table.Name).
			Where("enrollment_id", "=", enrollmentID).
			Where("subject", "=", subject).
			Build()
		if err != nil {
			respondDetail(w, http.StatusInternalServerError, "Error fetching %s: %v", table.Name, err)
			return
		}

		rows, err := s.db.Query(r.Context(), sql, args...)
		if err != nil {
			s.filterError(w, table.Name, err)
			return
		}

		records, err := database.ScanRows(rows)
		if err != nil {
			s.filterError(w, table.Name, err)
			return
		}

		respondJSON(w, http.StatusOK, records)
	}
}

func (s *Server) filterError(w http.ResponseWriter, table string, err error) {
	s.log.ErrorWith("subjects filter failed", err, map[string]interface{}{"table": table})
	status := http.StatusInternalServerError
	if errs.IsInvalidInput(err) {
		status = http.StatusBadRequest
	}
	respondDetail(w, status, "Error fetching %s: %v", table, err)
}
