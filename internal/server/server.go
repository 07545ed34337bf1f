package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mranderson01901234/los/internal/engine"
)

// maxBodyBytes bounds request bodies; documents are capped lower by the engine.
const maxBodyBytes = 2 << 20

// Server is the los HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the given engine and version string.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleCreateDocument)
			r.Get("/{id}", s.handleGetDocument)
			r.Put("/{id}", s.handleUpdateDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
			r.Post("/{id}/index", s.handleIndexDocument)
		})

		r.Get("/search", s.handleSearch)

		r.Route("/memory", func(r chi.Router) {
			r.Get("/hot", s.handleHotMemory)
			r.Put("/profile", s.handleSetProfile)
			r.Post("/facts", s.handleAddFact)
			r.Post("/facts/surfaced", s.handleSurfaceFacts)
			r.Post("/interests", s.handleEngagement)
			r.Post("/conversations", s.handleAddExcerpt)
		})

		r.Route("/query", func(r chi.Router) {
			r.Post("/trivial", s.handleTrivial)
			r.Post("/route", s.handleRoute)
			r.Post("/prepare", s.handlePrepare)
		})

		r.Route("/consolidation", func(r chi.Router) {
			r.Post("/run", s.handleConsolidationRun)
			r.Post("/plan", s.handleConsolidationPlan)
			r.Post("/commit", s.handleConsolidationCommit)
			r.Get("/jobs", s.handleConsolidationJobs)
			r.Get("/archives", s.handleArchives)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"uptime":          time.Since(s.started).Seconds(),
		"db":              dbOK,
		"db_path":         s.engine.DB.Path,
		"embedding_model": s.engine.Embedder.Model(),
		"summarizer":      s.engine.LLM != nil,
		"vector_index":    s.engine.Index != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrStoreUnavailable):
		log.Printf("server: store failure: %v", err)
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrInvalidScope):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrPlanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrArchived), errors.Is(err, engine.ErrConsolidationRunning):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNoSummarizer), errors.Is(err, engine.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// storeFailure tags a raw store error so writeEngineError logs it as a 500.
func storeFailure(err error) error {
	return fmt.Errorf("%w: %w", engine.ErrStoreUnavailable, err)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}
