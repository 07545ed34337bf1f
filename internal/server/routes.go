package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mranderson01901234/los/internal/engine"
	"github.com/mranderson01901234/los/internal/router"
	"github.com/mranderson01901234/los/internal/store"
)

const requestTimeout = 60 * time.Second

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	docs, err := s.engine.DB.ListDocuments(limit)
	if err != nil {
		writeEngineError(w, storeFailure(err))
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(docs), "documents": docs})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req engine.DocumentInput
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	doc, res, err := s.engine.AddDocument(ctx, req)
	if doc == nil {
		writeEngineError(w, err)
		return
	}
	// The document is stored even when indexing failed; the result says why.
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc, "index": res})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.engine.DB.GetDocument(id)
	if err != nil {
		writeEngineError(w, storeFailure(err))
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.engine.UpdateDocument(ctx, chi.URLParam(r, "id"), req.Title, req.Body)
	if err != nil && res == nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.engine.IndexDocument(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	opts := engine.SearchOpts{Scope: engine.Scope(q.Get("scope"))}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.TopK = n
		}
	}
	if m := q.Get("min_score"); m != "" {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, "min_score must be between 0 and 1")
			return
		}
		opts.MinScore = f
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.Search(ctx, query, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if results == nil {
		results = []engine.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleHotMemory(w http.ResponseWriter, r *http.Request) {
	hot, err := s.engine.BuildHotMemory(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hot)
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetProfile(r.Context(), req.Summary); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject  string `json:"subject"`
		Category string `json:"category"`
		Text     string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	f := &store.Fact{Subject: req.Subject, Category: req.Category, Text: req.Text}
	if err := s.engine.AddFact(r.Context(), f); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleSurfaceFacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SurfaceFacts(r.Context(), req.IDs); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"surfaced": len(req.IDs)})
}

func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string  `json:"name"`
		Delta float64 `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	if err := s.engine.RecordEngagement(r.Context(), req.Name, req.Delta); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddExcerpt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Role           string `json:"role"`
		Content        string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	ex := &store.Excerpt{ConversationID: req.ConversationID, Role: req.Role, Content: req.Content}
	if err := s.engine.AddExcerpt(r.Context(), ex); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return "", false
	}
	return req.Query, true
}

func (s *Server) handleTrivial(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	pre := router.PreRouter{Clock: s.engine.Now}
	writeJSON(w, http.StatusOK, pre.CheckTrivial(query))
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, router.Route(query))
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := s.engine.Prepare(ctx, query)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prepared":       p,
		"needs_external": p.NeedsExternal(),
	})
}

func (s *Server) handleConsolidationRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RunConsolidation(r.Context())
	if err != nil && res == nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConsolidationPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.engine.PlanConsolidation(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleConsolidationCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.CommitConsolidation(r.Context(), req.Token)
	if err != nil && res == nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConsolidationJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.DB.ListCompressionJobs(50)
	if err != nil {
		writeEngineError(w, storeFailure(err))
		return
	}
	if jobs == nil {
		jobs = []store.CompressionJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(jobs), "jobs": jobs})
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := s.engine.DB.ListArchives()
	if err != nil {
		writeEngineError(w, storeFailure(err))
		return
	}
	if archives == nil {
		archives = []store.Archive{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(archives), "archives": archives})
}
