package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mranderson01901234/los/internal/config"
	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/engine"
	"github.com/mranderson01901234/los/internal/llm"
	"github.com/mranderson01901234/los/internal/store"
)

var fixedNow = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

func testServer(t *testing.T, client llm.Client) (*Server, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db, embed.NewHashing(0), client, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	return New(eng, "test-version"), eng
}

func mockLLM() *llm.MockClient {
	return &llm.MockClient{Response: &llm.Response{Content: "Summary of archived notes.", Provider: "mock"}}
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, mockLLM())

	w := do(t, srv, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
	if body["embedding_model"] != "hashing:384" {
		t.Errorf("embedding_model = %v", body["embedding_model"])
	}
	if body["summarizer"] != true {
		t.Errorf("summarizer = %v, want true", body["summarizer"])
	}
}

func TestCreateGetAndSearchDocument(t *testing.T) {
	srv, _ := testServer(t, mockLLM())

	w := do(t, srv, "POST", "/api/documents", map[string]string{
		"id":    "garden",
		"title": "Garden log",
		"body":  "Planted tomato seedlings along the south fence.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Document store.Document     `json:"document"`
		Index    engine.IndexResult `json:"index"`
	}
	decodeBody(t, w, &created)
	if created.Document.ID != "garden" || created.Index.Status != store.StatusProcessed || created.Index.ChunkCount != 1 {
		t.Errorf("created = %+v", created)
	}

	w = do(t, srv, "GET", "/api/documents/garden", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var doc store.Document
	decodeBody(t, w, &doc)
	if doc.Title != "Garden log" || doc.Tier != store.TierWarm {
		t.Errorf("doc = %+v", doc)
	}

	w = do(t, srv, "GET", "/api/search?q=tomato+seedlings&limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", w.Code, w.Body.String())
	}
	var found struct {
		Count   int                   `json:"count"`
		Results []engine.SearchResult `json:"results"`
	}
	decodeBody(t, w, &found)
	if found.Count == 0 || found.Results[0].SourceDocID != "garden" {
		t.Errorf("search = %+v", found)
	}

	w = do(t, srv, "GET", "/api/documents", nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &list)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}
}

func TestUpdateAndDeleteDocument(t *testing.T) {
	srv, _ := testServer(t, mockLLM())
	do(t, srv, "POST", "/api/documents", map[string]string{"id": "n1", "body": "First draft."})

	w := do(t, srv, "PUT", "/api/documents/n1", map[string]string{"body": "Second draft with more words."})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, srv, "DELETE", "/api/documents/n1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = do(t, srv, "DELETE", "/api/documents/n1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := testServer(t, mockLLM())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing document", "GET", "/api/documents/nope", nil, http.StatusNotFound},
		{"index missing document", "POST", "/api/documents/nope/index", nil, http.StatusNotFound},
		{"update missing document", "PUT", "/api/documents/nope", map[string]string{"body": "x"}, http.StatusNotFound},
		{"search without query", "GET", "/api/search", nil, http.StatusBadRequest},
		{"bad scope", "GET", "/api/search?q=x&scope=hot", nil, http.StatusBadRequest},
		{"bad min score", "GET", "/api/search?q=x&min_score=2", nil, http.StatusBadRequest},
		{"unknown field", "POST", "/api/documents", map[string]string{"bogus": "x"}, http.StatusBadRequest},
		{"empty fact", "POST", "/api/memory/facts", map[string]string{"text": " "}, http.StatusBadRequest},
		{"bad excerpt role", "POST", "/api/memory/conversations", map[string]string{"role": "system", "content": "x"}, http.StatusBadRequest},
		{"unknown plan", "POST", "/api/consolidation/commit", map[string]string{"token": "missing"}, http.StatusNotFound},
		{"empty query", "POST", "/api/query/route", map[string]string{"query": ""}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			var body map[string]string
			decodeBody(t, w, &body)
			if body["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestMemoryEndpoints(t *testing.T) {
	srv, _ := testServer(t, mockLLM())

	if w := do(t, srv, "PUT", "/api/memory/profile", map[string]string{"summary": "Gardener in Atlanta."}); w.Code != http.StatusOK {
		t.Fatalf("profile status = %d", w.Code)
	}
	w := do(t, srv, "POST", "/api/memory/facts", map[string]string{"category": "preference", "text": "Likes figs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("fact status = %d: %s", w.Code, w.Body.String())
	}
	var fact store.Fact
	decodeBody(t, w, &fact)
	do(t, srv, "POST", "/api/memory/interests", map[string]any{"name": "Baking"})
	do(t, srv, "POST", "/api/memory/conversations", map[string]string{"conversation_id": "c1", "role": "user", "content": "Hello there"})

	w = do(t, srv, "GET", "/api/memory/hot", nil)
	var hot engine.HotMemory
	decodeBody(t, w, &hot)
	for _, want := range []string{"Gardener in Atlanta.", "[preference] Likes figs", "baking", "user: Hello there"} {
		if !bytes.Contains([]byte(hot.Text), []byte(want)) {
			t.Errorf("hot memory missing %q:\n%s", want, hot.Text)
		}
	}

	w = do(t, srv, "POST", "/api/memory/facts/surfaced", map[string][]int64{"ids": {fact.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("surfaced status = %d", w.Code)
	}
	w = do(t, srv, "GET", "/api/memory/hot", nil)
	decodeBody(t, w, &hot)
	if len(hot.Facts) != 1 || hot.Facts[0].AccessCount != 1 {
		t.Errorf("facts after surfacing = %+v", hot.Facts)
	}
}

func TestQueryEndpoints(t *testing.T) {
	srv, _ := testServer(t, mockLLM())

	w := do(t, srv, "POST", "/api/query/trivial", map[string]string{"query": "what's 12 * 4"})
	var triv struct {
		Handled bool   `json:"handled"`
		Answer  string `json:"answer"`
	}
	decodeBody(t, w, &triv)
	if !triv.Handled || triv.Answer != "12 * 4 = 48" {
		t.Errorf("trivial = %+v", triv)
	}

	w = do(t, srv, "POST", "/api/query/route", map[string]string{"query": "latest news on the election"})
	var plan struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, w, &plan)
	if plan.Kind != "external" {
		t.Errorf("route kind = %q, want external", plan.Kind)
	}

	w = do(t, srv, "POST", "/api/query/prepare", map[string]string{"query": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("prepare status = %d", w.Code)
	}
	var prep struct {
		NeedsExternal bool `json:"needs_external"`
	}
	decodeBody(t, w, &prep)
	if prep.NeedsExternal {
		t.Error("greeting should not need external retrieval")
	}
}

func TestConsolidationEndpoints(t *testing.T) {
	srv, eng := testServer(t, mockLLM())

	old := fixedNow.Add(-120 * 24 * time.Hour)
	eng.Now = func() time.Time { return old }
	do(t, srv, "POST", "/api/documents", map[string]string{"id": "old", "body": "An old note about compost bins."})
	eng.Now = func() time.Time { return fixedNow }

	w := do(t, srv, "POST", "/api/consolidation/plan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("plan status = %d: %s", w.Code, w.Body.String())
	}
	var plan engine.ConsolidationPlan
	decodeBody(t, w, &plan)
	if plan.ItemCount != 1 || plan.Token == "" {
		t.Fatalf("plan = %+v", plan)
	}

	w = do(t, srv, "POST", "/api/consolidation/commit", map[string]string{"token": plan.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("commit status = %d: %s", w.Code, w.Body.String())
	}
	var res engine.ConsolidationResult
	decodeBody(t, w, &res)
	if res.ItemsArchived != 1 || len(res.ArchiveIDs) != 1 {
		t.Errorf("result = %+v", res)
	}

	w = do(t, srv, "GET", "/api/consolidation/archives", nil)
	var archives struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &archives)
	if archives.Count != 1 {
		t.Errorf("archives = %d, want 1", archives.Count)
	}

	w = do(t, srv, "GET", "/api/consolidation/jobs", nil)
	var jobs struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &jobs)
	if jobs.Count != 1 {
		t.Errorf("jobs = %d, want 1", jobs.Count)
	}

	w = do(t, srv, "PUT", "/api/documents/old", map[string]string{"body": "edited"})
	if w.Code != http.StatusConflict {
		t.Errorf("update archived status = %d, want 409", w.Code)
	}
}

func TestConsolidationWithoutSummarizer(t *testing.T) {
	srv, _ := testServer(t, nil)

	for _, path := range []string{"/api/consolidation/run", "/api/consolidation/plan"} {
		w := do(t, srv, "POST", path, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}
