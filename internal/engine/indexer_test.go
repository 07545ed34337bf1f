package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mranderson01901234/los/internal/chunk"
	"github.com/mranderson01901234/los/internal/store"
)

func reconstructStored(t *testing.T, db *store.DB, id string) (string, []store.Chunk) {
	t.Helper()
	chunks, err := db.ChunksByDocument(id)
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	spans := make([]chunk.Span, len(chunks))
	for i, c := range chunks {
		spans[i] = chunk.Span{Ordinal: c.Ordinal, Overlap: c.Overlap, Text: c.Text}
	}
	return chunk.Reconstruct(spans), chunks
}

func TestIndexDocumentProcessed(t *testing.T) {
	e, _, _ := testEngine(t)
	body := longText("irrigation", 2000)
	doc := mustAdd(t, e, "long", body)

	if doc.Status != store.StatusProcessed {
		t.Fatalf("status = %s", doc.Status)
	}
	text, chunks := reconstructStored(t, e.DB, "long")
	if len(chunks) != doc.ChunkCount || len(chunks) < 4 {
		t.Fatalf("stored %d chunks, reported %d", len(chunks), doc.ChunkCount)
	}
	if text != body {
		t.Error("stored chunks do not reconstruct the document")
	}
	for _, c := range chunks {
		if len(c.Embedding) != e.Embedder.Dimensions() {
			t.Errorf("chunk %d has %d dims, want %d", c.Ordinal, len(c.Embedding), e.Embedder.Dimensions())
		}
	}
}

func TestIndexDocumentIdempotent(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "d", longText("compost", 1800))
	_, first := reconstructStored(t, e.DB, "d")

	res, err := e.IndexDocument(context.Background(), "d")
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	_, second := reconstructStored(t, e.DB, "d")
	if res.ChunkCount != len(first) || len(first) != len(second) {
		t.Fatalf("chunk counts %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Ordinal != second[i].Ordinal || first[i].Text != second[i].Text || first[i].Overlap != second[i].Overlap {
			t.Errorf("chunk %d differs after re-index", i)
		}
	}
}

func TestIndexEmptyDocument(t *testing.T) {
	e, _, _ := testEngine(t)
	doc := mustAdd(t, e, "empty", "")
	if doc.Status != store.StatusProcessed || doc.ChunkCount != 0 {
		t.Errorf("empty doc status=%s chunks=%d", doc.Status, doc.ChunkCount)
	}
}

func TestIndexModelUnavailableDiscardsOldChunks(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "d", "A note about pruning apple trees in late winter.")

	e.Embedder = newCounting(0)
	res, err := e.IndexDocument(context.Background(), "d")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if errors.Is(err, ErrPartialIndexFailure) {
		t.Error("no batch succeeded, should not be partial")
	}
	if res.Status != store.StatusFailed || res.Error == "" {
		t.Errorf("result = %+v", res)
	}

	doc, _ := e.DB.GetDocument("d")
	if doc.Status != store.StatusFailed || doc.LastError == "" {
		t.Errorf("doc status=%s last_error=%q", doc.Status, doc.LastError)
	}
	if n, _ := e.DB.CountChunks("d"); n != 0 {
		t.Errorf("chunks after failure = %d, want 0", n)
	}
}

func TestIndexPartialFailure(t *testing.T) {
	e, _, _ := testEngine(t)
	e.batchSize = 2
	e.Embedder = newCounting(1)

	_, res, err := e.AddDocument(context.Background(), DocumentInput{ID: "p", Body: longText("beekeeping", 2000)})
	if !errors.Is(err, ErrPartialIndexFailure) || !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want partial failure wrapping model unavailable", err)
	}
	if res.Status != store.StatusFailed {
		t.Errorf("status = %s", res.Status)
	}
	if n, _ := e.DB.CountChunks("p"); n != 0 {
		t.Errorf("partial chunks kept: %d", n)
	}
}

func TestIndexDocumentErrors(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.IndexDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing doc err = %v", err)
	}

	mustAdd(t, e, "old", "archived text")
	e.DB.CommitArchive(&store.Archive{ID: "a1", Period: "2026-01", Summary: "x"}, []store.ArchivedDoc{{ID: "old"}}, nil)
	if _, err := e.IndexDocument(ctx, "old"); !errors.Is(err, ErrArchived) {
		t.Errorf("archived doc err = %v", err)
	}
	if _, err := e.UpdateDocument(ctx, "old", "", "new text"); !errors.Is(err, ErrArchived) {
		t.Errorf("update archived err = %v", err)
	}
}

func TestAddDocumentValidation(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	if _, _, err := e.AddDocument(ctx, DocumentInput{Type: "video", Body: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad type err = %v", err)
	}
	if _, _, err := e.AddDocument(ctx, DocumentInput{ID: "!!!", Body: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad id err = %v", err)
	}
	if _, _, err := e.AddDocument(ctx, DocumentInput{Body: strings.Repeat("a", maxBodyBytes+1)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized body err = %v", err)
	}

	doc, _, err := e.AddDocument(ctx, DocumentInput{Type: "Bookmark", Title: "  Seeds  ", Body: "https://example.com/seeds"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if doc.ID == "" || doc.Type != store.TypeBookmark || doc.Title != "Seeds" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.CreatedAt != testNow.UnixMilli() {
		t.Errorf("created_at = %d, want engine clock", doc.CreatedAt)
	}
}

func TestUpdateDocumentReindexes(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "d", "first version")

	body := longText("orchards", 1200)
	res, err := e.UpdateDocument(context.Background(), "d", "Orchards", body)
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	text, chunks := reconstructStored(t, e.DB, "d")
	if text != body || res.ChunkCount != len(chunks) {
		t.Errorf("update not re-indexed: %d chunks", len(chunks))
	}

	if _, err := e.UpdateDocument(context.Background(), "nope", "", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "d", "to be removed")
	ctx := context.Background()

	if err := e.DeleteDocument(ctx, "d"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n, _ := e.DB.CountChunks("d"); n != 0 {
		t.Errorf("chunks left: %d", n)
	}
	if err := e.DeleteDocument(ctx, "d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestConcurrentIndexSameDocument(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "d", longText("seedlings", 1600))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.IndexDocument(context.Background(), "d"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("IndexDocument: %v", err)
	}

	doc, _ := e.DB.GetDocument("d")
	n, _ := e.DB.CountChunks("d")
	if doc.Status != store.StatusProcessed || doc.ChunkCount != n {
		t.Errorf("status=%s chunk_count=%d stored=%d", doc.Status, doc.ChunkCount, n)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"garden-notes", "garden-notes"},
		{"Garden Notes", "garden-notes"},
		{"notes.2026", "notes-2026"},
		{"../../etc/passwd", "etc-passwd"},
		{"café", "caf"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := sanitizeID(tt.input); got != tt.want {
			t.Errorf("sanitizeID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateClean(t *testing.T) {
	s := "alpha beta gamma delta epsilon"
	if got := truncateClean(s, 100); got != s {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncateClean(s, 20); got != "alpha beta gamma" {
		t.Errorf("truncateClean = %q", got)
	}
	if got := truncateClean("ééééé", 3); got != "é" {
		t.Errorf("cut inside rune: %q", got)
	}
}
