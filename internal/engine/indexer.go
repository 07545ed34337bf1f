package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mranderson01901234/los/internal/chunk"
	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/store"
	"github.com/mranderson01901234/los/internal/vectorindex"
)

// IndexResult reports the outcome of indexing one document.
type IndexResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// AddDocument validates, stores and indexes a new document. The document
// is stored even when indexing fails; the error then describes the failure
// and the returned result carries status failed.
func (e *Engine) AddDocument(ctx context.Context, in DocumentInput) (*store.Document, *IndexResult, error) {
	in, err := validateDocument(in)
	if err != nil {
		return nil, nil, err
	}

	doc := &store.Document{
		ID:        in.ID,
		Type:      in.Type,
		Title:     in.Title,
		Body:      in.Body,
		CreatedAt: e.now().UnixMilli(),
	}
	if err := e.DB.CreateDocument(doc); err != nil {
		return nil, nil, storeErr(err)
	}

	res, err := e.IndexDocument(ctx, doc.ID)
	if updated, gerr := e.DB.GetDocument(doc.ID); gerr == nil && updated != nil {
		doc = updated
	}
	return doc, res, err
}

// UpdateDocument replaces a warm document's title and body and re-indexes it.
func (e *Engine) UpdateDocument(ctx context.Context, id, title, body string) (*IndexResult, error) {
	in, err := validateDocument(DocumentInput{ID: id, Type: store.TypeNote, Title: title, Body: body})
	if err != nil {
		return nil, err
	}

	doc, err := e.DB.GetDocument(id)
	if err != nil {
		return nil, storeErr(err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if doc.Tier == store.TierCold {
		return nil, fmt.Errorf("document %s: %w", id, ErrArchived)
	}

	unlock := e.locks.Lock(id)
	ok, err := e.DB.UpdateDocumentBody(id, in.Title, in.Body)
	unlock()
	if err != nil {
		return nil, storeErr(err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrArchived)
	}
	return e.IndexDocument(ctx, id)
}

// DeleteDocument removes a document and its chunks.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	ok, err := e.DB.DeleteDocument(id)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if e.Index != nil {
		if err := e.Index.Remove(ctx, id); err != nil {
			log.Printf("index: remove %s: %v", id, err)
		}
	}
	return nil
}

// IndexDocument chunks and embeds a document, replacing its chunk set.
// Either every chunk of the new set is stored or none is: on failure the
// document is marked failed with no chunks.
func (e *Engine) IndexDocument(ctx context.Context, id string) (*IndexResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	doc, err := e.DB.GetDocument(id)
	if err != nil {
		return nil, storeErr(err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if doc.Tier == store.TierCold {
		return nil, fmt.Errorf("document %s: %w", id, ErrArchived)
	}

	if err := e.DB.MarkProcessing(id); err != nil {
		return nil, storeErr(err)
	}

	spans := chunk.Split(doc.Body, e.chunkOptions())
	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}

	vectors, embedded, err := e.embedAll(ctx, texts)
	if err != nil {
		return e.failIndex(ctx, id, len(texts), embedded, err)
	}

	model := e.Embedder.Model()
	chunks := make([]store.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = store.Chunk{
			Ordinal:   s.Ordinal,
			Text:      s.Text,
			Overlap:   s.Overlap,
			Embedding: vectors[i],
			Model:     model,
		}
	}
	if err := e.DB.CommitChunks(id, chunks); err != nil {
		return nil, storeErr(err)
	}

	if e.Index != nil {
		entries := make([]vectorindex.Entry, len(chunks))
		for i, c := range chunks {
			c.DocumentID = id
			entries[i] = indexEntry(c)
		}
		if err := e.Index.Replace(ctx, id, entries); err != nil {
			log.Printf("index: replace %s: %v", id, err)
		}
	}

	log.Printf("index: %s processed (%d chunks)", id, len(chunks))
	return &IndexResult{DocumentID: id, Status: store.StatusProcessed, ChunkCount: len(chunks)}, nil
}

func (e *Engine) failIndex(ctx context.Context, id string, total, embedded int, cause error) (*IndexResult, error) {
	reason := cause.Error()
	if err := e.DB.FailDocument(id, reason); err != nil {
		return nil, storeErr(err)
	}
	if e.Index != nil {
		if err := e.Index.Remove(ctx, id); err != nil {
			log.Printf("index: remove %s: %v", id, err)
		}
	}
	log.Printf("index: %s failed after %d/%d chunks: %v", id, embedded, total, cause)

	err := cause
	if embedded > 0 {
		err = fmt.Errorf("%w: %d of %d chunks embedded: %w", ErrPartialIndexFailure, embedded, total, cause)
	} else if !errors.Is(cause, ErrModelUnavailable) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", ErrModelUnavailable, cause)
	}
	return &IndexResult{DocumentID: id, Status: store.StatusFailed, Error: reason}, err
}

// embedAll embeds texts in batches, returning normalized vectors and the
// number embedded before any failure.
func (e *Engine) embedAll(ctx context.Context, texts []string) ([][]float64, int, error) {
	out := make([][]float64, 0, len(texts))
	dims := 0
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, len(out), err
		}
		end := min(start+e.batchSize, len(texts))

		vecs, err := e.Embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, len(out), err
		}
		if len(vecs) != end-start {
			return nil, len(out), fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) == 0 || embed.IsZero(v) {
				return nil, len(out), fmt.Errorf("embedder returned an empty vector")
			}
			if dims == 0 {
				dims = len(v)
			} else if len(v) != dims {
				return nil, len(out), fmt.Errorf("embedding dimensions changed from %d to %d", dims, len(v))
			}
			embed.Normalize(v)
			out = append(out, v)
		}
	}
	return out, len(out), nil
}
