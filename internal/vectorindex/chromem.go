// Package vectorindex keeps Warm-tier chunk vectors in an in-process
// chromem-go collection for nearest-neighbour lookup. SQLite remains the
// source of truth; the index is rebuilt from it on startup.
package vectorindex

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Entry is one chunk vector to index.
type Entry struct {
	ChunkID    int64
	DocumentID string
	Text       string
	Vector     []float64
}

// Hit is a nearest-neighbour result.
type Hit struct {
	ChunkID    int64
	Similarity float64
}

// Chromem is a chunk index backed by a chromem-go collection.
type Chromem struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromem creates an empty index.
func NewChromem() (*Chromem, error) {
	db := chromem.NewDB()
	// Embeddings are always supplied, so no embedding func is needed.
	col, err := db.CreateCollection("warm_chunks", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Chromem{col: col}, nil
}

// Replace swaps a document's entries for the given set.
func (c *Chromem) Replace(ctx context.Context, docID string, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.col.Delete(ctx, map[string]string{"document_id": docID}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		for i, v := range e.Vector {
			vec[i] = float32(v)
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.FormatInt(e.ChunkID, 10),
			Content:   e.Text,
			Embedding: vec,
			Metadata:  map[string]string{"document_id": docID},
		})
	}
	if err := c.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add %s: %w", docID, err)
	}
	return nil
}

// Remove drops every entry of a document.
func (c *Chromem) Remove(ctx context.Context, docID string) error {
	return c.Replace(ctx, docID, nil)
}

// Nearest returns up to n chunk IDs closest to query.
func (c *Chromem) Nearest(ctx context.Context, query []float64, n int) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// chromem-go requires nResults <= collection size
	if count := c.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	for i, v := range query {
		q[i] = float32(v)
	}
	results, err := c.col.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ChunkID: id, Similarity: float64(r.Similarity)})
	}
	return hits, nil
}

// Len returns the number of indexed chunks.
func (c *Chromem) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Count()
}
