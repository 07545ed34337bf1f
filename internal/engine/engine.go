package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mranderson01901234/los/internal/chunk"
	"github.com/mranderson01901234/los/internal/config"
	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/llm"
	"github.com/mranderson01901234/los/internal/store"
	"github.com/mranderson01901234/los/internal/vectorindex"
	"github.com/robfig/cron/v3"
)

// VectorIndex is an optional nearest-neighbour index over Warm chunks.
// The store stays authoritative; the index only narrows candidates.
type VectorIndex interface {
	Replace(ctx context.Context, docID string, entries []vectorindex.Entry) error
	Remove(ctx context.Context, docID string) error
	Nearest(ctx context.Context, query []float64, n int) ([]vectorindex.Hit, error)
}

// Engine orchestrates indexing, retrieval, hot memory and consolidation.
type Engine struct {
	DB       *store.DB
	LLM      llm.Client // nil disables consolidation
	Embedder embed.Embedder
	Index    VectorIndex

	// Now is the clock used for ages, timestamps and the pre-router.
	Now func() time.Time

	retrieval config.RetrievalConfig
	tiers     config.TierConfig
	batchSize int

	locks         keyedMutex
	consolidating sync.Mutex

	plansMu sync.Mutex
	plans   map[string]*ConsolidationPlan

	cron *cron.Cron
}

// New creates an Engine. The embedder is required; client may be nil.
func New(db *store.DB, emb embed.Embedder, client llm.Client, cfg config.Config) *Engine {
	batch := cfg.Embedding.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Engine{
		DB:        db,
		LLM:       client,
		Embedder:  emb,
		Now:       time.Now,
		retrieval: cfg.Retrieval,
		tiers:     cfg.Tiers,
		batchSize: batch,
		plans:     make(map[string]*ConsolidationPlan),
	}
}

// SetIndex attaches a vector index. Call RebuildIndex afterwards to load it.
func (e *Engine) SetIndex(idx VectorIndex) {
	e.Index = idx
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) chunkOptions() chunk.Options {
	return chunk.Options{
		TargetSize:        e.retrieval.TargetSize,
		Overlap:           e.retrieval.Overlap,
		SmallDocThreshold: e.retrieval.SmallDocThreshold,
		SmallTargetSize:   e.retrieval.SmallTargetSize,
	}
}

// RebuildIndex loads every Warm chunk from the store into the vector index.
func (e *Engine) RebuildIndex(ctx context.Context) (int, error) {
	if e.Index == nil {
		return 0, nil
	}
	chunks, err := e.DB.WarmChunks()
	if err != nil {
		return 0, storeErr(err)
	}

	byDoc := make(map[string][]vectorindex.Entry)
	var order []string
	for _, c := range chunks {
		if _, ok := byDoc[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], indexEntry(c))
	}
	for _, id := range order {
		if err := e.Index.Replace(ctx, id, byDoc[id]); err != nil {
			return 0, fmt.Errorf("index %s: %w", id, err)
		}
	}
	return len(chunks), nil
}

// ReindexStale re-indexes processed documents whose chunks were embedded
// by a model other than the current one.
func (e *Engine) ReindexStale(ctx context.Context) (int, error) {
	ids, err := e.DB.StaleDocuments(e.Embedder.Model())
	if err != nil {
		return 0, storeErr(err)
	}

	reindexed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return reindexed, ctx.Err()
		}
		if _, err := e.IndexDocument(ctx, id); err != nil {
			log.Printf("reindex: %s: %v", id, err)
			continue
		}
		reindexed++
	}
	return reindexed, nil
}

// Stop shuts down the consolidation schedule, waiting for a running job.
func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
		e.cron = nil
	}
}

func indexEntry(c store.Chunk) vectorindex.Entry {
	return vectorindex.Entry{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		Text:       c.Text,
		Vector:     c.Embedding,
	}
}
