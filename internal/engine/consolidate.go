package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/llm"
	"github.com/mranderson01901234/los/internal/store"
)

// Run triggers recorded in the compression job log.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerPlan     = "plan"
)

// ConsolidationBatch is one calendar month's worth (or part) of aged items.
type ConsolidationBatch struct {
	Period       string   `json:"period"`
	DocumentIDs  []string `json:"document_ids"`
	ExcerptIDs   []int64  `json:"excerpt_ids"`
	OriginalSize int      `json:"original_size"`

	items []batchItem
}

// ConsolidationPlan is a previewed run awaiting confirmation.
type ConsolidationPlan struct {
	Token        string               `json:"token"`
	Cutoff       time.Time            `json:"cutoff"`
	ExpiresAt    time.Time            `json:"expires_at"`
	ItemCount    int                  `json:"item_count"`
	OriginalSize int                  `json:"original_size"`
	Batches      []ConsolidationBatch `json:"batches"`
}

// ConsolidationResult summarizes one run.
type ConsolidationResult struct {
	RunID         string   `json:"run_id"`
	ItemsArchived int      `json:"items_archived"`
	ArchiveSize   int64    `json:"archive_size"`
	BatchesDone   int      `json:"batches_done"`
	BatchesFailed int      `json:"batches_failed"`
	ArchiveIDs    []string `json:"archive_ids,omitempty"`
	Interrupted   bool     `json:"interrupted,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// RunConsolidation moves Warm items older than the cold age into Cold-tier
// archive summaries. Each batch commits on its own; a failed batch stays
// in the Warm tier for the next run. On cancellation the partial result
// is returned together with ctx.Err().
func (e *Engine) RunConsolidation(ctx context.Context) (*ConsolidationResult, error) {
	return e.consolidate(ctx, TriggerManual, nil)
}

// PlanConsolidation previews the next run without changing anything.
// The returned token confirms it via CommitConsolidation until the plan
// expires.
func (e *Engine) PlanConsolidation(ctx context.Context) (*ConsolidationPlan, error) {
	if e.LLM == nil {
		return nil, ErrNoSummarizer
	}
	now := e.now()
	cutoff := now.Add(-e.tiers.ColdAge)
	batches, err := e.collectBatches(cutoff)
	if err != nil {
		return nil, err
	}

	ttl := e.tiers.PlanTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	plan := &ConsolidationPlan{
		Token:     uuid.NewString(),
		Cutoff:    cutoff,
		ExpiresAt: now.Add(ttl),
		Batches:   batches,
	}
	for _, b := range batches {
		plan.ItemCount += len(b.items)
		plan.OriginalSize += b.OriginalSize
	}

	e.plansMu.Lock()
	for tok, p := range e.plans {
		if !now.Before(p.ExpiresAt) {
			delete(e.plans, tok)
		}
	}
	e.plans[plan.Token] = plan
	e.plansMu.Unlock()
	return plan, nil
}

// CommitConsolidation runs a previously planned consolidation. Only items
// that were in the plan and are still eligible get archived. A token can
// be used once.
func (e *Engine) CommitConsolidation(ctx context.Context, token string) (*ConsolidationResult, error) {
	e.plansMu.Lock()
	plan, ok := e.plans[token]
	delete(e.plans, token)
	e.plansMu.Unlock()

	if !ok || !e.now().Before(plan.ExpiresAt) {
		return nil, ErrPlanNotFound
	}
	return e.consolidate(ctx, TriggerPlan, plan)
}

func (e *Engine) consolidate(ctx context.Context, trigger string, plan *ConsolidationPlan) (*ConsolidationResult, error) {
	if e.LLM == nil {
		return nil, ErrNoSummarizer
	}
	if !e.consolidating.TryLock() {
		return nil, ErrConsolidationRunning
	}
	defer e.consolidating.Unlock()

	started := e.now()
	res := &ConsolidationResult{RunID: uuid.NewString()}

	cutoff := started.Add(-e.tiers.ColdAge)
	if plan != nil {
		cutoff = plan.Cutoff
	}
	batches, err := e.collectBatches(cutoff)
	if err == nil && plan != nil {
		batches = restrictToPlan(batches, plan, e.batchLimit())
	}

	var runErr error
	if err != nil {
		runErr = err
	}
	for _, b := range batches {
		if runErr != nil {
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			res.Interrupted = true
			runErr = cerr
			break
		}
		arch, err := e.archiveBatch(ctx, b)
		if err != nil {
			res.BatchesFailed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", b.Period, err))
			log.Printf("consolidate: batch %s (%d items) left in warm tier: %v", b.Period, len(b.items), err)
			if errors.Is(err, ErrStoreUnavailable) {
				runErr = err
			}
			continue
		}
		res.BatchesDone++
		res.ItemsArchived += arch.ItemCount
		res.ArchiveIDs = append(res.ArchiveIDs, arch.ID)
	}

	size, err := e.DB.ArchiveSize()
	if err != nil && runErr == nil {
		runErr = storeErr(err)
	}
	res.ArchiveSize = size

	job := &store.CompressionJob{
		RunID:         res.RunID,
		TriggeredBy:   trigger,
		StartedAt:     started.UnixMilli(),
		FinishedAt:    e.now().UnixMilli(),
		ItemsArchived: res.ItemsArchived,
		BatchesDone:   res.BatchesDone,
		BatchesFailed: res.BatchesFailed,
		ArchiveSize:   res.ArchiveSize,
	}
	if runErr != nil {
		job.Error = runErr.Error()
	} else if len(res.Errors) > 0 {
		job.Error = strings.Join(res.Errors, "; ")
	}
	if err := e.DB.AppendCompressionJob(job); err != nil {
		log.Printf("consolidate: recording job %s: %v", res.RunID, err)
		if runErr == nil {
			runErr = storeErr(err)
		}
	}

	log.Printf("consolidate: run %s (%s) archived %d items in %d batches, %d failed",
		res.RunID, trigger, res.ItemsArchived, res.BatchesDone, res.BatchesFailed)
	return res, runErr
}

func (e *Engine) batchLimit() int {
	if e.tiers.BatchSize > 0 {
		return e.tiers.BatchSize
	}
	return 20
}

// collectBatches groups Warm documents and excerpts created before cutoff
// by calendar month (UTC), oldest first, splitting months into batches of
// at most BatchSize items.
func (e *Engine) collectBatches(cutoff time.Time) ([]ConsolidationBatch, error) {
	before := cutoff.UnixMilli()
	docs, err := e.DB.AgedWarmDocuments(before)
	if err != nil {
		return nil, storeErr(err)
	}
	excerpts, err := e.DB.AgedExcerpts(before)
	if err != nil {
		return nil, storeErr(err)
	}

	items := make([]batchItem, 0, len(docs)+len(excerpts))
	for _, d := range docs {
		items = append(items, batchItem{
			Kind:      itemDocument,
			DocID:     d.ID,
			Revision:  d.Revision,
			Label:     d.Type,
			Text:      strings.TrimSpace(d.Title + "\n" + d.Body),
			CreatedAt: d.CreatedAt,
		})
	}
	for _, ex := range excerpts {
		items = append(items, batchItem{
			Kind:      itemExcerpt,
			ExcerptID: ex.ID,
			Label:     ex.Role,
			Text:      ex.Content,
			CreatedAt: ex.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt < items[j].CreatedAt
	})

	return groupBatches(items, e.batchLimit()), nil
}

func groupBatches(items []batchItem, limit int) []ConsolidationBatch {
	var batches []ConsolidationBatch
	for _, it := range items {
		period := time.UnixMilli(it.CreatedAt).UTC().Format("2006-01")
		n := len(batches)
		if n == 0 || batches[n-1].Period != period || len(batches[n-1].items) >= limit {
			batches = append(batches, ConsolidationBatch{Period: period})
			n++
		}
		b := &batches[n-1]
		b.items = append(b.items, it)
		b.OriginalSize += len(it.Text)
		if it.Kind == itemDocument {
			b.DocumentIDs = append(b.DocumentIDs, it.DocID)
		} else {
			b.ExcerptIDs = append(b.ExcerptIDs, it.ExcerptID)
		}
	}
	return batches
}

// restrictToPlan keeps only items named by the plan, regrouping them.
func restrictToPlan(batches []ConsolidationBatch, plan *ConsolidationPlan, limit int) []ConsolidationBatch {
	docs := make(map[string]bool)
	excerpts := make(map[int64]bool)
	for _, b := range plan.Batches {
		for _, id := range b.DocumentIDs {
			docs[id] = true
		}
		for _, id := range b.ExcerptIDs {
			excerpts[id] = true
		}
	}

	var kept []batchItem
	for _, b := range batches {
		for _, it := range b.items {
			if (it.Kind == itemDocument && docs[it.DocID]) || (it.Kind == itemExcerpt && excerpts[it.ExcerptID]) {
				kept = append(kept, it)
			}
		}
	}
	return groupBatches(kept, limit)
}

// summaryTarget is the character budget for a batch's summary.
func (e *Engine) summaryTarget(originalSize int) int {
	ratio := e.tiers.CompressionRatio
	if ratio <= 0 {
		ratio = 100
	}
	target := int(float64(originalSize) / ratio)
	return max(target, e.tiers.MinSummaryChars, 1)
}

// archiveBatch summarizes one batch and commits it to the Cold tier.
func (e *Engine) archiveBatch(ctx context.Context, b ConsolidationBatch) (*store.Archive, error) {
	target := e.summaryTarget(b.OriginalSize)
	prompt := llm.SummarizationPrompt(b.Period, condense(b.items), target)

	resp, err := e.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: summarize %s: %w", ErrModelUnavailable, b.Period, err)
	}
	summary := ""
	if resp != nil {
		summary = strings.TrimSpace(resp.Content)
	}
	if summary == "" {
		return nil, fmt.Errorf("%w: summarize %s: empty summary", ErrModelUnavailable, b.Period)
	}
	if len(summary) > target {
		summary = truncateClean(summary, target)
	}

	arch := &store.Archive{
		ID:             uuid.NewString(),
		Period:         b.Period,
		Summary:        summary,
		ItemCount:      len(b.items),
		OriginalSize:   b.OriginalSize,
		CompressedSize: len(summary),
		Ratio:          float64(b.OriginalSize) / float64(len(summary)),
		CreatedAt:      e.now().UnixMilli(),
	}
	// An archive without a vector is still reachable lexically.
	if vec, err := e.Embedder.Embed(ctx, summary); err != nil {
		log.Printf("consolidate: embedding summary for %s: %v", b.Period, err)
	} else if !embed.IsZero(vec) {
		embed.Normalize(vec)
		arch.Embedding = vec
		arch.Model = e.Embedder.Model()
	}

	docs := make([]store.ArchivedDoc, 0, len(b.DocumentIDs))
	for _, it := range b.items {
		if it.Kind == itemDocument {
			docs = append(docs, store.ArchivedDoc{ID: it.DocID, Revision: it.Revision})
		}
	}

	unlock := e.locks.LockAll(b.DocumentIDs)
	defer unlock()

	// Items edited or deleted while the summary was written stay warm and
	// are picked up again by the next run.
	if err := e.DB.CommitArchive(arch, docs, b.ExcerptIDs); err != nil {
		if errors.Is(err, store.ErrSourceChanged) {
			return nil, fmt.Errorf("batch %s changed during summarization: %w", b.Period, err)
		}
		return nil, storeErr(err)
	}
	if e.Index != nil {
		for _, id := range b.DocumentIDs {
			if err := e.Index.Remove(ctx, id); err != nil {
				log.Printf("index: remove %s: %v", id, err)
			}
		}
	}
	return arch, nil
}
