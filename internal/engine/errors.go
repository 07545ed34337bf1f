package engine

import (
	"errors"
	"fmt"

	"github.com/mranderson01901234/los/internal/embed"
)

var (
	// ErrModelUnavailable means the embedding or summarization capability
	// could not be reached. Summarization failures wrap it as well.
	ErrModelUnavailable = embed.ErrModelUnavailable

	// ErrPartialIndexFailure means some embedding batches of a document
	// succeeded before one failed. The partial set is discarded.
	ErrPartialIndexFailure = errors.New("partial index failure")

	// ErrStoreUnavailable wraps every failure of the underlying store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNotFound             = errors.New("not found")
	ErrArchived             = errors.New("document is archived")
	ErrConsolidationRunning = errors.New("consolidation already running")
	ErrPlanNotFound         = errors.New("consolidation plan not found or expired")
	ErrNoSummarizer         = errors.New("no summarization model configured")
)

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
