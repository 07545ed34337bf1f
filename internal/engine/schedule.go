package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/robfig/cron/v3"
)

// StartSchedule runs consolidation on the given cron spec ("@weekly",
// "0 3 * * 0", ...). An empty spec leaves scheduling off. Ticks that fire
// while a run is still going are skipped.
func (e *Engine) StartSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	logger := cron.VerbosePrintfLogger(log.New(os.Stderr, "cron: ", log.LstdFlags))
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, e.scheduledRun); err != nil {
		return fmt.Errorf("consolidation schedule %q: %w", spec, err)
	}
	e.Stop()
	e.cron = c
	c.Start()
	log.Printf("consolidate: scheduled %q", spec)
	return nil
}

func (e *Engine) scheduledRun() {
	res, err := e.consolidate(context.Background(), TriggerSchedule, nil)
	switch {
	case errors.Is(err, ErrConsolidationRunning):
		log.Printf("consolidate: scheduled run skipped, a run is in progress")
	case err != nil:
		log.Printf("consolidate: scheduled run failed: %v", err)
	case res.ItemsArchived > 0:
		log.Printf("consolidate: scheduled run archived %d items", res.ItemsArchived)
	}
}
