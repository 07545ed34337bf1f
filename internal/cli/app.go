package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mranderson01901234/los/internal/config"
	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/engine"
	"github.com/mranderson01901234/los/internal/llm"
	"github.com/mranderson01901234/los/internal/store"
	"github.com/mranderson01901234/los/internal/vectorindex"
)

// app bundles what every command needs. Close releases it.
type app struct {
	cfg    config.Config
	db     *store.DB
	engine *engine.Engine
}

func (a *app) Close() {
	a.engine.Stop()
	a.db.Close()
}

// resolveConfigPath picks the --config flag, then $LOS_CONFIG, then the
// default under the user's home directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if v := os.Getenv("LOS_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".los", "config.yaml")
}

// openApp loads configuration and wires the store, embedder, summarizer
// and optional vector index into an engine.
func openApp(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	emb, err := embed.New(cfg.Embedding)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: summarizer not configured (%v), consolidation disabled\n", err)
	}

	eng := engine.New(db, emb, client, cfg)
	if verbose {
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  embedder: %s\n", emb.Model())
		if client != nil {
			fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		} else {
			fmt.Fprintf(os.Stderr, "  llm: none\n")
		}
	}

	if cfg.Retrieval.Index == "chromem" {
		idx, err := vectorindex.NewChromem()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create vector index: %w", err)
		}
		eng.SetIndex(idx)
		n, err := eng.RebuildIndex(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("rebuild vector index: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "  vector index: chromem (%d chunks)\n", n)
		}
	}

	return &app{cfg: cfg, db: db, engine: eng}, nil
}

// signalContext is cancelled on interrupt so long runs stop between batches.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
