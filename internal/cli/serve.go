package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mranderson01901234/los/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Re-embed anything produced by a different model in the background.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if n, err := a.engine.ReindexStale(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "reindex stale: %v\n", err)
		} else if n > 0 {
			fmt.Fprintf(os.Stderr, "  re-indexed %d documents for %s\n", n, a.engine.Embedder.Model())
		}
	}()

	if a.engine.LLM != nil && a.cfg.Tiers.Schedule != "" {
		if err := a.engine.StartSchedule(a.cfg.Tiers.Schedule); err != nil {
			return fmt.Errorf("start consolidation schedule: %w", err)
		}
		fmt.Fprintf(os.Stderr, "  consolidation: %s\n", a.cfg.Tiers.Schedule)
	}

	addr := a.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(a.engine, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "los serving on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-done:
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
