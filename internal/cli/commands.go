package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mranderson01901234/los/internal/engine"
	"github.com/mranderson01901234/los/internal/router"
	"github.com/mranderson01901234/los/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "Document ID (default: generated)")
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "Document title")
	addCmd.Flags().StringVar(&addType, "type", "", "Document type: note, bookmark or file (default note, or file with --file)")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "Read the body from a file ('-' for stdin)")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "Similarity threshold (default from config)")
	searchCmd.Flags().StringVar(&searchScope, "scope", "all", "Tier scope: warm, cold or all")

	consolidateCmd.Flags().BoolVar(&consolidatePlan, "plan", false, "Show what would be archived without changing anything")
	consolidateCmd.Flags().BoolVarP(&consolidateYes, "yes", "y", false, "Archive without asking for confirmation")
}

// --- add command ---

var (
	addID    string
	addTitle string
	addType  string
	addFile  string
)

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Save and index a document",
	Long:  "Save a note, bookmark or file. The body is the joined arguments, or the contents of --file.",
	RunE:  runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	in := engine.DocumentInput{ID: addID, Type: addType, Title: addTitle}

	switch {
	case addFile == "-":
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		in.Body = string(body)
	case addFile != "":
		body, err := os.ReadFile(addFile)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		in.Body = string(body)
		if in.Type == "" {
			in.Type = store.TypeFile
		}
		if in.Title == "" {
			in.Title = filepath.Base(addFile)
		}
	case len(args) > 0:
		in.Body = strings.Join(args, " ")
	default:
		return fmt.Errorf("nothing to add: pass text or --file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, res, err := a.engine.AddDocument(ctx, in)
	if doc == nil {
		return fmt.Errorf("add document: %w", err)
	}
	if err != nil {
		fmt.Printf("Saved %s, but indexing failed: %v\n", doc.ID, err)
		fmt.Printf("Retry with: los index %s\n", doc.ID)
		return nil
	}
	fmt.Printf("Saved %s (%s, %d chunks)\n", doc.ID, doc.Type, res.ChunkCount)
	return nil
}

// --- index command ---

var indexCmd = &cobra.Command{
	Use:   "index <id>",
	Short: "Re-index a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.IndexDocument(ctx, args[0])
		if err != nil {
			return fmt.Errorf("index %s: %w", args[0], err)
		}
		fmt.Printf("%s: %s (%d chunks)\n", res.DocumentID, res.Status, res.ChunkCount)
		return nil
	},
}

// --- search command ---

var (
	searchLimit    int
	searchMinScore float64
	searchScope    string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved documents and archives",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.engine.Search(ctx, query, engine.SearchOpts{
		TopK:     searchLimit,
		MinScore: searchMinScore,
		Scope:    engine.Scope(searchScope),
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		source := r.SourceDocID
		if source == "" {
			source = r.ArchiveID
		}
		fmt.Printf("%d. [%.3f %s/%s] %s\n", i+1, r.Score, r.Tier, r.Method, source)
		text := strings.Join(strings.Fields(r.Text), " ")
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Printf("   %s\n\n", text)
	}
	return nil
}

// --- hot command ---

var hotCmd = &cobra.Command{
	Use:   "hot",
	Short: "Print the hot memory block",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		hot, err := a.engine.BuildHotMemory(ctx)
		if err != nil {
			return fmt.Errorf("build hot memory: %w", err)
		}
		fmt.Println(hot.Text)
		if hot.Truncated {
			fmt.Fprintf(os.Stderr, "note: truncated to %d chars\n", a.cfg.Tiers.MaxHotChars)
		}
		return nil
	},
}

// --- route command ---

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Show how a query would be handled",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		if t := router.CheckTrivial(query); t.Handled {
			fmt.Printf("trivial (%s): %s\n", t.Category, t.Answer)
			return nil
		}
		plan := router.Route(query)
		fmt.Printf("plan: %s", plan.Kind)
		if plan.Scope != "" {
			fmt.Printf(" (scope %s)", plan.Scope)
		}
		fmt.Println()
		for _, r := range plan.Reasons {
			fmt.Printf("  - %s\n", r)
		}
		return nil
	},
}

// --- consolidate command ---

var (
	consolidatePlan bool
	consolidateYes  bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Archive aged Warm items into Cold summaries",
	Long: "Plan a consolidation, show it, and archive after confirmation. " +
		"--plan only shows the plan; --yes skips the prompt.",
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.engine.PlanConsolidation(ctx)
	if err != nil {
		return fmt.Errorf("plan consolidation: %w", err)
	}
	if plan.ItemCount == 0 {
		fmt.Printf("Nothing older than %s to archive.\n", plan.Cutoff.Format("2006-01-02"))
		return nil
	}

	fmt.Printf("%d items (%d chars) older than %s in %d batches:\n",
		plan.ItemCount, plan.OriginalSize, plan.Cutoff.Format("2006-01-02"), len(plan.Batches))
	for _, b := range plan.Batches {
		fmt.Printf("  %s: %d documents, %d excerpts, %d chars\n",
			b.Period, len(b.DocumentIDs), len(b.ExcerptIDs), b.OriginalSize)
	}
	if consolidatePlan {
		return nil
	}

	if !consolidateYes && !confirm("Archive these items?") {
		fmt.Println("Aborted.")
		return nil
	}

	res, err := a.engine.CommitConsolidation(ctx, plan.Token)
	if res != nil {
		fmt.Printf("Archived %d items into %d summaries (%d batches failed).\n",
			res.ItemsArchived, res.BatchesDone, res.BatchesFailed)
		for _, e := range res.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// --- reindex command ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed documents indexed with a different model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.ReindexStale(ctx)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		fmt.Printf("Re-indexed %d documents for %s\n", n, a.engine.Embedder.Model())
		return nil
	},
}
