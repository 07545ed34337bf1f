package cli

import (
	"path/filepath"
	"testing"

	"github.com/mranderson01901234/los/internal/store"
)

func TestResolveConfigPath(t *testing.T) {
	configPath = ""
	t.Setenv("LOS_CONFIG", "/etc/los.yaml")
	if got := resolveConfigPath(); got != "/etc/los.yaml" {
		t.Errorf("env path = %q", got)
	}

	configPath = "/tmp/flag.yaml"
	t.Cleanup(func() { configPath = "" })
	if got := resolveConfigPath(); got != "/tmp/flag.yaml" {
		t.Errorf("flag path = %q", got)
	}
}

func TestAddCommandStoresDocument(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "los.db")
	t.Setenv("LOS_DB", dbPath)
	t.Setenv("ANTHROPIC_API_KEY", "")

	rootCmd.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"add", "--id", "cli-note", "--title", "From the CLI", "Remember to repot the basil.",
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath, addID, addTitle = "", "", ""
	})
	if err := Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	doc, err := db.GetDocument("cli-note")
	if err != nil || doc == nil {
		t.Fatalf("GetDocument = %v, %v", doc, err)
	}
	if doc.Title != "From the CLI" || doc.Status != store.StatusProcessed || doc.ChunkCount != 1 {
		t.Errorf("doc = %+v", doc)
	}
}
