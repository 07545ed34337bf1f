package store

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "documents", "chunks", "profile", "facts",
		"interests", "excerpts", "archives", "archive_items", "compression_jobs"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestDocumentConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`INSERT INTO documents (id, doc_type, created_at, updated_at) VALUES ('a', 'note', 1, 1)`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	_, err = db.Exec(`INSERT INTO documents (id, doc_type, created_at, updated_at) VALUES ('b', 'video', 1, 1)`)
	if err == nil {
		t.Error("expected error for invalid doc_type, got nil")
	}

	_, err = db.Exec(`INSERT INTO documents (id, doc_type, status, created_at, updated_at) VALUES ('c', 'note', 'done', 1, 1)`)
	if err == nil {
		t.Error("expected error for invalid status, got nil")
	}
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	db := testDB(t)

	doc := &Document{ID: "doc-1", Type: TypeNote, Body: "hello"}
	if err := db.CreateDocument(doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.CommitChunks(doc.ID, []Chunk{{Ordinal: 0, Text: "hello", Embedding: []float64{1, 0}, Model: "m"}}); err != nil {
		t.Fatalf("CommitChunks: %v", err)
	}

	if ok, err := db.DeleteDocument(doc.ID); err != nil || !ok {
		t.Fatalf("DeleteDocument = %v, %v", ok, err)
	}
	n, err := db.CountChunks(doc.ID)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if n != 0 {
		t.Errorf("chunks after delete = %d, want 0", n)
	}
}
