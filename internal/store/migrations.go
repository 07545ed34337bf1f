package store

import (
	"database/sql"
	"fmt"
	"strings"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "documents: saved notes, bookmarks and files",
		SQL: `
CREATE TABLE documents (
    id           TEXT PRIMARY KEY,
    doc_type     TEXT NOT NULL CHECK (doc_type IN ('note', 'bookmark', 'file')),
    title        TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'unprocessed'
                 CHECK (status IN ('unprocessed', 'processing', 'processed', 'failed')),
    chunk_count  INTEGER NOT NULL DEFAULT 0,
    last_error   TEXT,
    tier         TEXT NOT NULL DEFAULT 'warm' CHECK (tier IN ('warm', 'cold')),
    archive_id   TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    processed_at INTEGER
);

CREATE INDEX idx_documents_tier_created ON documents(tier, created_at);
`,
	},
	{
		Version:     2,
		Description: "chunks: embedded text spans of documents",
		SQL: `
CREATE TABLE chunks (
    id          INTEGER PRIMARY KEY,
    document_id TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    text        TEXT NOT NULL,
    overlap     INTEGER NOT NULL DEFAULT 0,
    embedding   BLOB NOT NULL,
    dimensions  INTEGER NOT NULL,
    model       TEXT NOT NULL,
    created_at  INTEGER NOT NULL,

    UNIQUE (document_id, ordinal),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX idx_chunks_document ON chunks(document_id);
`,
	},
	{
		Version:     3,
		Description: "hot memory: profile, facts, interests",
		SQL: `
CREATE TABLE profile (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    summary    TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE facts (
    id           INTEGER PRIMARY KEY,
    subject      TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    text         TEXT NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_access  INTEGER,
    created_at   INTEGER NOT NULL
);

CREATE INDEX idx_facts_access ON facts(access_count DESC, last_access DESC);

CREATE TABLE interests (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    engagement REAL NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "conversation excerpts",
		SQL: `
CREATE TABLE excerpts (
    id              INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content         TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_excerpts_created ON excerpts(created_at);
`,
	},
	{
		Version:     5,
		Description: "cold archives and their source items",
		SQL: `
CREATE TABLE archives (
    id              TEXT PRIMARY KEY,
    period          TEXT NOT NULL,
    summary         TEXT NOT NULL,
    embedding       BLOB,
    dimensions      INTEGER NOT NULL DEFAULT 0,
    model           TEXT NOT NULL DEFAULT '',
    item_count      INTEGER NOT NULL,
    original_size   INTEGER NOT NULL,
    compressed_size INTEGER NOT NULL,
    ratio           REAL NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_archives_period ON archives(period);

CREATE TABLE archive_items (
    archive_id  TEXT NOT NULL,
    source_kind TEXT NOT NULL CHECK (source_kind IN ('document', 'excerpt')),
    source_id   TEXT NOT NULL,

    PRIMARY KEY (source_kind, source_id),
    FOREIGN KEY (archive_id) REFERENCES archives(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     6,
		Description: "compression_jobs: append-only consolidation log",
		SQL: `
CREATE TABLE compression_jobs (
    id             INTEGER PRIMARY KEY,
    run_id         TEXT NOT NULL UNIQUE,
    triggered_by   TEXT NOT NULL,
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL,
    items_archived INTEGER NOT NULL,
    batches_done   INTEGER NOT NULL,
    batches_failed INTEGER NOT NULL,
    archive_size   INTEGER NOT NULL,
    error          TEXT
);

CREATE TRIGGER compression_jobs_no_update BEFORE UPDATE ON compression_jobs
BEGIN
    SELECT RAISE(ABORT, 'compression_jobs is append-only');
END;

CREATE TRIGGER compression_jobs_no_delete BEFORE DELETE ON compression_jobs
BEGIN
    SELECT RAISE(ABORT, 'compression_jobs is append-only');
END;
`,
	},
	{
		Version:     7,
		Description: "lowercased match text, document revisions",
		SQL: `
ALTER TABLE chunks ADD COLUMN text_lower TEXT;
ALTER TABLE archives ADD COLUMN summary_lower TEXT;
ALTER TABLE documents ADD COLUMN revision INTEGER NOT NULL DEFAULT 0;
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return db.backfillLower()
}

// backfillLower fills match columns that predate them. SQLite's lower()
// only folds ASCII, so the folding happens here.
func (db *DB) backfillLower() error {
	return db.withTx(func(tx *sql.Tx) error {
		for _, t := range []struct{ table, src, dst string }{
			{"chunks", "text", "text_lower"},
			{"archives", "summary", "summary_lower"},
		} {
			rows, err := tx.Query(`SELECT rowid, ` + t.src + ` FROM ` + t.table + ` WHERE ` + t.dst + ` IS NULL`)
			if err != nil {
				return fmt.Errorf("backfill %s: %w", t.table, err)
			}
			pending := map[int64]string{}
			for rows.Next() {
				var key int64
				var text string
				if err := rows.Scan(&key, &text); err != nil {
					rows.Close()
					return fmt.Errorf("backfill %s: %w", t.table, err)
				}
				pending[key] = text
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("backfill %s: %w", t.table, err)
			}
			for key, text := range pending {
				if _, err := tx.Exec(`UPDATE `+t.table+` SET `+t.dst+` = ? WHERE rowid = ?`,
					strings.ToLower(text), key); err != nil {
					return fmt.Errorf("backfill %s: %w", t.table, err)
				}
			}
		}
		return nil
	})
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
