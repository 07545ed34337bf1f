package store

import (
	"database/sql"
	"fmt"
)

// Document types accepted by the store.
const (
	TypeNote     = "note"
	TypeBookmark = "bookmark"
	TypeFile     = "file"
)

// Processing statuses. A document moves unprocessed → processing →
// processed | failed, and back to processing on re-index.
const (
	StatusUnprocessed = "unprocessed"
	StatusProcessing  = "processing"
	StatusProcessed   = "processed"
	StatusFailed      = "failed"
)

// Memory tiers a document can live in.
const (
	TierWarm = "warm"
	TierCold = "cold"
)

// Document is a user-saved item.
type Document struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	LastError   string `json:"last_error,omitempty"`
	Tier        string `json:"tier"`
	ArchiveID   string `json:"archive_id,omitempty"`
	Revision    int64  `json:"revision"` // bumped on every body change
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	ProcessedAt *int64 `json:"processed_at,omitempty"`
}

const documentColumns = `id, doc_type, title, body, status, chunk_count, last_error,
	tier, archive_id, revision, created_at, updated_at, processed_at`

// CreateDocument inserts a new document in the unprocessed state.
// CreatedAt defaults to now when zero.
func (db *DB) CreateDocument(d *Document) error {
	now := nowMillis()
	if d.CreatedAt == 0 {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Status = StatusUnprocessed
	d.Tier = TierWarm
	d.ChunkCount = 0

	_, err := db.Exec(`
		INSERT INTO documents (id, doc_type, title, body, status, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Type, d.Title, d.Body, d.Status, d.Tier, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID, or nil if not found.
func (db *DB) GetDocument(id string) (*Document, error) {
	row := db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns documents newest first.
func (db *DB) ListDocuments(limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+documentColumns+` FROM documents
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// UpdateDocumentBody replaces the title and text of a warm document and
// resets it to unprocessed. Returns false if no warm document matched.
func (db *DB) UpdateDocumentBody(id, title, body string) (bool, error) {
	res, err := db.Exec(`
		UPDATE documents SET title = ?, body = ?, status = ?, revision = revision + 1, updated_at = ?
		WHERE id = ? AND tier = ?
	`, title, body, StatusUnprocessed, nowMillis(), id, TierWarm)
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkProcessing moves a document into the processing state.
func (db *DB) MarkProcessing(id string) error {
	_, err := db.Exec(`UPDATE documents SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		StatusProcessing, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// FailDocument discards every chunk of the document and records the
// failure reason, in one transaction.
func (db *DB) FailDocument(id, reason string) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("discard chunks: %w", err)
		}
		_, err := tx.Exec(`
			UPDATE documents SET status = ?, chunk_count = 0, last_error = ?, updated_at = ?
			WHERE id = ?
		`, StatusFailed, reason, nowMillis(), id)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	})
}

// DeleteDocument removes a document and its chunks. The chunk delete is
// explicit because foreign_keys is a per-connection pragma.
func (db *DB) DeleteDocument(id string) (bool, error) {
	var n int64
	err := db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n > 0, err
}

// AgedWarmDocuments returns warm documents created before the cutoff,
// oldest first.
func (db *DB) AgedWarmDocuments(before int64) ([]Document, error) {
	rows, err := db.Query(`SELECT `+documentColumns+` FROM documents
		WHERE tier = ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`, TierWarm, before)
	if err != nil {
		return nil, fmt.Errorf("aged documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// StaleDocuments returns IDs of processed documents with at least one
// chunk embedded by a model other than the given one.
func (db *DB) StaleDocuments(model string) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT d.id FROM documents d
		JOIN chunks c ON c.document_id = d.id
		WHERE d.status = ? AND c.model != ?
		ORDER BY d.id
	`, StatusProcessed, model)
	if err != nil {
		return nil, fmt.Errorf("stale documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var d Document
	var lastErr, archiveID sql.NullString
	var processedAt sql.NullInt64
	err := s.Scan(&d.ID, &d.Type, &d.Title, &d.Body, &d.Status, &d.ChunkCount, &lastErr,
		&d.Tier, &archiveID, &d.Revision, &d.CreatedAt, &d.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	d.LastError = lastErr.String
	d.ArchiveID = archiveID.String
	if processedAt.Valid {
		v := processedAt.Int64
		d.ProcessedAt = &v
	}
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}
