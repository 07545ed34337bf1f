package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Archive is a Cold-tier summary covering a batch of aged Warm items.
type Archive struct {
	ID             string    `json:"id"`
	Period         string    `json:"period"` // YYYY-MM
	Summary        string    `json:"summary"`
	Embedding      []float64 `json:"-"`
	Model          string    `json:"model,omitempty"`
	ItemCount      int       `json:"item_count"`
	OriginalSize   int       `json:"original_size"`
	CompressedSize int       `json:"compressed_size"`
	Ratio          float64   `json:"ratio"`
	CreatedAt      int64     `json:"created_at"`
}

// ErrSourceChanged is returned by CommitArchive when a source item is no
// longer in the state it was read in. Nothing is committed.
var ErrSourceChanged = errors.New("archive source changed")

// ArchivedDoc names a document to retire at the revision that was summarized.
type ArchivedDoc struct {
	ID       string
	Revision int64
}

// CommitArchive stores an archive and retires its source items from the
// Warm tier in one transaction: documents lose their chunks and move to
// the cold tier, excerpts are deleted. A document that was edited,
// deleted or archived since it was read fails the whole commit with
// ErrSourceChanged.
func (db *DB) CommitArchive(a *Archive, docs []ArchivedDoc, excerptIDs []int64) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = nowMillis()
	}
	var blob []byte
	if len(a.Embedding) > 0 {
		blob = encodeEmbedding(a.Embedding)
	}

	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO archives (id, period, summary, summary_lower, embedding, dimensions, model,
				item_count, original_size, compressed_size, ratio, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Period, a.Summary, strings.ToLower(a.Summary), blob, len(a.Embedding), a.Model,
			a.ItemCount, a.OriginalSize, a.CompressedSize, a.Ratio, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert archive: %w", err)
		}

		for _, d := range docs {
			res, err := tx.Exec(`
				UPDATE documents SET tier = ?, archive_id = ?, chunk_count = 0, updated_at = ?
				WHERE id = ? AND tier = ? AND revision = ?
			`, TierCold, a.ID, a.CreatedAt, d.ID, TierWarm, d.Revision)
			if err != nil {
				return fmt.Errorf("retire document %s: %w", d.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("document %s: %w", d.ID, ErrSourceChanged)
			}
			if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, d.ID); err != nil {
				return fmt.Errorf("retire chunks %s: %w", d.ID, err)
			}
			if _, err := tx.Exec(`INSERT INTO archive_items (archive_id, source_kind, source_id) VALUES (?, 'document', ?)`,
				a.ID, d.ID); err != nil {
				return fmt.Errorf("archive item %s: %w", d.ID, err)
			}
		}

		for _, id := range excerptIDs {
			res, err := tx.Exec(`DELETE FROM excerpts WHERE id = ?`, id)
			if err != nil {
				return fmt.Errorf("retire excerpt %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("excerpt %d: %w", id, ErrSourceChanged)
			}
			if _, err := tx.Exec(`INSERT INTO archive_items (archive_id, source_kind, source_id) VALUES (?, 'excerpt', ?)`,
				a.ID, strconv.FormatInt(id, 10)); err != nil {
				return fmt.Errorf("archive item excerpt %d: %w", id, err)
			}
		}
		return nil
	})
}

// ListArchives returns every archive, newest first.
func (db *DB) ListArchives() ([]Archive, error) {
	rows, err := db.Query(`SELECT ` + archiveColumns + ` FROM archives ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()
	return scanArchives(rows)
}

const archiveColumns = `id, period, summary, embedding, model, item_count, original_size,
	compressed_size, ratio, created_at`

func scanArchives(rows *sql.Rows) ([]Archive, error) {
	var out []Archive
	for rows.Next() {
		var a Archive
		var blob []byte
		if err := rows.Scan(&a.ID, &a.Period, &a.Summary, &blob, &a.Model, &a.ItemCount,
			&a.OriginalSize, &a.CompressedSize, &a.Ratio, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		if len(blob) > 0 {
			a.Embedding = decodeEmbedding(blob)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArchiveSize returns the total compressed size of the Cold tier in bytes.
func (db *DB) ArchiveSize() (int64, error) {
	var n int64
	if err := db.QueryRow(`SELECT COALESCE(SUM(compressed_size), 0) FROM archives`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive size: %w", err)
	}
	return n, nil
}

// CompressionJob is one row of the append-only consolidation log.
type CompressionJob struct {
	ID            int64  `json:"id"`
	RunID         string `json:"run_id"`
	TriggeredBy   string `json:"triggered_by"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    int64  `json:"finished_at"`
	ItemsArchived int    `json:"items_archived"`
	BatchesDone   int    `json:"batches_done"`
	BatchesFailed int    `json:"batches_failed"`
	ArchiveSize   int64  `json:"archive_size"`
	Error         string `json:"error,omitempty"`
}

// AppendCompressionJob records a finished consolidation run.
func (db *DB) AppendCompressionJob(j *CompressionJob) error {
	var errText any
	if j.Error != "" {
		errText = j.Error
	}
	res, err := db.Exec(`
		INSERT INTO compression_jobs (run_id, triggered_by, started_at, finished_at,
			items_archived, batches_done, batches_failed, archive_size, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.RunID, j.TriggeredBy, j.StartedAt, j.FinishedAt, j.ItemsArchived,
		j.BatchesDone, j.BatchesFailed, j.ArchiveSize, errText)
	if err != nil {
		return fmt.Errorf("append compression job: %w", err)
	}
	j.ID, _ = res.LastInsertId()
	return nil
}

// ListCompressionJobs returns the most recent runs first.
func (db *DB) ListCompressionJobs(limit int) ([]CompressionJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, run_id, triggered_by, started_at, finished_at, items_archived,
			batches_done, batches_failed, archive_size, error
		FROM compression_jobs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list compression jobs: %w", err)
	}
	defer rows.Close()

	var out []CompressionJob
	for rows.Next() {
		var j CompressionJob
		var errText sql.NullString
		if err := rows.Scan(&j.ID, &j.RunID, &j.TriggeredBy, &j.StartedAt, &j.FinishedAt,
			&j.ItemsArchived, &j.BatchesDone, &j.BatchesFailed, &j.ArchiveSize, &errText); err != nil {
			return nil, fmt.Errorf("scan compression job: %w", err)
		}
		j.Error = errText.String
		out = append(out, j)
	}
	return out, rows.Err()
}
