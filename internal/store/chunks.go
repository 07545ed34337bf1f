package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Chunk is an embedded span of a document's text. Overlap is the length
// in bytes of the prefix shared with the previous chunk.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Overlap    int       `json:"overlap"`
	Embedding  []float64 `json:"-"`
	Model      string    `json:"model"`
	CreatedAt  int64     `json:"created_at"`

	// DocCreatedAt is the owning document's creation time, filled by
	// candidate queries for recency tie-breaks.
	DocCreatedAt int64 `json:"-"`
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// CommitChunks replaces a document's chunk set and marks it processed in
// a single transaction. Readers see either the old set or the new one.
func (db *DB) CommitChunks(docID string, chunks []Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("commit chunks: chunk %d has no embedding", i)
		}
	}

	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
			return fmt.Errorf("purge chunks: %w", err)
		}

		now := nowMillis()
		stmt, err := tx.Prepare(`
			INSERT INTO chunks (document_id, ordinal, text, text_lower, overlap, embedding, dimensions, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for i := range chunks {
			c := &chunks[i]
			c.DocumentID = docID
			c.CreatedAt = now
			res, err := stmt.Exec(docID, c.Ordinal, c.Text, strings.ToLower(c.Text), c.Overlap,
				encodeEmbedding(c.Embedding), len(c.Embedding), c.Model, now)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.Ordinal, err)
			}
			c.ID, _ = res.LastInsertId()
		}

		res, err := tx.Exec(`
			UPDATE documents SET status = ?, chunk_count = ?, last_error = NULL,
				processed_at = ?, updated_at = ?
			WHERE id = ?
		`, StatusProcessed, len(chunks), now, now, docID)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("mark processed: document %s not found", docID)
		}
		return nil
	})
}

const chunkColumns = `c.id, c.document_id, c.ordinal, c.text, c.overlap, c.embedding,
	c.model, c.created_at, d.created_at`

// ChunksByDocument returns a document's chunks in ordinal order.
func (db *DB) ChunksByDocument(docID string) ([]Chunk, error) {
	rows, err := db.Query(`SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = ? ORDER BY c.ordinal`, docID)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// WarmChunks returns every chunk belonging to a warm document.
func (db *DB) WarmChunks() ([]Chunk, error) {
	rows, err := db.Query(`SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.tier = ?`, TierWarm)
	if err != nil {
		return nil, fmt.Errorf("warm chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByIDs returns the chunks with the given IDs, in no particular order.
func (db *DB) ChunksByIDs(ids []int64) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := db.Query(`SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("chunks by ids: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// CountChunks returns the number of stored chunks for a document.
func (db *DB) CountChunks(docID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, docID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.Overlap, &blob,
			&c.Model, &c.CreatedAt, &c.DocCreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
