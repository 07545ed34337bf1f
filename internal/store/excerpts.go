package store

import (
	"database/sql"
	"fmt"
)

// Excerpt is one conversation turn kept for Hot-memory context.
type Excerpt struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// AddExcerpt records a conversation turn.
func (db *DB) AddExcerpt(e *Excerpt) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = nowMillis()
	}
	res, err := db.Exec(`
		INSERT INTO excerpts (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, e.ConversationID, e.Role, e.Content, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add excerpt: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// RecentExcerpts returns the n most recent excerpts, oldest first.
func (db *DB) RecentExcerpts(n int) ([]Excerpt, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT * FROM excerpts ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent excerpts: %w", err)
	}
	defer rows.Close()
	return scanExcerpts(rows)
}

// AgedExcerpts returns excerpts created before the cutoff, oldest first.
func (db *DB) AgedExcerpts(before int64) ([]Excerpt, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, role, content, created_at FROM excerpts
		WHERE created_at < ? ORDER BY created_at ASC, id ASC
	`, before)
	if err != nil {
		return nil, fmt.Errorf("aged excerpts: %w", err)
	}
	defer rows.Close()
	return scanExcerpts(rows)
}

func scanExcerpts(rows *sql.Rows) ([]Excerpt, error) {
	var out []Excerpt
	for rows.Next() {
		var e Excerpt
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan excerpt: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
