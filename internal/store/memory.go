package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Fact is a short durable statement about the user.
type Fact struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject,omitempty"`
	Category    string `json:"category,omitempty"`
	Text        string `json:"text"`
	AccessCount int    `json:"access_count"`
	LastAccess  *int64 `json:"last_access,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Interest is a topic with an engagement score.
type Interest struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Engagement float64 `json:"engagement"`
	UpdatedAt  int64   `json:"updated_at"`
}

// AddFact inserts a fact and sets its ID.
func (db *DB) AddFact(f *Fact) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = nowMillis()
	}
	res, err := db.Exec(`
		INSERT INTO facts (subject, category, text, access_count, last_access, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.Subject, f.Category, f.Text, f.AccessCount, f.LastAccess, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("add fact: %w", err)
	}
	f.ID, _ = res.LastInsertId()
	return nil
}

// TopFacts returns the n most accessed facts. Ties go to the most recently
// accessed; never-accessed facts sort last.
func (db *DB) TopFacts(n int) ([]Fact, error) {
	rows, err := db.Query(`
		SELECT id, subject, category, text, access_count, last_access, created_at
		FROM facts
		ORDER BY access_count DESC, COALESCE(last_access, 0) DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var last sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Subject, &f.Category, &f.Text, &f.AccessCount, &last, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if last.Valid {
			v := last.Int64
			f.LastAccess = &v
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// TouchFacts increments the access count of each fact and stamps its last
// access time.
func (db *DB) TouchFacts(ids []int64, at int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := []any{at}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	_, err := db.Exec(`
		UPDATE facts SET access_count = access_count + 1, last_access = ?
		WHERE id IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("touch facts: %w", err)
	}
	return nil
}

// AddEngagement adds delta to an interest's engagement score, creating
// the interest if needed.
func (db *DB) AddEngagement(name string, delta float64) error {
	now := nowMillis()
	_, err := db.Exec(`
		INSERT INTO interests (name, engagement, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET engagement = engagement + excluded.engagement,
			updated_at = excluded.updated_at
	`, name, delta, now)
	if err != nil {
		return fmt.Errorf("add engagement: %w", err)
	}
	return nil
}

// TopInterests returns the n interests with the highest engagement.
func (db *DB) TopInterests(n int) ([]Interest, error) {
	rows, err := db.Query(`
		SELECT id, name, engagement, updated_at FROM interests
		ORDER BY engagement DESC, updated_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top interests: %w", err)
	}
	defer rows.Close()

	var out []Interest
	for rows.Next() {
		var in Interest
		if err := rows.Scan(&in.ID, &in.Name, &in.Engagement, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// SetProfile stores the user profile summary.
func (db *DB) SetProfile(summary string) error {
	_, err := db.Exec(`
		INSERT INTO profile (id, summary, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at
	`, summary, nowMillis())
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

// GetProfile returns the profile summary, or "" if none has been set.
func (db *DB) GetProfile() (string, error) {
	var summary string
	err := db.QueryRow(`SELECT summary FROM profile WHERE id = 1`).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return summary, nil
}
