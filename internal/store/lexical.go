package store

import (
	"fmt"
	"strings"
)

// likeEscaper escapes LIKE wildcards so terms match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeClause builds "col LIKE ? ESCAPE '\' OR ..." for the given terms.
// col must hold text already folded with strings.ToLower.
func likeClause(col string, terms []string) (string, []any) {
	parts := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		parts[i] = col + ` LIKE ? ESCAPE '\'`
		args[i] = "%" + likeEscaper.Replace(strings.ToLower(t)) + "%"
	}
	return strings.Join(parts, " OR "), args
}

// LexicalChunks returns warm chunks whose text contains any of the terms
// (case-insensitive, Unicode folding), newest document first, at most limit rows.
// Ranking by match quality is left to the caller.
func (db *DB) LexicalChunks(terms []string, limit int) ([]Chunk, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	clause, args := likeClause("c.text_lower", terms)
	args = append([]any{TierWarm}, args...)
	args = append(args, limit)
	rows, err := db.Query(`SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.tier = ? AND (`+clause+`)
		ORDER BY d.created_at DESC, c.ordinal
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// LexicalArchives returns archives whose summary contains any of the terms.
func (db *DB) LexicalArchives(terms []string, limit int) ([]Archive, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	clause, args := likeClause("summary_lower", terms)
	args = append(args, limit)
	rows, err := db.Query(`SELECT `+archiveColumns+` FROM archives
		WHERE `+clause+`
		ORDER BY created_at DESC, id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical archives: %w", err)
	}
	defer rows.Close()
	return scanArchives(rows)
}
