package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/mranderson01901234/los/internal/store"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Size limits for stored documents.
const (
	maxTitleChars = 200
	maxBodyBytes  = 1 << 20
	maxIDChars    = 64
)

// DocumentInput is a document submitted for storage and indexing.
type DocumentInput struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

var validTypes = map[string]bool{
	store.TypeNote:     true,
	store.TypeBookmark: true,
	store.TypeFile:     true,
}

// validIDChar returns true if the character is allowed in a document ID.
func validIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// sanitizeID normalizes a caller-chosen ID to [a-z0-9_-].
// Spaces, dots and slashes collapse to one hyphen; other characters are dropped.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(id) {
		if validIDChar(r) {
			b.WriteRune(r)
			prevHyphen = (r == '-')
		} else if r == ' ' || r == '.' || r == '/' {
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-_")
}

// validateDocument checks a submission and returns the normalized form.
// An empty ID gets a fresh UUID; an empty type defaults to note.
func validateDocument(in DocumentInput) (DocumentInput, error) {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = store.TypeNote
	}
	if !validTypes[in.Type] {
		return in, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}

	if in.ID != "" {
		raw := in.ID
		in.ID = sanitizeID(raw)
		if in.ID == "" {
			return in, fmt.Errorf("%w: id %q is empty after sanitization", ErrInvalidInput, raw)
		}
		if len(in.ID) > maxIDChars {
			return in, fmt.Errorf("%w: id longer than %d chars", ErrInvalidInput, maxIDChars)
		}
	} else {
		in.ID = uuid.NewString()
	}

	if len(in.Body) > maxBodyBytes {
		return in, fmt.Errorf("%w: body is %d bytes, max %d", ErrInvalidInput, len(in.Body), maxBodyBytes)
	}

	in.Title = strings.TrimSpace(in.Title)
	if len(in.Title) > maxTitleChars {
		log.Printf("validate: truncating title for %s (%d → %d chars)", in.ID, len(in.Title), maxTitleChars)
		in.Title = truncateClean(in.Title, maxTitleChars)
	}
	return in, nil
}

// truncateClean truncates a string to maxLen bytes, cutting at the last
// word boundary when one is close, and never inside a UTF-8 sequence.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > cut*3/4 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
