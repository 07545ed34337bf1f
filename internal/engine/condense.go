package engine

import (
	"fmt"
	"strings"
)

const (
	docMax            = 1000
	userExcerptMax    = 1000
	firstLastReplyMax = 1000
	midReplyMax       = 200

	// maxCondensedChars bounds one summarization prompt's input.
	maxCondensedChars = 24000
)

const (
	itemDocument = "document"
	itemExcerpt  = "excerpt"
)

// batchItem is one Warm item headed for the Cold tier.
type batchItem struct {
	Kind      string
	DocID     string
	Revision  int64 // document revision the text was read at
	ExcerptID int64
	Label     string // document type and title, or excerpt role
	Text      string
	CreatedAt int64
}

// condense reduces a batch to the text the summarizer sees:
// - documents up to 1000 chars each
// - all user excerpts, up to 1000 chars
// - first and last assistant excerpts up to 1000 chars, the rest 200
// Items past maxCondensedChars are counted but not included.
func condense(items []batchItem) string {
	lastReply, firstReply := -1, -1
	for i, it := range items {
		if it.Kind == itemExcerpt && it.Label == "assistant" {
			if firstReply < 0 {
				firstReply = i
			}
			lastReply = i
		}
	}

	var b strings.Builder
	omitted := 0
	for i, it := range items {
		limit := docMax
		switch {
		case it.Kind == itemDocument:
		case it.Label == "user":
			limit = userExcerptMax
		case i == firstReply || i == lastReply:
			limit = firstLastReplyMax
		default:
			limit = midReplyMax
		}

		entry := fmt.Sprintf("[%s] %s\n\n", strings.ToUpper(it.Label), clip(strings.TrimSpace(it.Text), limit))
		if b.Len()+len(entry) > maxCondensedChars {
			omitted++
			continue
		}
		b.WriteString(entry)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "(%d more items omitted)", omitted)
	}
	return strings.TrimSpace(b.String())
}

// clip cuts s to limit bytes at a rune boundary and marks the cut.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
