// Package chunk splits document text into overlapping spans sized for
// embedding. Spans are contiguous slices of the source, so dropping each
// span's leading overlap and concatenating gives back the original text.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls chunk sizing. Sizes are in characters (runes).
type Options struct {
	TargetSize        int
	Overlap           int
	SmallDocThreshold int // documents shorter than this use SmallTargetSize
	SmallTargetSize   int
}

// DefaultOptions returns the standard sizing: 500-char chunks with a
// 50-char overlap, and 200-char chunks for documents under 1000 chars.
func DefaultOptions() Options {
	return Options{
		TargetSize:        500,
		Overlap:           50,
		SmallDocThreshold: 1000,
		SmallTargetSize:   200,
	}
}

// Span is one chunk of a source text. Start and End are byte offsets into
// the source; Overlap is the number of leading bytes shared with the
// previous span.
type Span struct {
	Ordinal int
	Start   int
	End     int
	Overlap int
	Text    string
}

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// sizes returns the target and overlap to use for a text of n runes.
func (o Options) sizes(n int) (target, overlap int) {
	target, overlap = o.TargetSize, o.Overlap
	if n < o.SmallDocThreshold && o.SmallTargetSize > 0 {
		target = o.SmallTargetSize
		if overlap > target/4 {
			overlap = target / 4
		}
	}
	if target <= 0 {
		target = 1
	}
	if overlap >= target/2 {
		overlap = target / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	return target, overlap
}

// piece is a contiguous byte range of the source.
type piece struct {
	start, end int
	runes      int
	blank      bool
}

// Split chunks text. Empty or whitespace-only text yields no spans.
func Split(text string, opts Options) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	target, overlap := opts.sizes(utf8.RuneCountInString(text))

	var pieces []piece
	for _, para := range splitAt(text, 0, len(text), paragraphBreak) {
		if para.runes <= target {
			pieces = append(pieces, para)
			continue
		}
		for _, sent := range splitAt(text, para.start, para.end, sentenceEnd) {
			if sent.runes <= target {
				pieces = append(pieces, sent)
				continue
			}
			pieces = append(pieces, hardSplit(text, sent, target)...)
		}
	}

	base := pack(pieces, target)

	spans := make([]Span, len(base))
	for i, b := range base {
		start := b.start
		if i > 0 && overlap > 0 {
			prev := base[i-1]
			start = prev.end - tailBytes(text[prev.start:prev.end], overlap)
		}
		spans[i] = Span{
			Ordinal: i,
			Start:   start,
			End:     b.end,
			Overlap: b.start - start,
			Text:    text[start:b.end],
		}
	}
	return spans
}

// Reconstruct reverses Split by dropping each span's overlap.
func Reconstruct(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text[s.Overlap:])
	}
	return b.String()
}

// splitAt cuts text[start:end] after every match of re. Separators stay
// attached to the piece they end.
func splitAt(text string, start, end int, re *regexp.Regexp) []piece {
	segment := text[start:end]
	var out []piece
	pos := 0
	for _, m := range re.FindAllStringIndex(segment, -1) {
		if m[1] <= pos {
			continue
		}
		out = append(out, newPiece(text, start+pos, start+m[1]))
		pos = m[1]
	}
	if pos < len(segment) {
		out = append(out, newPiece(text, start+pos, end))
	}
	return out
}

func newPiece(text string, start, end int) piece {
	s := text[start:end]
	return piece{
		start: start,
		end:   end,
		runes: utf8.RuneCountInString(s),
		blank: strings.TrimSpace(s) == "",
	}
}

// hardSplit breaks an oversized piece into target-sized runs, cutting
// after the last whitespace when one falls in the back half of the run.
func hardSplit(text string, p piece, target int) []piece {
	var out []piece
	start := p.start
	for start < p.end {
		cut, count, lastSpace := start, 0, -1
		for cut < p.end && count < target {
			r, size := utf8.DecodeRuneInString(text[cut:])
			cut += size
			count++
			if unicode.IsSpace(r) && count > target/2 {
				lastSpace = cut
			}
		}
		if cut < p.end && lastSpace > start {
			cut = lastSpace
		}
		out = append(out, newPiece(text, start, cut))
		start = cut
	}
	return out
}

// pack greedily joins pieces into chunks of at most target runes.
// Whitespace-only pieces are absorbed so no chunk is blank.
func pack(pieces []piece, target int) []piece {
	var out []piece
	var cur piece
	open := false
	for _, p := range pieces {
		switch {
		case !open:
			cur, open = p, true
		case p.blank || cur.blank || cur.runes+p.runes <= target:
			cur.end = p.end
			cur.runes += p.runes
			cur.blank = cur.blank && p.blank
		default:
			out = append(out, cur)
			cur = p
		}
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// tailBytes returns the byte length of the last n runes of s, or len(s)
// when s is shorter.
func tailBytes(s string, n int) int {
	i := len(s)
	for count := 0; count < n && i > 0; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return len(s) - i
}
