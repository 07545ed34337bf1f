package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mranderson01901234/los/internal/embed"
	"github.com/mranderson01901234/los/internal/store"
)

// Scope selects which tiers a search covers.
type Scope string

const (
	ScopeWarm Scope = "warm"
	ScopeCold Scope = "cold"
	ScopeAll  Scope = "all"
)

// Result methods.
const (
	MethodVector  = "vector"
	MethodLexical = "lexical"
)

// ErrInvalidScope is returned for an unrecognized Scope.
var ErrInvalidScope = errors.New("invalid search scope")

// lexicalFetchLimit bounds the rows pulled from the store per lexical pass.
const lexicalFetchLimit = 200

// phraseWeight is how much a full-phrase occurrence counts against a
// single term occurrence.
const phraseWeight = 3

// SearchOpts configures a search. Zero TopK and MinScore fall back to the
// configured defaults; an empty Scope covers every tier.
type SearchOpts struct {
	TopK     int
	MinScore float64
	Scope    Scope
}

// SearchResult is one ranked match.
type SearchResult struct {
	ChunkRef    string  `json:"chunk_ref"`
	Score       float64 `json:"score"`
	Text        string  `json:"text"`
	SourceDocID string  `json:"source_doc_id,omitempty"`
	ArchiveID   string  `json:"archive_id,omitempty"`
	Tier        string  `json:"tier"`
	Method      string  `json:"method"`

	createdAt int64
	ordinal   int
	seq       int64
}

type candidate struct {
	SearchResult
	vec []float64
}

// Search ranks stored chunks and archive summaries against query.
// Semantic matches come first; lexical matches fill any remaining slots,
// and stand alone when the query cannot be embedded.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	opts, err := e.resolveOpts(opts)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var results []SearchResult
	qvec, err := e.Embedder.Embed(ctx, query)
	switch {
	case err != nil:
		log.Printf("search: embedding query failed, using lexical matching: %v", err)
	case embed.IsZero(qvec):
		log.Printf("search: query %q has no embedding features, using lexical matching", query)
	default:
		results, err = e.semantic(ctx, qvec, opts)
		if err != nil {
			return nil, err
		}
	}

	if len(results) < opts.TopK {
		seen := make(map[string]bool, len(results))
		for _, r := range results {
			seen[r.ChunkRef] = true
		}
		extra, err := e.lexical(query, opts, seen)
		if err != nil {
			return nil, err
		}
		results = append(results, extra[:min(len(extra), opts.TopK-len(results))]...)
	}
	return results, nil
}

func (e *Engine) resolveOpts(opts SearchOpts) (SearchOpts, error) {
	if opts.TopK <= 0 {
		opts.TopK = e.retrieval.TopK
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MinScore <= 0 {
		opts.MinScore = e.retrieval.MinScore
	}
	switch opts.Scope {
	case "":
		opts.Scope = ScopeAll
	case ScopeWarm, ScopeCold, ScopeAll:
	default:
		return opts, fmt.Errorf("%w: %q", ErrInvalidScope, opts.Scope)
	}
	return opts, nil
}

func (s Scope) warm() bool { return s == ScopeWarm || s == ScopeAll }
func (s Scope) cold() bool { return s == ScopeCold || s == ScopeAll }

func (e *Engine) semantic(ctx context.Context, qvec []float64, opts SearchOpts) ([]SearchResult, error) {
	var cands []candidate
	if opts.Scope.warm() {
		warm, err := e.warmCandidates(ctx, qvec, opts.TopK)
		if err != nil {
			return nil, err
		}
		cands = append(cands, warm...)
	}
	if opts.Scope.cold() {
		archives, err := e.DB.ListArchives()
		if err != nil {
			return nil, storeErr(err)
		}
		for _, a := range archives {
			if len(a.Embedding) > 0 {
				cands = append(cands, archiveCandidate(a))
			}
		}
	}

	var results []SearchResult
	for _, c := range cands {
		// Vectors from another model or dimensionality score 0 and drop out.
		score := math.Max(0, embed.CosineSimilarity(qvec, c.vec))
		if score < opts.MinScore {
			continue
		}
		r := c.SearchResult
		r.Score = score
		r.Method = MethodVector
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// warmCandidates narrows through the vector index when one is attached,
// scanning every Warm chunk otherwise. Index hits are re-scored exactly.
func (e *Engine) warmCandidates(ctx context.Context, qvec []float64, topK int) ([]candidate, error) {
	var chunks []store.Chunk
	var err error
	if e.Index != nil {
		hits, ierr := e.Index.Nearest(ctx, qvec, max(topK*4, 50))
		if ierr == nil {
			ids := make([]int64, len(hits))
			for i, h := range hits {
				ids[i] = h.ChunkID
			}
			chunks, err = e.DB.ChunksByIDs(ids)
			if err != nil {
				return nil, storeErr(err)
			}
			return chunkCandidates(chunks), nil
		}
		log.Printf("search: vector index query failed, scanning: %v", ierr)
	}
	chunks, err = e.DB.WarmChunks()
	if err != nil {
		return nil, storeErr(err)
	}
	return chunkCandidates(chunks), nil
}

func chunkCandidates(chunks []store.Chunk) []candidate {
	out := make([]candidate, len(chunks))
	for i, c := range chunks {
		out[i] = candidate{SearchResult: chunkResult(c), vec: c.Embedding}
	}
	return out
}

func chunkResult(c store.Chunk) SearchResult {
	return SearchResult{
		ChunkRef:    "chunk:" + strconv.FormatInt(c.ID, 10),
		Text:        c.Text,
		SourceDocID: c.DocumentID,
		Tier:        store.TierWarm,
		createdAt:   c.DocCreatedAt,
		ordinal:     c.Ordinal,
		seq:         c.ID,
	}
}

func archiveCandidate(a store.Archive) candidate {
	return candidate{SearchResult: archiveResult(a), vec: a.Embedding}
}

func archiveResult(a store.Archive) SearchResult {
	return SearchResult{
		ChunkRef:  "archive:" + a.ID,
		Text:      a.Summary,
		ArchiveID: a.ID,
		Tier:      store.TierCold,
		createdAt: a.CreatedAt,
	}
}

// lexical returns case-insensitive substring matches not in seen, ranked
// by weighted occurrence count.
func (e *Engine) lexical(query string, opts SearchOpts, seen map[string]bool) ([]SearchResult, error) {
	phrase := strings.ToLower(query)
	terms := queryTerms(query)
	like := terms
	if len(like) == 0 {
		like = []string{phrase}
	}

	var pool []SearchResult
	if opts.Scope.warm() {
		chunks, err := e.DB.LexicalChunks(like, lexicalFetchLimit)
		if err != nil {
			return nil, storeErr(err)
		}
		for _, c := range chunks {
			pool = append(pool, chunkResult(c))
		}
	}
	if opts.Scope.cold() {
		archives, err := e.DB.LexicalArchives(like, lexicalFetchLimit)
		if err != nil {
			return nil, storeErr(err)
		}
		for _, a := range archives {
			pool = append(pool, archiveResult(a))
		}
	}

	type scored struct {
		SearchResult
		count int
	}
	var matches []scored
	for _, r := range pool {
		if seen[r.ChunkRef] {
			continue
		}
		count, matched := countMatches(r.Text, phrase, terms)
		if count == 0 {
			continue
		}
		r.Method = MethodLexical
		r.Score = lexicalScore(matched, len(terms), strings.Contains(strings.ToLower(r.Text), phrase))
		matches = append(matches, scored{r, count})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		return lessTiebreak(matches[i].SearchResult, matches[j].SearchResult)
	})

	out := make([]SearchResult, len(matches))
	for i, m := range matches {
		out[i] = m.SearchResult
	}
	return out, nil
}

// countMatches returns the weighted occurrence count of phrase and terms
// in text, and how many distinct terms occur.
func countMatches(text, phrase string, terms []string) (count, matched int) {
	lower := strings.ToLower(text)
	if phrase != "" {
		count += phraseWeight * strings.Count(lower, phrase)
	}
	for _, t := range terms {
		if n := strings.Count(lower, t); n > 0 {
			count += n
			matched++
		}
	}
	return count, matched
}

func lexicalScore(matched, terms int, phrase bool) float64 {
	if phrase || terms == 0 {
		return 1
	}
	return float64(matched) / float64(terms)
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "what": true,
	"did": true, "does": true, "about": true, "with": true, "from": true, "that": true,
	"this": true, "have": true, "has": true, "you": true, "my": true, "me": true,
	"of": true, "to": true, "in": true, "on": true, "is": true, "it": true, "do": true,
	"an": true, "at": true, "or": true, "how": true, "when": true, "where": true,
}

// queryTerms returns the distinct content words of a query, keeping
// stopwords only when nothing else is left.
func queryTerms(query string) []string {
	tokens := embed.Tokenize(query)
	seen := make(map[string]bool, len(tokens))
	var terms, all []string
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		all = append(all, t)
		if !stopwords[t] {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return all
	}
	return terms
}

func sortResults(rs []SearchResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return lessTiebreak(rs[i], rs[j])
	})
}

// lessTiebreak orders equal-score results: newer source first, then
// lower ordinal, then lower id.
func lessTiebreak(a, b SearchResult) bool {
	if a.createdAt != b.createdAt {
		return a.createdAt > b.createdAt
	}
	if a.ordinal != b.ordinal {
		return a.ordinal < b.ordinal
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.ChunkRef < b.ChunkRef
}
