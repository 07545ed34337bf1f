package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mranderson01901234/los/internal/store"
)

const (
	hotOpen  = "<hot-memory>\n"
	hotClose = "</hot-memory>"

	// maxExcerptChars caps one excerpt line in the rendered blob.
	maxExcerptChars = 280
)

// HotMemory is the always-available context block assembled per query.
type HotMemory struct {
	Text      string           `json:"text"`
	Profile   string           `json:"profile,omitempty"`
	Facts     []store.Fact     `json:"facts"`
	Interests []store.Interest `json:"interests"`
	Excerpts  []store.Excerpt  `json:"excerpts"`
	Truncated bool             `json:"truncated,omitempty"`
}

// FactIDs returns the IDs of the facts included in the rendered text.
func (h *HotMemory) FactIDs() []int64 {
	ids := make([]int64, len(h.Facts))
	for i, f := range h.Facts {
		ids[i] = f.ID
	}
	return ids
}

// hotWriter renders lines into a builder until the character budget runs out.
type hotWriter struct {
	b      strings.Builder
	budget int
	full   bool
}

func (w *hotWriter) line(s string) bool {
	if w.full {
		return false
	}
	if w.b.Len()+len(s)+1 > w.budget {
		w.full = true
		return false
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
	return true
}

// BuildHotMemory assembles the profile summary, top facts, top interests
// and recent conversation excerpts into one blob of at most MaxHotChars.
// It is rebuilt from the store on every call and has no side effects;
// callers that show facts to a model report them with SurfaceFacts.
func (e *Engine) BuildHotMemory(ctx context.Context) (*HotMemory, error) {
	profile, err := e.DB.GetProfile()
	if err != nil {
		return nil, storeErr(err)
	}
	facts, err := e.DB.TopFacts(e.tiers.HotFacts)
	if err != nil {
		return nil, storeErr(err)
	}
	interests, err := e.DB.TopInterests(e.tiers.HotInterests)
	if err != nil {
		return nil, storeErr(err)
	}
	excerpts, err := e.DB.RecentExcerpts(e.tiers.HotExcerpts)
	if err != nil {
		return nil, storeErr(err)
	}

	budget := e.tiers.MaxHotChars
	if budget <= 0 {
		budget = 4000
	}
	w := &hotWriter{budget: budget - len(hotOpen) - len(hotClose)}
	hot := &HotMemory{}

	if profile != "" {
		if w.line("## About You") && w.line(truncateClean(profile, w.budget/2)) {
			hot.Profile = profile
		}
	}

	if len(facts) > 0 && w.line("\n## Facts") {
		for _, f := range facts {
			label := f.Category
			if f.Subject != "" {
				label = f.Subject
			}
			text := "- " + f.Text
			if label != "" {
				text = fmt.Sprintf("- [%s] %s", label, f.Text)
			}
			if !w.line(text) {
				break
			}
			hot.Facts = append(hot.Facts, f)
		}
	}

	if len(interests) > 0 && w.line("\n## Interests") {
		for _, in := range interests {
			if !w.line("- " + in.Name) {
				break
			}
			hot.Interests = append(hot.Interests, in)
		}
	}

	if len(excerpts) > 0 && w.line("\n## Recent Conversation") {
		for _, ex := range excerpts {
			ts := time.UnixMilli(ex.CreatedAt).UTC().Format("2006-01-02 15:04")
			line := fmt.Sprintf("- [%s] %s: %s", ts, ex.Role, truncateClean(oneLine(ex.Content), maxExcerptChars))
			if !w.line(line) {
				break
			}
			hot.Excerpts = append(hot.Excerpts, ex)
		}
	}

	hot.Truncated = w.full
	hot.Text = hotOpen + w.b.String() + hotClose
	return hot, nil
}

// SurfaceFacts records that the given facts were shown, raising their
// access counts for future ranking.
func (e *Engine) SurfaceFacts(ctx context.Context, ids []int64) error {
	return storeErr(e.DB.TouchFacts(ids, e.now().UnixMilli()))
}

// AddFact stores a new fact about the user.
func (e *Engine) AddFact(ctx context.Context, f *store.Fact) error {
	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		return fmt.Errorf("%w: empty fact", ErrInvalidInput)
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = e.now().UnixMilli()
	}
	return storeErr(e.DB.AddFact(f))
}

// RecordEngagement adds delta to an interest's engagement score.
func (e *Engine) RecordEngagement(ctx context.Context, name string, delta float64) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("%w: empty interest", ErrInvalidInput)
	}
	return storeErr(e.DB.AddEngagement(name, delta))
}

// SetProfile replaces the profile summary.
func (e *Engine) SetProfile(ctx context.Context, summary string) error {
	return storeErr(e.DB.SetProfile(strings.TrimSpace(summary)))
}

// AddExcerpt records one conversation turn for hot memory and later
// consolidation.
func (e *Engine) AddExcerpt(ctx context.Context, ex *store.Excerpt) error {
	if ex.Role != "user" && ex.Role != "assistant" {
		return fmt.Errorf("%w: role must be user or assistant", ErrInvalidInput)
	}
	if strings.TrimSpace(ex.Content) == "" {
		return fmt.Errorf("%w: empty excerpt", ErrInvalidInput)
	}
	if ex.CreatedAt == 0 {
		ex.CreatedAt = e.now().UnixMilli()
	}
	return storeErr(e.DB.AddExcerpt(ex))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
