package engine

import (
	"context"
	"strings"

	"github.com/mranderson01901234/los/internal/router"
)

// Prepared is everything assembled for a query before a model sees it.
// When Trivial is set the query is fully answered and nothing else runs.
type Prepared struct {
	Query   string          `json:"query"`
	Trivial *router.Trivial `json:"trivial,omitempty"`
	Plan    *router.Plan    `json:"plan,omitempty"`
	Hot     *HotMemory      `json:"hot,omitempty"`
	Results []SearchResult  `json:"results,omitempty"`
}

// NeedsExternal reports whether a web lookup should follow.
func (p *Prepared) NeedsExternal() bool {
	return p.Plan != nil && p.Plan.NeedsExternal()
}

// Prepare runs the query pipeline: pre-router short-circuit, routing,
// hot memory and tier search. A local plan whose search finds nothing
// above the similarity threshold is widened to hybrid.
func (e *Engine) Prepare(ctx context.Context, query string) (*Prepared, error) {
	query = strings.TrimSpace(query)
	out := &Prepared{Query: query}

	pre := router.PreRouter{Clock: e.now}
	if t := pre.CheckTrivial(query); t.Handled {
		out.Trivial = &t
		return out, nil
	}

	plan := router.Route(query)
	hot, err := e.BuildHotMemory(ctx)
	if err != nil {
		return nil, err
	}
	out.Hot = hot

	if plan.NeedsLocal() {
		results, err := e.Search(ctx, query, SearchOpts{Scope: Scope(plan.Scope)})
		if err != nil {
			return nil, err
		}
		out.Results = results
		if !hasSemantic(results) {
			plan = plan.Escalate("no local results above the similarity threshold")
		}
	}
	out.Plan = &plan
	return out, nil
}

func hasSemantic(results []SearchResult) bool {
	for _, r := range results {
		if r.Method == MethodVector {
			return true
		}
	}
	return false
}
