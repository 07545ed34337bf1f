package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mranderson01901234/los/internal/router"
	"github.com/mranderson01901234/los/internal/store"
)

func TestPrepareTrivialSkipsModels(t *testing.T) {
	e, _, mock := testEngine(t)
	counting := newCounting(-1)
	e.Embedder = counting

	for _, q := range []string{"hi", "thanks!", "5 + 3", "what time is it"} {
		p, err := e.Prepare(context.Background(), q)
		if err != nil {
			t.Fatalf("Prepare(%q): %v", q, err)
		}
		if p.Trivial == nil || !p.Trivial.Handled || p.Plan != nil || p.Hot != nil {
			t.Errorf("Prepare(%q) = %+v, want trivial short-circuit", q, p)
		}
	}
	if counting.Calls() != 0 || mock.CallCount() != 0 {
		t.Errorf("embedder calls = %d, llm calls = %d; want 0", counting.Calls(), mock.CallCount())
	}

	p, _ := e.Prepare(context.Background(), "what time is it")
	if p.Trivial.Answer != "It's 12:00 PM." {
		t.Errorf("time answer = %q, want engine clock", p.Trivial.Answer)
	}
}

func TestPrepareWeatherPassesThrough(t *testing.T) {
	e, _, _ := testEngine(t)
	p, err := e.Prepare(context.Background(), "what's the weather in Atlanta")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.Trivial != nil || p.Plan.Kind != router.KindExternal || !p.NeedsExternal() {
		t.Errorf("prepared = %+v", p)
	}
	if p.Hot == nil {
		t.Error("hot memory missing")
	}
}

func TestPrepareLocalFallsBackToHybrid(t *testing.T) {
	e, _, _ := testEngine(t)
	p, err := e.Prepare(context.Background(), "find my notes on beekeeping")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.Plan.Kind != router.KindHybrid || !p.NeedsExternal() {
		t.Errorf("plan = %+v, want hybrid fallback", p.Plan)
	}
	if !strings.Contains(strings.Join(p.Plan.Reasons, ";"), "threshold") {
		t.Errorf("fallback reason missing: %v", p.Plan.Reasons)
	}
}

func TestPrepareLocalHit(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "garden", "Planted tomato seedlings along the south fence.")

	p, err := e.Prepare(context.Background(), "my tomato seedlings")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.Plan.Kind != router.KindLocal || p.NeedsExternal() {
		t.Fatalf("plan = %+v", p.Plan)
	}
	if len(p.Results) == 0 || p.Results[0].SourceDocID != "garden" {
		t.Errorf("results = %+v", p.Results)
	}
}

func TestPrepareSelfKnowledgeUsesHotMemoryOnly(t *testing.T) {
	e, _, _ := testEngine(t)
	e.SetProfile(context.Background(), "Gardener and amateur baker.")
	mustAdd(t, e, "x", "Something about me and my garden.")

	p, err := e.Prepare(context.Background(), "what do you know about me")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.Plan.Kind != router.KindNone || len(p.Results) != 0 {
		t.Errorf("plan = %+v results = %d", p.Plan, len(p.Results))
	}
	if !strings.Contains(p.Hot.Text, "Gardener and amateur baker.") {
		t.Errorf("hot memory = %q", p.Hot.Text)
	}
}

func TestPrepareTopicQuestionSearchesLocal(t *testing.T) {
	e, _, _ := testEngine(t)
	mustAdd(t, e, "sourdough", "My sourdough starter needs feeding every morning.")
	mustAdd(t, e, "bikes", "Replaced the chain on the commuter bike.")

	for _, q := range []string{"what do you know about sourdough", "tell me about my sourdough starter", "sourdough starter feeding"} {
		p, err := e.Prepare(context.Background(), q)
		if err != nil {
			t.Fatalf("Prepare(%q): %v", q, err)
		}
		if p.Plan == nil || !p.Plan.NeedsLocal() {
			t.Fatalf("Prepare(%q) plan = %+v, want a local search", q, p.Plan)
		}
		if len(p.Results) == 0 || p.Results[0].SourceDocID != "sourdough" {
			t.Errorf("Prepare(%q) results = %+v", q, p.Results)
		}
	}
}

// End to end: index three documents of 200, 2000 and 0 characters, find a
// phrase unique to the long one, then age everything into the Cold tier.
func TestEndToEnd(t *testing.T) {
	e, clock, _ := testEngine(t)
	ctx := context.Background()

	short := longText("window boxes", 200)
	long := longText("drip irrigation", 1900) + " The zucchini trellis collapsed during the August hailstorm."
	if len(short) != 200 || len(long) < 1950 {
		t.Fatalf("fixture sizes %d, %d", len(short), len(long))
	}

	clock.Set(testNow.Add(-100 * 24 * time.Hour))
	docs := map[string]string{"short": short, "long": long, "empty": ""}
	for id, body := range docs {
		mustAdd(t, e, id, body)
	}
	clock.Set(testNow)

	for id := range docs {
		doc, _ := e.DB.GetDocument(id)
		n, _ := e.DB.CountChunks(id)
		if doc.Status != store.StatusProcessed || doc.ChunkCount != n {
			t.Errorf("%s: status=%s chunk_count=%d stored=%d", id, doc.Status, doc.ChunkCount, n)
		}
		if id == "empty" && n != 0 {
			t.Errorf("empty document has %d chunks", n)
		}
		if id != "empty" && n == 0 {
			t.Errorf("%s has no chunks", id)
		}
	}

	results, err := e.Search(ctx, "zucchini trellis collapsed during the August hailstorm", SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].SourceDocID != "long" {
		t.Fatalf("top result = %+v, want the long document", results)
	}

	first, err := e.RunConsolidation(ctx)
	if err != nil {
		t.Fatalf("RunConsolidation: %v", err)
	}
	if first.ItemsArchived != 3 {
		t.Errorf("archived %d items, want 3", first.ItemsArchived)
	}
	second, err := e.RunConsolidation(ctx)
	if err != nil || second.ItemsArchived != 0 {
		t.Errorf("second run = %+v, %v; want 0 items", second, err)
	}

	// Warm is empty now; the Cold summary still answers.
	results, err = e.Search(ctx, "Archived summary", SearchOpts{})
	if err != nil || len(results) == 0 || results[0].Tier != store.TierCold {
		t.Errorf("post-consolidation search = %+v, %v", results, err)
	}
}
