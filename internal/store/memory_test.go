package store

import (
	"testing"
)

func TestTopFactsOrdering(t *testing.T) {
	db := testDB(t)

	at := func(v int64) *int64 { return &v }
	facts := []Fact{
		{Text: "three-older", AccessCount: 3, LastAccess: at(100)},
		{Text: "one", AccessCount: 1, LastAccess: at(500)},
		{Text: "five", AccessCount: 5, LastAccess: at(50)},
		{Text: "three-newer", AccessCount: 3, LastAccess: at(300)},
	}
	for i := range facts {
		if err := db.AddFact(&facts[i]); err != nil {
			t.Fatalf("AddFact: %v", err)
		}
	}

	got, err := db.TopFacts(10)
	if err != nil {
		t.Fatalf("TopFacts: %v", err)
	}
	want := []string{"five", "three-newer", "three-older", "one"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("[%d] = %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestTouchFacts(t *testing.T) {
	db := testDB(t)
	f := Fact{Text: "likes go"}
	db.AddFact(&f)

	if err := db.TouchFacts([]int64{f.ID}, 42); err != nil {
		t.Fatalf("TouchFacts: %v", err)
	}
	if err := db.TouchFacts([]int64{f.ID}, 43); err != nil {
		t.Fatalf("TouchFacts: %v", err)
	}

	got, _ := db.TopFacts(1)
	if got[0].AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got[0].AccessCount)
	}
	if got[0].LastAccess == nil || *got[0].LastAccess != 43 {
		t.Errorf("LastAccess = %v, want 43", got[0].LastAccess)
	}
}

func TestInterestsAndProfile(t *testing.T) {
	db := testDB(t)

	db.AddEngagement("gardening", 1)
	db.AddEngagement("rust", 5)
	db.AddEngagement("gardening", 10)

	got, err := db.TopInterests(5)
	if err != nil {
		t.Fatalf("TopInterests: %v", err)
	}
	if len(got) != 2 || got[0].Name != "gardening" || got[0].Engagement != 11 {
		t.Errorf("interests = %+v", got)
	}

	p, err := db.GetProfile()
	if err != nil || p != "" {
		t.Errorf("empty profile = %q, %v", p, err)
	}
	db.SetProfile("Designer in Atlanta")
	db.SetProfile("Designer in Atlanta, likes tea")
	p, _ = db.GetProfile()
	if p != "Designer in Atlanta, likes tea" {
		t.Errorf("profile = %q", p)
	}
}

func TestRecentExcerptsOrder(t *testing.T) {
	db := testDB(t)
	for i, c := range []string{"one", "two", "three", "four"} {
		db.AddExcerpt(&Excerpt{ConversationID: "c", Role: "user", Content: c, CreatedAt: int64(i + 1)})
	}

	got, err := db.RecentExcerpts(2)
	if err != nil {
		t.Fatalf("RecentExcerpts: %v", err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "four" {
		t.Errorf("excerpts = %+v, want [three four]", got)
	}

	aged, _ := db.AgedExcerpts(3)
	if len(aged) != 2 {
		t.Errorf("aged = %d, want 2", len(aged))
	}
}
