package router

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 14, 15, 4, 0, 0, time.UTC)
}

func TestCheckTrivialHandled(t *testing.T) {
	p := PreRouter{Clock: fixedClock}
	tests := []struct {
		query    string
		category Category
		answer   string
	}{
		{"hi", CategoryGreeting, ""},
		{"Hello!", CategoryGreeting, ""},
		{"good  morning", CategoryGreeting, ""},
		{"thanks!", CategoryAcknowledgment, "You're welcome!"},
		{"ok", CategoryAcknowledgment, "Got it."},
		{"5 + 3", CategoryArithmetic, "5 + 3 = 8"},
		{"what is 2 * (3 + 4)?", CategoryArithmetic, "2 * (3 + 4) = 14"},
		{"calculate 7 / 2", CategoryArithmetic, "7 / 2 = 3.5"},
		{"2^10", CategoryArithmetic, "2^10 = 1024"},
		{"-3 + 1", CategoryArithmetic, "-3 + 1 = -2"},
		{"10 ÷ 4", CategoryArithmetic, "10 / 4 = 2.5"},
		{"10 / 12", CategoryArithmetic, "10 / 12 = 0.8333333333"},
		{"100/12", CategoryArithmetic, "100/12 = 8.3333333333"},
		{"what time is it", CategoryTime, "It's 3:04 PM."},
		{"What’s the date?", CategoryDate, "Today is Saturday, March 14, 2026."},
	}
	for _, tt := range tests {
		got := p.CheckTrivial(tt.query)
		if !got.Handled || got.Category != tt.category {
			t.Errorf("CheckTrivial(%q) = %+v, want handled %s", tt.query, got, tt.category)
			continue
		}
		if tt.answer != "" && got.Answer != tt.answer {
			t.Errorf("CheckTrivial(%q).Answer = %q, want %q", tt.query, got.Answer, tt.answer)
		}
	}
}

func TestCheckTrivialPassesThrough(t *testing.T) {
	for _, q := range []string{
		"",
		"   ",
		"what's the weather in Atlanta",
		"hi, can you find my tomato notes",
		"thanks, now summarize my week",
		"42",
		"5 / 0",
		"1 % 0",
		"2024-01-15",
		"1/15/2024",
		"10/12",
		"what is 3/4",
		"1-800-555-1234",
		"(1 + 2",
		"5 + + 3",
		"what is love",
		"time",
		"date",
	} {
		if got := CheckTrivial(q); got.Handled {
			t.Errorf("CheckTrivial(%q) handled as %s (%q), want pass-through", q, got.Category, got.Answer)
		}
	}
}

func TestEvalArithmeticPrecedence(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", -4},
		{"7 % 4", 3},
		{"1.5 * 2", 3},
	}
	for _, tt := range tests {
		got, err := evalArithmetic(tt.expr)
		if err != nil {
			t.Errorf("evalArithmetic(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("evalArithmetic(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalArithmeticDeepNesting(t *testing.T) {
	expr := strings.Repeat("(", 200) + "1" + strings.Repeat(")", 200) + " + 1"
	if _, err := evalArithmetic(expr); err == nil {
		t.Error("expected deep nesting to be rejected")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{8: "8", -2: "-2", 3.5: "3.5", 1.0 / 3: "0.3333333333"}
	for v, want := range tests {
		if got := formatNumber(v); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", v, got, want)
		}
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		query string
		kind  Kind
		scope string
	}{
		{"what do you know about me", KindNone, ""},
		{"Who am I?", KindNone, ""},
		{"find my notes on tomato seeds", KindLocal, ScopeAll},
		{"what did I save about the garden", KindLocal, ScopeAll},
		{"what did I write recently", KindLocal, ScopeWarm},
		{"what's the weather in Atlanta", KindExternal, ""},
		{"latest news on the election", KindExternal, ""},
		{"compare my portfolio with today's stock prices", KindHybrid, ScopeAll},
		{"explain monads", KindLocal, ScopeAll},
		{"what do you know about sourdough", KindLocal, ScopeAll},
		{"Tell me about the Lisbon trip", KindLocal, ScopeAll},
		{"what do you remember about myself", KindNone, ""},
	}
	for _, tt := range tests {
		got := Route(tt.query)
		if got.Kind != tt.kind || got.Scope != tt.scope {
			t.Errorf("Route(%q) = %s/%q (%v), want %s/%q", tt.query, got.Kind, got.Scope, got.Reasons, tt.kind, tt.scope)
		}
		if len(got.Reasons) == 0 {
			t.Errorf("Route(%q) gave no reasons", tt.query)
		}
	}
}

func TestPlanEscalate(t *testing.T) {
	local := Route("my garden notes")
	hybrid := local.Escalate("nothing above threshold")
	if hybrid.Kind != KindHybrid || !hybrid.NeedsExternal() || !hybrid.NeedsLocal() {
		t.Fatalf("escalated = %+v", hybrid)
	}
	if len(hybrid.Reasons) != len(local.Reasons)+1 {
		t.Errorf("reasons = %v", hybrid.Reasons)
	}
	if len(local.Reasons) == len(hybrid.Reasons) {
		t.Error("Escalate mutated the original plan")
	}

	ext := Route("weather tomorrow")
	if ext.Escalate("x").Kind != KindExternal {
		t.Error("Escalate changed a non-local plan")
	}
}
