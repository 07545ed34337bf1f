package router

import (
	"fmt"
	"regexp"
)

// Kind is where a query's answer should come from.
type Kind string

const (
	KindLocal    Kind = "local"    // personal corpus (Warm and Cold tiers)
	KindExternal Kind = "external" // web lookup, handled downstream
	KindHybrid   Kind = "hybrid"   // both, merged
	KindNone     Kind = "none"     // hot memory alone
)

// Search scopes a plan can ask for.
const (
	ScopeWarm = "warm"
	ScopeAll  = "all"
)

// Plan is a retrieval decision. Scope is empty when no local search runs.
type Plan struct {
	Kind    Kind     `json:"kind"`
	Scope   string   `json:"scope,omitempty"`
	Reasons []string `json:"reasons"`
}

// NeedsLocal reports whether the plan searches the personal corpus.
func (p Plan) NeedsLocal() bool { return p.Kind == KindLocal || p.Kind == KindHybrid }

// NeedsExternal reports whether the plan asks for a web lookup.
func (p Plan) NeedsExternal() bool { return p.Kind == KindExternal || p.Kind == KindHybrid }

// Escalate widens a local plan to hybrid, recording why. Other plans are
// returned unchanged.
func (p Plan) Escalate(reason string) Plan {
	if p.Kind != KindLocal {
		return p
	}
	reasons := append([]string(nil), p.Reasons...)
	return Plan{Kind: KindHybrid, Scope: p.Scope, Reasons: append(reasons, reason)}
}

type cue struct {
	re   *regexp.Regexp
	name string
}

func cues(pairs ...string) []cue {
	out := make([]cue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, cue{regexp.MustCompile(`(?i)` + pairs[i]), pairs[i+1]})
	}
	return out
}

// Questions about the user that hot memory answers by itself.
var selfKnowledge = cues(
	`\bwhat do you (know|remember) about (me|myself)\b`, "asks what is known about the user",
	`\bwho am i\b`, "asks who the user is",
	`\btell me about (myself|me)\b`, "asks about the user",
	`\bwhat are my (interests|preferences)\b`, "asks for the user's profile",
)

var personal = cues(
	`\bwhat do you (know|remember) about\b`, "asks what is known about a topic",
	`\btell me about\b`, "asks about a topic",
	`\b(my|mine|our|ours)\b`, "personal reference",
	`\bi (saved|wrote|noted|bookmarked|added|uploaded|mentioned|said|read|told you)\b`, "refers to something the user stored",
	`\b(did|have|had) i\b`, "asks about the user's past",
	`\b(remind me|remember when|we (talked|discussed|spoke))\b`, "asks to recall",
)

var realtime = cues(
	`\b(latest|newest|breaking|trending)\b`, "asks for the newest information",
	`\b(news|headlines?)\b`, "asks for news",
	`\b(weather|forecast|temperature outside)\b`, "asks about the weather",
	`\b(today|tonight|tomorrow|right now|currently|this (week|month|year))\b`, "refers to the present",
	`\b(stock|share) prices?\b|\bprice of\b|\bexchange rate\b`, "asks for a live price",
	`\b(scores?|who won)\b`, "asks for a live result",
)

// recentOnly narrows local scope to the Warm tier.
var recentOnly = regexp.MustCompile(`(?i)\b(recent|recently|yesterday|last (few )?(days|week))\b`)

// Route classifies a non-trivial query by keyword cues. A query with no
// cue at all searches every local tier, so the usual local to hybrid
// escalation still applies.
func Route(query string) Plan {
	for _, c := range selfKnowledge {
		if c.re.MatchString(query) {
			return Plan{Kind: KindNone, Reasons: []string{c.name}}
		}
	}

	var reasons []string
	local := match(query, personal, &reasons)
	external := match(query, realtime, &reasons)

	scope := ScopeAll
	if recentOnly.MatchString(query) {
		scope = ScopeWarm
	}

	switch {
	case local && external:
		return Plan{Kind: KindHybrid, Scope: scope, Reasons: reasons}
	case local:
		return Plan{Kind: KindLocal, Scope: scope, Reasons: reasons}
	case external:
		return Plan{Kind: KindExternal, Reasons: reasons}
	default:
		return Plan{Kind: KindLocal, Scope: scope, Reasons: []string{"no retrieval cues, searching local tiers"}}
	}
}

func match(query string, set []cue, reasons *[]string) bool {
	hit := false
	for _, c := range set {
		if m := c.re.FindString(query); m != "" {
			*reasons = append(*reasons, fmt.Sprintf("%s %q", c.name, m))
			hit = true
		}
	}
	return hit
}
