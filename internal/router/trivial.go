// Package router decides how a query is answered before any model call:
// trivial queries are answered directly, the rest get a retrieval plan.
package router

import (
	"regexp"
	"strings"
	"time"
)

// Category names what kind of trivial query was matched.
type Category string

const (
	CategoryGreeting       Category = "greeting"
	CategoryAcknowledgment Category = "acknowledgment"
	CategoryArithmetic     Category = "arithmetic"
	CategoryTime           Category = "time"
	CategoryDate           Category = "date"
)

// Trivial is the pre-router's verdict. Handled is false for pass-through.
type Trivial struct {
	Handled  bool     `json:"handled"`
	Category Category `json:"category,omitempty"`
	Answer   string   `json:"answer,omitempty"`
}

// Clock supplies the current time for time and date answers.
type Clock func() time.Time

// PreRouter answers trivial queries. The zero value uses the system clock.
type PreRouter struct {
	Clock Clock
}

// CheckTrivial runs the pre-router with the system clock.
func CheckTrivial(query string) Trivial {
	return PreRouter{}.CheckTrivial(query)
}

var greetings = setOf(
	"hi", "hello", "hey", "hiya", "howdy", "yo", "greetings", "sup",
	"hi there", "hello there", "hey there",
	"good morning", "good afternoon", "good evening",
)

var thanks = setOf(
	"thanks", "thank you", "thx", "ty", "thanks a lot", "thank you so much",
	"thanks so much", "many thanks", "cheers",
)

var acks = setOf(
	"ok", "okay", "k", "kk", "cool", "got it", "great", "nice", "awesome",
	"perfect", "sounds good", "alright", "all right", "sure", "noted", "understood",
)

var timeQueries = setOf(
	"what time is it", "what time is it now", "what's the time",
	"what is the time", "current time", "tell me the time", "what's the time now",
)

var dateQueries = setOf(
	"what's the date", "what is the date", "what's today's date",
	"what is today's date", "today's date", "what day is it", "what day is it today",
	"what's the date today", "what is the date today", "what date is it",
)

// arithPrefix strips the phrasing around a bare expression.
var arithPrefix = regexp.MustCompile(`^(what's|what is|whats|calculate|compute|evaluate|how much is|solve)\s+`)

// arithChars is the only alphabet an expression may use once prefixes go.
var arithChars = regexp.MustCompile(`^[0-9+\-*/%^(). ]+$`)

// dateLike catches dates and phone numbers such as 2024-01-15, 1/15/2024
// or a bare month/day like 10/12. Spaced division ("10 / 12") still counts
// as arithmetic.
var dateLike = regexp.MustCompile(`^(\d+([-/.]\d+){2,}|\d{1,2}/\d{1,2})$`)

// CheckTrivial matches the whole message against a small fixed set of
// categories. Anything not matched exactly passes through.
func (p PreRouter) CheckTrivial(query string) Trivial {
	q := normalize(query)
	if q == "" {
		return Trivial{}
	}

	switch {
	case greetings[q]:
		return Trivial{Handled: true, Category: CategoryGreeting, Answer: "Hello! What can I help you with?"}
	case thanks[q]:
		return Trivial{Handled: true, Category: CategoryAcknowledgment, Answer: "You're welcome!"}
	case acks[q]:
		return Trivial{Handled: true, Category: CategoryAcknowledgment, Answer: "Got it."}
	case timeQueries[q]:
		return Trivial{Handled: true, Category: CategoryTime, Answer: "It's " + p.now().Format("3:04 PM") + "."}
	case dateQueries[q]:
		return Trivial{Handled: true, Category: CategoryDate, Answer: "Today is " + p.now().Format("Monday, January 2, 2006") + "."}
	}

	if t, ok := arithmetic(query); ok {
		return t
	}
	return Trivial{}
}

func (p PreRouter) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock()
}

func arithmetic(query string) (Trivial, bool) {
	expr := strings.ToLower(strings.TrimSpace(query))
	expr = strings.TrimRight(expr, "?= ")
	expr = arithPrefix.ReplaceAllString(expr, "")
	expr = strings.NewReplacer("×", "*", "÷", "/", "\t", " ").Replace(expr)
	expr = strings.TrimSpace(expr)

	if expr == "" || !arithChars.MatchString(expr) || dateLike.MatchString(expr) {
		return Trivial{}, false
	}
	v, err := evalArithmetic(expr)
	if err != nil {
		return Trivial{}, false
	}
	return Trivial{
		Handled:  true,
		Category: CategoryArithmetic,
		Answer:   expr + " = " + formatNumber(v),
	}, true
}

// normalize lowercases, unifies apostrophes, collapses whitespace and drops
// trailing punctuation.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, "!.?, ")
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
