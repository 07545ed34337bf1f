package llm

import "fmt"

const systemPrompt = `You compress a person's saved notes and conversations into durable archive summaries. Keep names, dates, decisions, numbers, and anything the person would plausibly ask about later. Drop pleasantries and repetition. Never invent facts.`

// SummarizationPrompt builds the prompt for condensing one Cold-tier batch
// into a summary of at most targetChars characters.
func SummarizationPrompt(period, condensed string, targetChars int) string {
	return fmt.Sprintf(`Summarize the following items saved during %s into a single archive entry.

ITEMS:
%s

Rules:
- At most %d characters
- Plain prose or short "- " bullet lines, no headings
- Lead with the most specific, searchable details (names, places, projects)
- Mention each distinct topic at least once
- Return ONLY the summary text`, period, condensed, targetChars)
}
