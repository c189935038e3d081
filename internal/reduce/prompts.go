package reduce

import (
	"fmt"

	"github.com/mailsense/voicepack/internal/llm"
)

const filterSystem = `You are a precise text filter. You receive a block of sent-mail records
and must return only the passages that carry the author's distinctive voice:
characteristic phrasing, recurring expressions, tone, and sentence rhythm.
Drop greetings, scheduling logistics, boilerplate, and anything the author
did not write themselves. Preserve the selected passages verbatim; do not
paraphrase or summarize. Respond with a JSON object whose "content" field
holds the selected passages, separated by blank lines.`

// filterResponse is the structured shape every filter call requests. Strict
// JSON keeps wrapper prose out of the filtered corpus.
type filterResponse struct {
	Content string `json:"content" jsonschema_description:"The voice-bearing passages, verbatim, separated by blank lines"`
}

const filterSchemaName = "voice_filter"

var filterSchema = llm.GenerateSchema[filterResponse]()

// filterPrompt wraps one chunk for the first-stage filtering pass.
func filterPrompt(chunk string) string {
	return fmt.Sprintf("Filter the following records, returning only voice-bearing passages verbatim:\n\n%s", chunk)
}

const selectSystem = `You are a precise text selector. You receive filtered writing samples and
a token budget. Return the subset of passages with the highest density of
author-distinctive voice, verbatim and within the budget. Never paraphrase.`

// selectPrompt asks for the highest-value subset of text under targetTokens.
func selectPrompt(text string, targetTokens int) string {
	return fmt.Sprintf("Select the most voice-distinctive passages from the text below, keeping the total under %d tokens. Return the passages verbatim.\n\n%s", targetTokens, text)
}
