package ingestion

import "strings"

const hydrationPreamble = `You write retrieval context for excerpts of a clinical document.
Given the whole document below and one excerpt from it, reply with one or two
short sentences that situate the excerpt within the document (who or what it
concerns, which section it comes from) so the excerpt can be found by search.
Reply with the context only.

<document>
`

// hydrationInstructions embeds the whole document in the instructions so
// every segment of one document shares the same prompt prefix.
func hydrationInstructions(document string) string {
	var b strings.Builder
	b.Grow(len(hydrationPreamble) + len(document) + 16)
	b.WriteString(hydrationPreamble)
	b.WriteString(document)
	b.WriteString("\n</document>")
	return b.String()
}
