package search

import (
	"slices"
	"strings"
)

// Stop words ignored when comparing question variants
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "which": true, "does": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// variantKey reduces a question to its sorted content words so trivially
// reworded variants compare equal.
func variantKey(text string) string {
	words := tokenizeAndFilter(text)
	slices.Sort(words)
	return strings.Join(slices.Compact(words), " ")
}

// distinctVariants drops blank variants and those with the same content
// words as the question or an earlier variant. Order is kept.
func distinctVariants(question string, variants []string) []string {
	seen := map[string]bool{variantKey(question): true}
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := variantKey(v)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
