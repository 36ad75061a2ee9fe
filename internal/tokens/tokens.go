// Package tokens approximates token counts for prompt budgeting.
//
// The provider tokenizers are not available locally, so counts use the
// common 4-characters-per-token heuristic. Budgets elsewhere in the
// pipeline are calibrated against this approximation.
package tokens

import "strings"

const truncationMarker = " […]"

// Estimate returns an approximate token count for s.
func Estimate(s string) int {
	return (len(s) + 3) / 4
}

// Truncate cuts s down so that its estimated token count does not exceed
// budget, breaking only at word boundaries and appending a truncation
// marker. Strings already within budget are returned unchanged. A budget
// of zero or less yields the empty string.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if Estimate(s) <= budget {
		return s
	}

	// Reserve room for the marker so the result stays within budget.
	maxChars := budget*4 - len(truncationMarker)
	if maxChars <= 0 {
		return ""
	}
	if maxChars > len(s) {
		maxChars = len(s)
	}

	cut := s[:maxChars]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	cut = strings.TrimRight(cut, " \t\n")
	if cut == "" {
		return ""
	}
	return cut + truncationMarker
}
