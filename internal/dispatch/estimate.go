// ABOUTME: Deterministic token estimate for context-size checks
// ABOUTME: Roughly four characters per token plus per-message overhead

package dispatch

import (
	"unicode/utf8"

	"github.com/2389/model-router/internal/provider"
)

const (
	charsPerToken      = 4
	perMessageOverhead = 4
)

// EstimateTokens approximates the prompt size of messages.
func EstimateTokens(messages []provider.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateText(m.Content) + perMessageOverhead
	}
	return total
}

func estimateText(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}
