// Package budget estimates token counts for chat messages and trims replayed
// conversation history to a context window. Backends tokenize differently,
// so the estimate is a character heuristic of about 4 characters per token.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// messageOverhead approximates the per-message framing most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens fits 8k-context models with room for the reply.
	// Override with MODEL_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages sums the estimate of role and content over msgs, plus a
// fixed overhead per message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest turns of history until fixed plus history fits
// within maxTokens. A turn is a user message and the replies that follow it,
// so the trimmed history never opens with an assistant message. fixed is
// never trimmed; when it alone exceeds the budget the result is empty.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	budget := maxTokens - EstimateMessages(fixed)
	used := EstimateMessages(history)
	for len(history) > 0 && used > budget {
		n := turnLen(history)
		used -= EstimateMessages(history[:n])
		history = history[n:]
	}
	return history
}

// turnLen returns the length of the leading turn of history: the first
// message and every following non-user message.
func turnLen(history []*schema.Message) int {
	n := 1
	for n < len(history) && history[n].Role != schema.User {
		n++
	}
	return n
}
