// Package token estimates token usage so chat history can be kept inside a
// model's context window.
package token

import (
	"github.com/zhubert/gameforge/internal/llm"
)

// Roughly four characters per token for English text and code. This is a
// conservative estimate; actual counts vary per model.
var charsPerToken = 4

// messageOverhead covers role markers and framing.
const messageOverhead = 2

// Count estimates the number of tokens in a string.
func Count(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// CountMessage estimates the token count for a single message.
func CountMessage(msg llm.Message) int {
	return messageOverhead + Count(msg.Content)
}

// CountMessages estimates the total token count for a slice of messages.
func CountMessages(msgs []llm.Message) int {
	total := 0
	for _, msg := range msgs {
		total += CountMessage(msg)
	}
	return total
}

// ContextLimits defines the token budgets for context management.
type ContextLimits struct {
	// MaxContextTokens is the model's maximum context window.
	MaxContextTokens int
	// ReservedOutputTokens is space reserved for the generated game.
	ReservedOutputTokens int
	// ReservedSystemTokens is space reserved for the system prompt and examples.
	ReservedSystemTokens int
	// SummarizationThreshold is when to trigger compaction (fraction of available).
	SummarizationThreshold float64
}

// DefaultLimits suits the smallest context window in the model catalogue.
func DefaultLimits() ContextLimits {
	return ContextLimits{
		MaxContextTokens:       128000,
		ReservedOutputTokens:   llm.DefaultMaxTokens,
		ReservedSystemTokens:   12000,
		SummarizationThreshold: 0.8,
	}
}

// AvailableTokens returns the token budget for conversation history.
func (l ContextLimits) AvailableTokens() int {
	return l.MaxContextTokens - l.ReservedOutputTokens - l.ReservedSystemTokens
}

// SummarizationTrigger returns the token count that triggers compaction.
func (l ContextLimits) SummarizationTrigger() int {
	return int(float64(l.AvailableTokens()) * l.SummarizationThreshold)
}
