package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhubert/gameforge/internal/llm"
)

const summarizationPrompt = `You are summarizing a conversation between a user and an AI that builds small browser games.
Your summary will replace the original messages to save context space.

Key requirements:
1. Preserve the game idea, mechanics, controls, scoring rules and visual style requested
2. Preserve every change the user asked for, in order, and any errors that were fixed
3. Keep the current component filename
4. Be concise but complete; write a short narrative, not a list

Summarize the following conversation segment:`

// ProviderSummarizer summarizes with a (usually cheaper) model of the active provider.
type ProviderSummarizer struct {
	provider llm.Provider
	model    string
}

// NewProviderSummarizer creates a summarizer that calls model on provider.
func NewProviderSummarizer(provider llm.Provider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: model}
}

// Summarize generates a summary of the given messages.
func (s *ProviderSummarizer) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	summary, err := s.provider.Complete(ctx, llm.Request{
		Model:     s.model,
		System:    summarizationPrompt,
		MaxTokens: 2048,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: formatMessagesForSummarization(messages)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling %s for summarization: %w", s.provider.Name(), err)
	}
	return summary, nil
}

// formatMessagesForSummarization converts messages to a human-readable format.
func formatMessagesForSummarization(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&sb, "[%s]\n", strings.ToUpper(string(msg.Role)))
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
