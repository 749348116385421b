package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/token"
)

// Summarizer generates summaries of conversation segments using an LLM.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.Message) (string, error)
}

// Manager keeps chat history inside the model's context window.
type Manager struct {
	limits     token.ContextLimits
	summarizer Summarizer
}

// NewManager creates a new context manager with the given limits and summarizer.
func NewManager(limits token.ContextLimits, summarizer Summarizer) *Manager {
	return &Manager{
		limits:     limits,
		summarizer: summarizer,
	}
}

// NewManagerWithDefaults creates a context manager with default limits.
func NewManagerWithDefaults(summarizer Summarizer) *Manager {
	return NewManager(token.DefaultLimits(), summarizer)
}

// CompactionResult contains the result of a compaction operation.
type CompactionResult struct {
	// Messages is the compacted message list.
	Messages []llm.Message
	// OriginalTokens is the token count before compaction.
	OriginalTokens int
	// CompactedTokens is the token count after compaction.
	CompactedTokens int
	// SummaryAdded indicates if a summary message was added.
	SummaryAdded bool
}

// NeedsCompaction checks if the messages exceed the summarization threshold.
func (m *Manager) NeedsCompaction(messages []llm.Message) bool {
	return token.CountMessages(messages) >= m.limits.SummarizationTrigger()
}

// Compact reduces the context size in three steps:
// 1. Collapse the code of superseded app versions
// 2. Summarize older turns
// 3. Preserve recent messages intact
func (m *Manager) Compact(ctx context.Context, messages []llm.Message) (*CompactionResult, error) {
	originalTokens := token.CountMessages(messages)

	if originalTokens < m.limits.SummarizationTrigger() {
		return &CompactionResult{
			Messages:        messages,
			OriginalTokens:  originalTokens,
			CompactedTokens: originalTokens,
		}, nil
	}

	collapsed := m.collapseOldVersions(messages)
	collapsedTokens := token.CountMessages(collapsed)

	if collapsedTokens < m.limits.SummarizationTrigger() {
		return &CompactionResult{
			Messages:        collapsed,
			OriginalTokens:  originalTokens,
			CompactedTokens: collapsedTokens,
		}, nil
	}

	compacted, err := m.summarizeOldMessages(ctx, collapsed)
	if err != nil {
		compacted = m.simpleTruncate(collapsed)
	}

	return &CompactionResult{
		Messages:        compacted,
		OriginalTokens:  originalTokens,
		CompactedTokens: token.CountMessages(compacted),
		SummaryAdded:    err == nil && m.summarizer != nil,
	}, nil
}

// collapseOldVersions replaces the code of every assistant message except the
// latest with a placeholder. Only the newest version of the app matters for a
// follow-up edit.
func (m *Manager) collapseOldVersions(messages []llm.Message) []llm.Message {
	latest := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant {
			latest = i
			break
		}
	}

	result := make([]llm.Message, len(messages))
	for i, msg := range messages {
		if msg.Role == llm.RoleAssistant && i != latest {
			msg.Content = collapseCode(msg.Content)
		}
		result[i] = msg
	}
	return result
}

// collapseCode rewrites completed fences so only their opener survives.
func collapseCode(content string) string {
	segs := fence.Parse(content)
	var b strings.Builder
	for _, s := range segs {
		switch s.Kind {
		case fence.KindCompletedFence:
			b.WriteString(fence.Delimiter)
			b.WriteString(s.Language)
			if !s.Filename.IsZero() {
				fmt.Fprintf(&b, "{filename=%s}", s.Filename)
			}
			b.WriteString("\n[earlier version omitted]\n")
			b.WriteString(fence.Delimiter)
		case fence.KindGeneratingFence:
			b.WriteString("[incomplete code omitted]")
		default:
			b.WriteString(s.Content)
		}
	}
	return b.String()
}

// summarizeOldMessages uses the summarizer to condense older conversation turns.
func (m *Manager) summarizeOldMessages(ctx context.Context, messages []llm.Message) ([]llm.Message, error) {
	if m.summarizer == nil {
		return m.simpleTruncate(messages), nil
	}

	const preserveRecent = 4
	if len(messages) <= preserveRecent {
		return messages, nil
	}

	oldMessages := messages[:len(messages)-preserveRecent]
	recentMessages := messages[len(messages)-preserveRecent:]

	summary, err := m.summarizer.Summarize(ctx, oldMessages)
	if err != nil {
		return nil, fmt.Errorf("summarizing old messages: %w", err)
	}

	result := make([]llm.Message, 0, len(recentMessages)+1)
	if recentMessages[0].Role == llm.RoleUser {
		// Keep user/assistant alternation by folding the summary into the
		// first preserved user turn.
		first := recentMessages[0]
		first.Content = formatSummary(summary) + "\n\n" + first.Content
		result = append(result, first)
		result = append(result, recentMessages[1:]...)
		return result, nil
	}

	result = append(result, llm.Message{Role: llm.RoleUser, Content: formatSummary(summary)})
	result = append(result, recentMessages...)
	return result, nil
}

// simpleTruncate removes the oldest messages when summarization isn't available.
func (m *Manager) simpleTruncate(messages []llm.Message) []llm.Message {
	targetTokens := m.limits.SummarizationTrigger() / 2

	out := make([]llm.Message, len(messages))
	copy(out, messages)

	// Always keep the first user message: it holds the original game idea.
	for len(out) > 2 && token.CountMessages(out) > targetTokens {
		out = append(out[:1], out[2:]...)
	}
	return out
}

// formatSummary wraps the summary text in a clear format.
func formatSummary(summary string) string {
	var sb strings.Builder
	sb.WriteString("[CONVERSATION SUMMARY - Earlier messages have been condensed]\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\n[END SUMMARY - Recent conversation continues below]")
	return sb.String()
}

// TokenCount returns the current token count for the given messages.
func (m *Manager) TokenCount(messages []llm.Message) int {
	return token.CountMessages(messages)
}

// Limits returns the context limits configuration.
func (m *Manager) Limits() token.ContextLimits {
	return m.limits
}
