package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ctxmgr "github.com/zhubert/gameforge/internal/context"
	"github.com/zhubert/gameforge/internal/llm"
)

// ChunkType identifies the kind of stream chunk.
type ChunkType int

const (
	ChunkText ChunkType = iota
	ChunkDone
	ChunkError
)

// StreamChunk is a unit of output from the agent's streaming loop.
type StreamChunk struct {
	Type ChunkType
	Text string
	Err  error
}

// Agent sends a chat to the model and streams back the reply. It keeps the
// conversation so follow-up requests edit the latest version of the game.
type Agent struct {
	provider llm.Provider
	contexts *ctxmgr.Manager
	logger   *slog.Logger

	mu      sync.Mutex
	model   string
	example string
	conv    *Conversation
}

// New creates an Agent. contexts may be nil to disable compaction.
func New(provider llm.Provider, model string, contexts *ctxmgr.Manager, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		provider: provider,
		contexts: contexts,
		logger:   logger,
		model:    model,
		example:  "none",
		conv:     NewConversation(),
	}
}

// Model returns the model id used for new requests.
func (a *Agent) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// ProviderName names the service the agent talks to.
func (a *Agent) ProviderName() string {
	return a.provider.Name()
}

// SetModel switches the model for subsequent requests.
func (a *Agent) SetModel(model string) {
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()
}

// SetExample chooses which reference game is added to the system prompt.
func (a *Agent) SetExample(category string) {
	a.mu.Lock()
	a.example = category
	a.mu.Unlock()
}

// Conversation returns the agent's history.
func (a *Agent) Conversation() *Conversation {
	return a.conv
}

// Restore replaces the history with stored messages.
func (a *Agent) Restore(messages []llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conv.SetMessages(messages)
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			a.example = MostSimilarExample(m.Content)
			break
		}
	}
}

// SendMessage appends userMsg and streams the reply. The channel is closed
// after a final ChunkDone or ChunkError. A cancelled ctx closes the channel
// without a terminal chunk and records nothing.
func (a *Agent) SendMessage(ctx context.Context, userMsg string) <-chan StreamChunk {
	a.mu.Lock()
	if a.conv.Len() == 0 {
		a.example = MostSimilarExample(userMsg)
	}
	a.conv.AddUserMessage(userMsg)
	a.mu.Unlock()

	return a.Continue(ctx)
}

// Continue streams a reply to the current history, whose last message must
// come from the user.
func (a *Agent) Continue(ctx context.Context) <-chan StreamChunk {
	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		a.loop(ctx, ch)
	}()
	return ch
}

func (a *Agent) loop(ctx context.Context, ch chan<- StreamChunk) {
	a.logger.Info("agent loop started")
	defer a.logger.Info("agent loop ended")

	req, err := a.buildRequest(ctx)
	if err != nil {
		ch <- StreamChunk{Type: ChunkError, Err: err}
		return
	}

	var reply strings.Builder
	for d := range a.provider.Stream(ctx, req) {
		if d.Err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error("stream error", "provider", a.provider.Name(), "error", d.Err)
			ch <- StreamChunk{Type: ChunkError, Err: fmt.Errorf("stream error: %w", d.Err)}
			return
		}
		reply.WriteString(d.Text)
		select {
		case ch <- StreamChunk{Type: ChunkText, Text: d.Text}:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		a.logger.Info("context cancelled, discarding reply")
		return
	}

	a.mu.Lock()
	a.conv.AddAssistantMessage(reply.String())
	a.mu.Unlock()
	ch <- StreamChunk{Type: ChunkDone}
}

func (a *Agent) buildRequest(ctx context.Context) (llm.Request, error) {
	a.mu.Lock()
	messages := a.conv.Messages()
	model, example := a.model, a.example
	a.mu.Unlock()

	if len(messages) == 0 || messages[len(messages)-1].Role != llm.RoleUser {
		return llm.Request{}, fmt.Errorf("conversation must end with a user message")
	}

	if a.contexts != nil && a.contexts.NeedsCompaction(messages) {
		res, err := a.contexts.Compact(ctx, messages)
		if err != nil {
			return llm.Request{}, fmt.Errorf("compacting context: %w", err)
		}
		a.logger.Info("context compacted",
			"original_tokens", res.OriginalTokens,
			"compacted_tokens", res.CompactedTokens,
			"summary", res.SummaryAdded,
		)
		messages = res.Messages
		a.mu.Lock()
		a.conv.SetMessages(messages)
		a.mu.Unlock()
	}

	return llm.Request{
		Model:    model,
		System:   BuildSystemPrompt(example),
		Messages: messages,
	}, nil
}

// Plan asks the model for an implementation plan of idea without recording it.
func (a *Agent) Plan(ctx context.Context, idea string) (string, error) {
	plan, err := a.provider.Complete(ctx, llm.Request{
		Model:    a.Model(),
		System:   ArchitectPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: idea}},
	})
	if err != nil {
		return "", fmt.Errorf("planning: %w", err)
	}
	return plan, nil
}
