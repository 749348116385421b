// Package llm adapts completion services to one streaming interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    Role
	Content string
}

// Request is one completion request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Delta is one streamed piece of assistant text, or a terminal error.
type Delta struct {
	Text string
	Err  error
}

// Provider streams completions from a model service. Stream closes its
// channel when the response ends; a failure arrives as a final Delta with Err
// set.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) <-chan Delta
	Complete(ctx context.Context, req Request) (string, error)
}

// DefaultMaxTokens bounds a generated reply.
const DefaultMaxTokens = 8192

// ErrMissingAPIKey is returned when a provider has no credentials.
var ErrMissingAPIKey = errors.New("missing API key")

// send delivers d unless ctx is done first.
func send(ctx context.Context, ch chan<- Delta, d Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func maxTokens(req Request) int {
	if req.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return req.MaxTokens
}

// Collect drains a stream into one string.
func Collect(ch <-chan Delta) (string, error) {
	var b strings.Builder
	for d := range ch {
		if d.Err != nil {
			return b.String(), d.Err
		}
		b.WriteString(d.Text)
	}
	return b.String(), nil
}

// New builds the named provider. apiKey may be empty for providers whose SDK
// reads the key from the environment.
func New(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "", ProviderAnthropic:
		return NewAnthropic(apiKey), nil
	case ProviderTogether:
		if apiKey == "" {
			return nil, fmt.Errorf("together: %w", ErrMissingAPIKey)
		}
		return NewTogether(apiKey, baseURL), nil
	case ProviderGemini:
		return NewGemini(context.Background(), apiKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
