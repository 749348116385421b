package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTogetherURL is Together AI's OpenAI-compatible endpoint.
const DefaultTogetherURL = "https://api.together.xyz/v1"

// Together streams completions from Together AI's hosted open models.
type Together struct {
	client *openai.Client
}

// NewTogether creates a Together provider. baseURL overrides the endpoint,
// which also makes any OpenAI-compatible server usable.
func NewTogether(apiKey, baseURL string) *Together {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultTogetherURL
	}
	cfg.BaseURL = baseURL
	return &Together{client: openai.NewClientWithConfig(cfg)}
}

func (t *Together) Name() string { return ProviderTogether }

func (t *Together) request(req Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: maxTokens(req),
		Stream:    stream,
	}
}

// Stream implements Provider.
func (t *Together) Stream(ctx context.Context, req Request) <-chan Delta {
	ch := make(chan Delta, 64)

	go func() {
		defer close(ch)

		stream, err := t.client.CreateChatCompletionStream(ctx, t.request(req, true))
		if err != nil {
			send(ctx, ch, Delta{Err: fmt.Errorf("together stream: %w", err)})
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, ch, Delta{Err: fmt.Errorf("together stream: %w", err)})
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, Delta{Text: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()

	return ch
}

// Complete implements Provider.
func (t *Together) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, t.request(req, false))
	if err != nil {
		return "", fmt.Errorf("together completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("together completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
