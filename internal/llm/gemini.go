package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini streams completions from Google's Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini provider. An empty apiKey lets the SDK read
// GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) config(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

// Stream implements Provider.
func (g *Gemini) Stream(ctx context.Context, req Request) <-chan Delta {
	ch := make(chan Delta, 64)

	go func() {
		defer close(ch)

		for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, toGeminiContents(req.Messages), g.config(req)) {
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, ch, Delta{Err: fmt.Errorf("gemini stream: %w", err)})
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !send(ctx, ch, Delta{Text: text}) {
				return
			}
		}
	}()

	return ch
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, toGeminiContents(req.Messages), g.config(req))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return resp.Text(), nil
}
