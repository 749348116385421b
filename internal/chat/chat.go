// Package chat persists game-building conversations.
package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/llm"
)

// State records how an assistant reply ended.
type State string

const (
	StateNone       State = ""
	StateComplete   State = "complete"
	StateIncomplete State = "incomplete"
)

// Message is one stored turn.
type Message struct {
	ID        string    `json:"id"`
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	State     State     `json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a conversation that produces versions of one game.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

const maxTitleLen = 60

// New creates a chat for prompt. The title starts as a shortened prompt.
func New(prompt, model string) *Chat {
	now := time.Now()
	return &Chat{
		ID:        uuid.NewString(),
		Title:     shorten(strings.TrimSpace(prompt), maxTitleLen),
		Prompt:    prompt,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// SetTitle sets the chat title.
func (c *Chat) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// Append adds a message at the next position and returns it.
func (c *Chat) Append(role llm.Role, content string, state State) Message {
	now := time.Now()
	m := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Position:  len(c.Messages),
		State:     state,
		CreatedAt: now,
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = now
	return m
}

// MessageByID finds a message in the chat.
func (c *Chat) MessageByID(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// LastMessage returns the newest message.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// History converts the stored turns for a model request.
func (c *Chat) History() []llm.Message {
	out := make([]llm.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Version is an assistant message that produced an app.
type Version struct {
	Number  int
	Message Message
	Block   fence.CodeBlock
}

// AssistantVersions numbers the assistant replies whose first fence closed,
// starting at 1.
func (c *Chat) AssistantVersions() []Version {
	var out []Version
	for _, m := range c.Messages {
		if m.Role != llm.RoleAssistant {
			continue
		}
		block, ok := fence.ExtractFirstCodeBlock(m.Content)
		if !ok {
			continue
		}
		out = append(out, Version{Number: len(out) + 1, Message: m, Block: block})
	}
	return out
}

// VersionOf returns the version number of the message, or 0.
func (c *Chat) VersionOf(messageID string) int {
	for _, v := range c.AssistantVersions() {
		if v.Message.ID == messageID {
			return v.Number
		}
	}
	return 0
}

// Summary contains metadata about a chat for listing purposes.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Summary returns a Summary of the chat without the full messages.
func (c *Chat) Summary() Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}
