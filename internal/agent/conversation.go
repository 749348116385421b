package agent

import (
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/token"
)

// Conversation manages the message history for a chat.
type Conversation struct {
	messages   []llm.Message
	tokenCount int
}

// NewConversation creates a new empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// TokenCount returns the estimated token count of the conversation.
func (c *Conversation) TokenCount() int {
	return c.tokenCount
}

func (c *Conversation) updateTokenCount() {
	c.tokenCount = token.CountMessages(c.messages)
}

// SetMessages replaces all messages in the conversation.
// This is used to restore a stored chat or after compaction.
func (c *Conversation) SetMessages(messages []llm.Message) {
	c.messages = make([]llm.Message, len(messages))
	copy(c.messages, messages)
	c.updateTokenCount()
}

// AddUserMessage appends a user message.
func (c *Conversation) AddUserMessage(text string) {
	c.add(llm.Message{Role: llm.RoleUser, Content: text})
}

// AddAssistantMessage appends an assistant reply.
func (c *Conversation) AddAssistantMessage(text string) {
	c.add(llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (c *Conversation) add(msg llm.Message) {
	c.messages = append(c.messages, msg)
	c.tokenCount += token.CountMessage(msg)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the newest message.
func (c *Conversation) Last() (llm.Message, bool) {
	if len(c.messages) == 0 {
		return llm.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	return len(c.messages)
}
