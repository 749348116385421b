package chat

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/zhubert/gameforge/internal/llm"
)

func TestNew(t *testing.T) {
	t.Parallel()

	c := New("make a snake game", "claude-sonnet-4-20250514")
	if _, err := uuid.Parse(c.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", c.ID, err)
	}
	if c.Title != "make a snake game" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Error("timestamps should be set and equal")
	}

	long := New(strings.Repeat("word ", 40), "m")
	if n := len([]rune(long.Title)); n > maxTitleLen {
		t.Errorf("title has %d runes, want at most %d", n, maxTitleLen)
	}
	if !strings.HasSuffix(long.Title, "…") {
		t.Errorf("long title should be elided: %q", long.Title)
	}
}

func TestAppendPositions(t *testing.T) {
	t.Parallel()

	c := New("pong", "m")
	a := c.Append(llm.RoleUser, "pong", StateNone)
	b := c.Append(llm.RoleAssistant, "ok", StateComplete)

	if a.Position != 0 || b.Position != 1 {
		t.Errorf("positions = %d, %d", a.Position, b.Position)
	}
	if a.ID == b.ID {
		t.Error("message ids must be unique")
	}
	got, ok := c.MessageByID(b.ID)
	if !ok || got.Content != "ok" || got.State != StateComplete {
		t.Errorf("MessageByID() = %+v, %v", got, ok)
	}
	if _, ok := c.MessageByID("missing"); ok {
		t.Error("unknown id should not be found")
	}
	last, _ := c.LastMessage()
	if last.ID != b.ID {
		t.Error("LastMessage should be the assistant reply")
	}
}

func TestAssistantVersions(t *testing.T) {
	t.Parallel()

	c := New("snake", "m")
	c.Append(llm.RoleUser, "snake", StateNone)
	v1 := c.Append(llm.RoleAssistant, "```tsx{filename=snake.tsx}\n1\n```", StateComplete)
	c.Append(llm.RoleUser, "faster", StateNone)
	c.Append(llm.RoleAssistant, "Sorry, I can't.", StateComplete)
	c.Append(llm.RoleAssistant, "```tsx\ncut off", StateIncomplete)
	v2 := c.Append(llm.RoleAssistant, "```tsx{filename=snake.tsx}\n2\n```", StateComplete)

	versions := c.AssistantVersions()
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
	if versions[0].Message.ID != v1.ID || versions[1].Number != 2 || versions[1].Block.Code != "2\n" {
		t.Errorf("versions = %+v", versions)
	}
	if c.VersionOf(v2.ID) != 2 || c.VersionOf("nope") != 0 {
		t.Error("VersionOf returned wrong numbers")
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	c := New("tetris", "m")
	c.Append(llm.RoleUser, "tetris", StateNone)
	c.Append(llm.RoleAssistant, "done", StateComplete)

	h := c.History()
	if len(h) != 2 || h[0].Role != llm.RoleUser || h[1].Content != "done" {
		t.Errorf("History() = %+v", h)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	c := New("breakout", "gemini-2.5-flash")
	c.Append(llm.RoleUser, "breakout", StateNone)
	c.SetTitle("Breakout")

	s := c.Summary()
	if s.ID != c.ID || s.Title != "Breakout" || s.Model != "gemini-2.5-flash" || s.MessageCount != 1 {
		t.Errorf("Summary() = %+v", s)
	}
}
