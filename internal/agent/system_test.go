package agent

import (
	"strings"
	"testing"

	"github.com/zhubert/gameforge/internal/fence"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	prompt := BuildSystemPrompt("none")

	checks := []string{
		"GameForge Instructions",
		"default export",
		"```tsx{filename=calculator.tsx}",
		"Build a pixel art platformer game",
	}
	for _, s := range checks {
		if !strings.Contains(prompt, s) {
			t.Errorf("system prompt should contain %q", s)
		}
	}
	if strings.Contains(prompt, "another example") {
		t.Error("no second example expected for none")
	}
}

func TestBuildSystemPromptWithSimilarExample(t *testing.T) {
	t.Parallel()

	prompt := BuildSystemPrompt("pixel rpg")
	if !strings.Contains(prompt, "Create a pixel art RPG game") {
		t.Error("system prompt should include the rpg example")
	}

	// The platformer is already the base example.
	prompt = BuildSystemPrompt("pixel platformer")
	if strings.Count(prompt, "Build a pixel art platformer game") != 1 {
		t.Error("platformer example should appear once")
	}
}

func TestMostSimilarExample(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"a dungeon crawler rpg":         "pixel rpg",
		"classic Snake":                 "pixel arcade",
		"tetris with a twist":           "pixel puzzle",
		"a jumping platform game":       "pixel platformer",
		"a calculator":                  "none",
	}
	for in, want := range cases {
		if got := MostSimilarExample(in); got != want {
			t.Errorf("MostSimilarExample(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExamplesAreRunnableFences(t *testing.T) {
	t.Parallel()

	for name, ex := range Examples {
		block, ok := fence.ExtractFirstCodeBlock(ex.Response)
		if !ok {
			t.Errorf("%s: no completed fence", name)
			continue
		}
		if block.Language != "tsx" || block.Filename.Extension != "tsx" {
			t.Errorf("%s: got %q %v", name, block.Language, block.Filename)
		}
		if !strings.Contains(block.Code, "export default function") {
			t.Errorf("%s: missing default export", name)
		}
	}
}

func TestFixPrompt(t *testing.T) {
	t.Parallel()

	got := FixPrompt("ReferenceError: x is not defined")
	want := "The code is not working. Can you fix it? Here's the error:\n\nReferenceError: x is not defined"
	if got != want {
		t.Errorf("FixPrompt() = %q, want %q", got, want)
	}
}

func TestPlannedPrompt(t *testing.T) {
	t.Parallel()

	got := PlannedPrompt("snake", "\n1. Grid\n2. Food\n")
	want := "snake\n\nFollow this implementation plan:\n\n1. Grid\n2. Food"
	if got != want {
		t.Errorf("PlannedPrompt() = %q, want %q", got, want)
	}
}
