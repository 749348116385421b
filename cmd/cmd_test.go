package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/sandbox"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Feb 18, 2025"},
	}
	for _, tc := range cases {
		if got := formatTime(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("formatTime(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}
}

func TestLanguageFor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"games/snake.tsx": "tsx",
		"pong.JS":         "js",
		"main.go":         "go",
		"README":          "",
	}
	for path, want := range cases {
		if got := languageFor(path); got != want {
			t.Errorf("languageFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestReadRequest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snake.tsx")
	if err := os.WriteFile(path, []byte("export default () => null;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	req, err := readRequest(path)
	if err != nil {
		t.Fatalf("readRequest() error: %v", err)
	}
	if req.Language != "tsx" || req.Filename != "snake.tsx" || req.Key != path {
		t.Errorf("unexpected request %+v", req)
	}

	if _, err := readRequests([]string{path, path + ".missing"}); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPrintChecks(t *testing.T) {
	t.Parallel()

	checks := []sandbox.Check{
		{
			Request: sandbox.Request{Filename: "ok.tsx", Language: "tsx"},
			Frame:   sandbox.Frame{Kind: sandbox.KindReact, Status: sandbox.StatusReady, Console: []string{"log: hi"}},
		},
		{
			Request: sandbox.Request{Filename: "bad.js", Language: "js"},
			Frame:   sandbox.Frame{Kind: sandbox.KindScript, Status: sandbox.StatusError, Error: "ReferenceError: x is not defined\nat line 1"},
		},
		{
			Request: sandbox.Request{Filename: "game.py", Language: "py"},
			Frame:   sandbox.Frame{Kind: sandbox.KindUnsupported, Status: sandbox.StatusUnsupported},
		},
	}

	var buf bytes.Buffer
	if failed := printChecks(&buf, checks); failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	out := buf.String()
	for _, want := range []string{"✓ ok.tsx (react)", "console: log: hi", "✗ bad.js", "    at line 1", `cannot execute "py"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDraftFromFlags(t *testing.T) {
	// Mutates package flag variables; not parallel.
	t.Cleanup(func() {
		coinTitle, coinName, coinSymbol, coinDescription, coinImage = "", "", "", "", ""
	})

	coinTitle = "Space Dodger"
	coinSymbol = "DODGE"
	d := draftFromFlags()
	want := coin.Draft{
		Name:        "Space Dodger",
		Symbol:      "DODGE",
		Description: "Game: Space Dodger",
		ImageURI:    coin.DefaultImageURI,
	}
	if d != want {
		t.Errorf("draftFromFlags() = %+v, want %+v", d, want)
	}

	coinTitle, coinSymbol = "", ""
	coinName = "Bare"
	if d := draftFromFlags(); d.Name != "Bare" || d.ImageURI != coin.DefaultImageURI || d.Symbol != "" {
		t.Errorf("draftFromFlags() = %+v", d)
	}
}

func TestPrintGames(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var buf bytes.Buffer
	printGames(&buf, nil, now)
	if !strings.Contains(buf.String(), "No game coins.") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	printGames(&buf, []coin.Game{{ID: 1, Name: "Snake", Symbol: "SNAKE", Token: "0xabc", CreatedAt: now}}, now)
	if !strings.Contains(buf.String(), "SNAKE") || !strings.Contains(buf.String(), "just now") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestMissingKeyHelp(t *testing.T) {
	t.Parallel()

	if got := missingKeyHelp("gemini"); !strings.Contains(got, "GEMINI_API_KEY") {
		t.Errorf("missingKeyHelp(gemini) = %q", got)
	}
	if got := missingKeyHelp("anthropic"); !strings.Contains(got, "ANTHROPIC_API_KEY") {
		t.Errorf("missingKeyHelp(anthropic) = %q", got)
	}
}

func TestUpdateTemplate(t *testing.T) {
	t.Parallel()

	const owner = "0x0000000000000000000000000000000000000001"
	f, err := coin.Open(filepath.Join(t.TempDir(), "coins.db"), owner, nil)
	if err != nil {
		t.Fatalf("coin.Open() error: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	ctx := t.Context()

	var buf bytes.Buffer
	if err := updateTemplate(ctx, f, &buf, "", ""); err != nil {
		t.Fatalf("updateTemplate() error: %v", err)
	}
	before, _ := f.Template(ctx)
	if !strings.Contains(buf.String(), before) {
		t.Errorf("output %q missing template %s", buf.String(), before)
	}

	const next = "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD"
	err = updateTemplate(ctx, f, &buf, "0x1111111111111111111111111111111111111111", next)
	if !errors.Is(err, coin.ErrNotOwner) {
		t.Fatalf("non-owner error = %v, want ErrNotOwner", err)
	}

	buf.Reset()
	if err := updateTemplate(ctx, f, &buf, "", next); err != nil {
		t.Fatalf("updateTemplate() error: %v", err)
	}
	if got, _ := f.Template(ctx); got != strings.ToLower(next) {
		t.Errorf("Template() = %s", got)
	}
	if !strings.Contains(buf.String(), strings.ToLower(next)) {
		t.Errorf("output = %q", buf.String())
	}
}
