package llm

import (
	"context"
	"errors"
	"testing"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	p := &Static{Chunks: []string{"Hel", "lo", " world"}}
	got, err := Collect(p.Stream(context.Background(), Request{}))
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("Collect() = %q", got)
	}
}

func TestCollect_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := &Static{Chunks: []string{"partial"}, Err: boom}
	got, err := Collect(p.Stream(context.Background(), Request{}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got != "partial" {
		t.Errorf("partial text = %q", got)
	}
}

func TestStatic_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Static{Chunks: []string{"a", "b", "c"}}
	ch := p.Stream(ctx, Request{Model: "m"})
	<-ch
	cancel()
	for range ch {
	}
	if reqs := p.Requests(); len(reqs) != 1 || reqs[0].Model != "m" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestModelCatalogue(t *testing.T) {
	t.Parallel()

	if got := DefaultModel(""); got != "claude-sonnet-4-20250514" {
		t.Errorf("DefaultModel(\"\") = %q", got)
	}
	if got := DefaultModel(ProviderTogether); got != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("DefaultModel(together) = %q", got)
	}
	if got := Label("Qwen/Qwen2.5-Coder-32B-Instruct"); got != "Qwen 2.5 Coder 32B" {
		t.Errorf("Label() = %q", got)
	}
	if got := Label("unknown-model"); got != "unknown-model" {
		t.Errorf("Label() fallback = %q", got)
	}
	if len(ModelsFor(ProviderGemini)) != 2 {
		t.Errorf("expected two gemini models")
	}
	if _, ok := ModelByID("nope"); ok {
		t.Error("unexpected model match")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New(ProviderAnthropic, "sk-test", "")
	if err != nil {
		t.Fatalf("New(anthropic) error: %v", err)
	}
	if p.Name() != ProviderAnthropic {
		t.Errorf("Name() = %q", p.Name())
	}

	if _, err := New(ProviderTogether, "", ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	p, err = New(ProviderTogether, "key", "http://localhost:9999/v1")
	if err != nil {
		t.Fatalf("New(together) error: %v", err)
	}
	if p.Name() != ProviderTogether {
		t.Errorf("Name() = %q", p.Name())
	}

	if _, err := New("bogus", "", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}
