package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhubert/gameforge/internal/llm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, DirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, DirName, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg, err := Load(home, t.TempDir(), env(nil))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider != llm.ProviderAnthropic {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Model != llm.DefaultModel(llm.ProviderAnthropic) {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.DataDir != filepath.Join(home, DirName) {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Sandbox.Timeout != 5*time.Second {
		t.Errorf("Sandbox.Timeout = %s", cfg.Sandbox.Timeout)
	}
	if cfg.CoinDBPath() != filepath.Join(home, DirName, "coins.db") {
		t.Errorf("CoinDBPath() = %q", cfg.CoinDBPath())
	}
}

func TestLoadProjectOverridesHome(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	work := t.TempDir()
	writeConfig(t, home, `
provider: together
log_level: info
sandbox:
  timeout: 2s
  workers: 8
`)
	writeConfig(t, work, `
sandbox:
  timeout: 750ms
fix:
  max_attempts: 2
`)

	cfg, err := Load(home, work, env(nil))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider != llm.ProviderTogether {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Sandbox.Timeout != 750*time.Millisecond {
		t.Errorf("Sandbox.Timeout = %s, want project value", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.Workers != 8 {
		t.Errorf("Sandbox.Workers = %d, want home value kept", cfg.Sandbox.Workers)
	}
	if cfg.Fix.MaxAttempts != 2 || cfg.Fix.MaxRepeatedErrors != 3 {
		t.Errorf("Fix = %+v", cfg.Fix)
	}
}

func TestLoadEnvWins(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeConfig(t, home, "api_keys:\n  anthropic: from-file\n")

	cfg, err := Load(home, "", env(map[string]string{
		"ANTHROPIC_API_KEY":         "from-env",
		"GEMINI_API_KEY":            "gem",
		"GAMEFORGE_SANDBOX_TIMEOUT": "3s",
	}))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIKey() != "from-env" {
		t.Errorf("APIKey() = %q", cfg.APIKey())
	}
	if cfg.APIKeys.Gemini != "gem" {
		t.Errorf("APIKeys.Gemini = %q", cfg.APIKeys.Gemini)
	}
	if cfg.Sandbox.Timeout != 3*time.Second {
		t.Errorf("Sandbox.Timeout = %s", cfg.Sandbox.Timeout)
	}
}

func TestLoadProviderSwitchPicksDefaultModel(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir(), "", env(map[string]string{
		"GAMEFORGE_PROVIDER": llm.ProviderGemini,
		"GEMINI_API_KEY":     "k",
	}))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model != llm.DefaultModel(llm.ProviderGemini) {
		t.Errorf("Model = %q, want gemini default", cfg.Model)
	}
	if cfg.APIKey() != "k" {
		t.Errorf("APIKey() = %q", cfg.APIKey())
	}

	cfg, err = Load(t.TempDir(), "", env(map[string]string{
		"GAMEFORGE_PROVIDER": llm.ProviderTogether,
		"GAMEFORGE_MODEL":    "deepseek-ai/DeepSeek-V3",
	}))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("Model = %q, want explicit model kept", cfg.Model)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "provider: [unclosed"},
		{name: "unknown provider", file: "provider: openai"},
		{name: "zero workers", file: "sandbox:\n  workers: 0"},
		{name: "bad duration env", env: map[string]string{"GAMEFORGE_SANDBOX_TIMEOUT": "soon"}},
		{name: "bad browser env", env: map[string]string{"GAMEFORGE_BROWSER": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			home := t.TempDir()
			if tt.file != "" {
				writeConfig(t, home, tt.file)
			}
			if _, err := Load(home, "", env(tt.env)); err == nil {
				t.Error("expected Load() to fail")
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	cfg := Default(t.TempDir())
	err := LoadFile(cfg, filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadFile() error = %v, want not-exist", err)
	}
}
