// Package config loads gameforge settings from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/gameforge/internal/llm"
)

// DirName is the directory holding gameforge files, both in the home
// directory and in a project directory.
const DirName = ".gameforge"

// Config holds every setting. Zero fields fall back to Default values.
type Config struct {
	Provider string  `yaml:"provider"`
	Model    string  `yaml:"model"`
	APIKeys  APIKeys `yaml:"api_keys"`
	// TogetherURL overrides the Together endpoint.
	TogetherURL string `yaml:"together_url"`

	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Server  Server  `yaml:"server"`
	Sandbox Sandbox `yaml:"sandbox"`
	Fix     Fix     `yaml:"fix"`
	Coin    Coin    `yaml:"coin"`
}

type APIKeys struct {
	Anthropic string `yaml:"anthropic"`
	Together  string `yaml:"together"`
	Gemini    string `yaml:"gemini"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Sandbox struct {
	Timeout time.Duration `yaml:"timeout"`
	Workers int           `yaml:"workers"`
	// Browser enables headless Chrome verification of rendered frames.
	Browser    bool   `yaml:"browser"`
	BrowserURL string `yaml:"browser_url"`
}

type Fix struct {
	MaxAttempts       int `yaml:"max_attempts"`
	MaxRepeatedErrors int `yaml:"max_repeated_errors"`
}

type Coin struct {
	// FactoryOwner is the address allowed to change the token template.
	FactoryOwner string `yaml:"factory_owner"`
	DBPath       string `yaml:"db_path"`
}

// Default returns the built-in settings rooted at home.
func Default(home string) *Config {
	dataDir := filepath.Join(home, DirName)
	return &Config{
		Provider: llm.ProviderAnthropic,
		Model:    llm.DefaultModel(llm.ProviderAnthropic),
		DataDir:  dataDir,
		LogLevel: "debug",
		Server: Server{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Sandbox: Sandbox{
			Timeout: 5 * time.Second,
			Workers: 4,
		},
		Fix: Fix{
			MaxAttempts:       5,
			MaxRepeatedErrors: 3,
		},
		Coin: Coin{
			FactoryOwner: "0x0000000000000000000000000000000000000001",
		},
	}
}

// LoadFile reads one YAML file over cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Load builds the effective config: defaults, then <home>/.gameforge/config.yaml,
// then <workDir>/.gameforge/config.yaml, then environment variables. Missing
// files are skipped.
func Load(home, workDir string, getenv func(string) string) (*Config, error) {
	cfg := Default(home)

	paths := []string{filepath.Join(home, DirName, "config.yaml")}
	if workDir != "" && workDir != home {
		paths = append(paths, filepath.Join(workDir, DirName, "config.yaml"))
	}
	for _, p := range paths {
		if err := LoadFile(cfg, p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the config for the current user and directory.
func LoadDefault() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return Load(home, workDir, os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	providerBefore := c.Provider
	modelBefore := c.Model

	set(&c.APIKeys.Anthropic, "ANTHROPIC_API_KEY")
	set(&c.APIKeys.Together, "TOGETHER_API_KEY")
	set(&c.APIKeys.Gemini, "GEMINI_API_KEY")
	set(&c.Provider, "GAMEFORGE_PROVIDER")
	set(&c.Model, "GAMEFORGE_MODEL")
	set(&c.DataDir, "GAMEFORGE_DATA_DIR")
	set(&c.LogLevel, "GAMEFORGE_LOG_LEVEL")
	set(&c.Server.Addr, "GAMEFORGE_ADDR")

	if v := getenv("GAMEFORGE_SANDBOX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GAMEFORGE_SANDBOX_TIMEOUT: %w", err)
		}
		c.Sandbox.Timeout = d
	}
	if v := getenv("GAMEFORGE_BROWSER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GAMEFORGE_BROWSER: %w", err)
		}
		c.Sandbox.Browser = b
	}

	// Switching provider without naming a model picks that provider's default.
	if c.Provider != providerBefore && c.Model == modelBefore {
		if m, ok := llm.ModelByID(c.Model); !ok || m.Provider != c.Provider {
			c.Model = llm.DefaultModel(c.Provider)
		}
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderAnthropic, llm.ProviderTogether, llm.ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	if c.Sandbox.Workers < 1 {
		return fmt.Errorf("sandbox workers must be at least 1, got %d", c.Sandbox.Workers)
	}
	if c.Fix.MaxAttempts < 1 || c.Fix.MaxRepeatedErrors < 1 {
		return errors.New("fix limits must be at least 1")
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case llm.ProviderTogether:
		return c.APIKeys.Together
	case llm.ProviderGemini:
		return c.APIKeys.Gemini
	default:
		return c.APIKeys.Anthropic
	}
}

// BaseURL returns the endpoint override for the configured provider.
func (c *Config) BaseURL() string {
	if c.Provider == llm.ProviderTogether {
		return c.TogetherURL
	}
	return ""
}

// CoinDBPath is the SQLite file of the coin ledger.
func (c *Config) CoinDBPath() string {
	if c.Coin.DBPath != "" {
		return c.Coin.DBPath
	}
	return filepath.Join(c.DataDir, "coins.db")
}
