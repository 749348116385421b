package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/config"
	ctxmgr "github.com/zhubert/gameforge/internal/context"
	"github.com/zhubert/gameforge/internal/fixloop"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/logging"
	"github.com/zhubert/gameforge/internal/sandbox"
)

// env holds the pieces every command shares. close releases them in reverse
// order of creation.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	chats  *chat.Store
	runner *sandbox.Runner
	fixes  *fixloop.Tracker
	coins  *coin.Factory

	closers []func() error
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
		}
	}
}

// setup loads config and logging. The remaining pieces are opened on demand
// so commands like `chats` never touch the coin database.
func setup() (*env, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if providerFlag != "" {
		cfg.Provider = providerFlag
		if modelFlag == "" {
			cfg.Model = llm.DefaultModel(providerFlag)
		}
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.Setup(cfg.DataDir, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	e := &env{cfg: cfg, logger: logger}
	e.closers = append(e.closers, func() error {
		if err := cleanup(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		return nil
	})
	return e, nil
}

func (e *env) openChats() error {
	store, err := chat.StoreForDataDir(e.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening chat store: %w", err)
	}
	e.chats = store
	return nil
}

func (e *env) openSandbox() {
	opts := sandbox.Options{
		Timeout: e.cfg.Sandbox.Timeout,
		Workers: e.cfg.Sandbox.Workers,
		Logger:  e.logger,
	}
	if e.cfg.Sandbox.Browser {
		b := sandbox.NewBrowser(e.cfg.Sandbox.BrowserURL, 0, e.logger)
		opts.Browser = b
		e.closers = append(e.closers, b.Close)
	}
	e.runner = sandbox.NewRunner(opts)
	e.closers = append(e.closers, func() error {
		e.runner.Close()
		return nil
	})
	e.fixes = fixloop.NewTracker(fixloop.Config{
		MaxFixAttempts:    e.cfg.Fix.MaxAttempts,
		MaxRepeatedErrors: e.cfg.Fix.MaxRepeatedErrors,
	})
}

func (e *env) openCoins() error {
	f, err := coin.Open(e.cfg.CoinDBPath(), e.cfg.Coin.FactoryOwner, e.logger)
	if err != nil {
		return fmt.Errorf("opening coin ledger: %w", err)
	}
	e.coins = f
	e.closers = append(e.closers, f.Close)
	return nil
}

// provider builds the configured model provider and its context manager.
func (e *env) provider() (llm.Provider, *ctxmgr.Manager, error) {
	if e.cfg.APIKey() == "" {
		return nil, nil, errors.New(missingKeyHelp(e.cfg.Provider))
	}
	p, err := llm.New(e.cfg.Provider, e.cfg.APIKey(), e.cfg.BaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s provider: %w", e.cfg.Provider, err)
	}
	contexts := ctxmgr.NewManagerWithDefaults(ctxmgr.NewProviderSummarizer(p, e.cfg.Model))
	return p, contexts, nil
}

func missingKeyHelp(provider string) string {
	switch provider {
	case llm.ProviderTogether:
		return "TOGETHER_API_KEY is not set. Export it or add api_keys.together to ~/.gameforge/config.yaml"
	case llm.ProviderGemini:
		return "GEMINI_API_KEY is not set. Export it or add api_keys.gemini to ~/.gameforge/config.yaml"
	default:
		return "ANTHROPIC_API_KEY environment variable is not set. " +
			"Get an API key at https://console.anthropic.com/ and export it:\n\n" +
			"  export ANTHROPIC_API_KEY=sk-ant-..."
	}
}
