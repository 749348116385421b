package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zhubert/gameforge/internal/agent"
	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/runner"
	"github.com/zhubert/gameforge/internal/version"
)

var (
	providerFlag string
	modelFlag    string
	resumeFlag   string
)

var rootCmd = &cobra.Command{
	Use:     "gameforge",
	Short:   "Generate small browser games with a language model",
	Version: version.String(),
	RunE:    runREPL,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "model provider (anthropic, together, gemini)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model id")
	rootCmd.Flags().StringVar(&resumeFlag, "resume", "", `resume a chat by id, or "last" for the most recent`)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runREPL(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.openChats(); err != nil {
		return err
	}
	e.openSandbox()
	if err := e.openCoins(); err != nil {
		// The REPL still works without coins; /coin reports it.
		e.logger.Warn("coin ledger unavailable", "error", err)
	}

	provider, contexts, err := e.provider()
	if err != nil {
		return err
	}

	e.logger.Info("starting gameforge", "provider", provider.Name(), "model", e.cfg.Model)

	ag := agent.New(provider, e.cfg.Model, contexts, e.logger)

	var resumed *chat.Chat
	if resumeFlag != "" {
		resumed, err = loadChat(e.chats, resumeFlag)
		if err != nil {
			return err
		}
		ag.Restore(resumed.History())
		if resumed.Model != "" && resumed.Model != e.cfg.Model {
			ag.SetModel(resumed.Model)
		}
		e.logger.Info("resumed chat", "chat_id", resumed.ID, "messages", len(resumed.Messages))
	}

	r := runner.New(runner.Options{
		Agent:       ag,
		Chats:       e.chats,
		Chat:        resumed,
		Sandbox:     e.runner,
		Fixes:       e.fixes,
		Coins:       e.coins,
		Logger:      e.logger,
		HistoryFile: filepath.Join(e.cfg.DataDir, "history"),
	})
	return r.Run()
}

func loadChat(store *chat.Store, id string) (*chat.Chat, error) {
	if id == "last" {
		c, err := store.MostRecent()
		if err != nil {
			return nil, fmt.Errorf("finding most recent chat: %w", err)
		}
		return c, nil
	}
	c, err := store.Load(id)
	if err != nil {
		return nil, fmt.Errorf("loading chat %s: %w", id, err)
	}
	return c, nil
}
