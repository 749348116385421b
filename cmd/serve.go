package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/gameforge/internal/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and app previews",
	Long: `Serve the chat API, the streaming completion endpoint, sandboxed app
previews and the game coin ledger over HTTP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
		e.logger.Warn("coin ledger unavailable", "error", err)
	}
	provider, contexts, err := e.provider()
	if err != nil {
		return err
	}

	addr := e.cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	srv := server.New(server.Options{
		Chats:           e.chats,
		Provider:        provider,
		Model:           e.cfg.Model,
		Contexts:        contexts,
		Runner:          e.runner,
		Fixes:           e.fixes,
		Coins:           e.coins,
		Logger:          e.logger,
		ShutdownTimeout: e.cfg.Server.ShutdownTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
	e.logger.Info("serving", "addr", addr, "provider", provider.Name(), "model", e.cfg.Model)
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
