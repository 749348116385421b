package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zhubert/gameforge/internal/agent"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/llm"
)

func (r *Runner) handleSlashCommand(input string, sigCh <-chan os.Signal) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "/model", "/m":
		r.handleModelCommand(args)
	case "/run", "/r":
		err = r.preview(sigCh)
		if _, ok := r.latest(); !ok {
			fmt.Fprintln(r.out, "No app generated yet.")
		}
	case "/refresh":
		r.handleRefreshCommand(sigCh)
	case "/plan", "/p":
		err = r.handlePlanCommand(strings.Join(args, " "), sigCh)
	case "/fix":
		err = r.requestFix(sigCh)
	case "/versions", "/v":
		r.listVersions()
	case "/save", "/s":
		err = r.handleSaveCommand(args)
	case "/coin":
		err = r.handleCoinCommand(args)
	case "/new":
		r.chat = nil
		r.pendingFix = ""
		r.opts.Agent.Restore(nil)
		fmt.Fprintln(r.out, "Started a new chat.")
	case "/help", "/h", "/?":
		r.handleHelpCommand()
	default:
		fmt.Fprintf(r.out, "%sUnknown command: %s. Type /help for available commands.%s\n", colorRed, cmd, colorReset)
	}
	if err != nil {
		fmt.Fprintf(r.out, "%sError: %v%s\n", colorRed, err, colorReset)
	}
}

func (r *Runner) handleHelpCommand() {
	help := `
Available commands:
  /model, /m               - Change or view the current model
    list                   - Show available models
    <number>               - Switch by number (e.g. /m 3)
    <model-id>             - Switch by name (e.g. /m haiku)
  /plan, /p <idea>         - Draft an implementation plan, then build it
  /run, /r                 - Render the latest version again
  /refresh                 - Remount the latest version from scratch
  /fix                     - Ask the model to fix the last error
  /versions, /v            - List the versions of this chat
  /save, /s [path]         - Write the latest version to a file
  /coin <wallet>           - Create a game coin for the latest version
  /new                     - Start a new chat
  /help, /h, /?            - Show this help message

  exit, quit               - Close the application
`
	fmt.Fprintln(r.out, help)
}

// handlePlanCommand asks for a plan of idea and builds it once confirmed.
func (r *Runner) handlePlanCommand(idea string, sigCh <-chan os.Signal) error {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		fmt.Fprintln(r.out, "Usage: /plan <game idea>")
		return nil
	}

	fmt.Fprintln(r.out, colorDim+"Coming up with a plan..."+colorReset)
	ctx, cancel := interruptible(sigCh)
	plan, err := r.opts.Agent.Plan(ctx, idea)
	cancelled := ctx.Err() != nil
	cancel()
	if cancelled {
		fmt.Fprintln(r.out, colorYellow+"[Cancelled]"+colorReset)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, renderMarkdown(plan))
	if !r.confirm("Build this plan? [y/N] ") {
		return nil
	}
	r.opts.Fixes.Reset(r.chatID())
	return r.processInput(agent.PlannedPrompt(idea, plan), sigCh)
}

func (r *Runner) handleModelCommand(args []string) {
	if len(args) == 0 {
		r.listModels()
		return
	}

	subcmd := strings.ToLower(args[0])
	if subcmd == "list" || subcmd == "ls" || subcmd == "l" {
		r.listModels()
		return
	}

	// Treat argument as model ID
	r.switchModel(args[0])
}

func (r *Runner) listModels() {
	current := r.opts.Agent.Model()
	models := llm.Models()

	fmt.Fprintf(r.out, "\nCurrent model: %s%s%s\n\n", colorBold, llm.Label(current), colorReset)
	fmt.Fprintln(r.out, "Available models:")
	for i, m := range models {
		marker := "  "
		if m.ID == current {
			marker = colorGreen + "→ " + colorReset
		}
		fmt.Fprintf(r.out, "%s%s[%d]%s %-50s %s%s (%s)%s\n", marker, colorCyan, i+1, colorReset, m.ID, colorDim, m.Label, m.Provider, colorReset)
	}
	fmt.Fprintln(r.out, "\nUsage: /m <number> or /m <model-id>")
}

func (r *Runner) switchModel(modelID string) {
	models := llm.Models()

	// Check if input is a number (1-indexed selection)
	if num, err := strconv.Atoi(modelID); err == nil {
		if num >= 1 && num <= len(models) {
			r.setModel(models[num-1])
			return
		}
		fmt.Fprintf(r.out, "%sInvalid model number: %d (choose 1-%d)%s\n", colorRed, num, len(models), colorReset)
		return
	}

	// Find matching model (partial match allowed)
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), strings.ToLower(modelID)) {
			r.setModel(m)
			return
		}
	}
	fmt.Fprintf(r.out, "%sModel not found: %s%s\n", colorRed, modelID, colorReset)
	fmt.Fprintln(r.out, "Use /model list to see available models.")
}

func (r *Runner) setModel(m llm.Model) {
	if p := r.opts.Agent.ProviderName(); p != m.Provider {
		fmt.Fprintf(r.out, "%s%s is served by %s; restart with provider %s to use it.%s\n",
			colorYellow, m.Label, m.Provider, m.Provider, colorReset)
		return
	}
	r.opts.Agent.SetModel(m.ID)
	fmt.Fprintf(r.out, "Switched to %s%s%s\n", colorGreen, m.Label, colorReset)
}

func (r *Runner) handleRefreshCommand(sigCh <-chan os.Signal) {
	if r.opts.Sandbox == nil {
		return
	}
	r.pendingFix = ""
	frame, ok := r.opts.Sandbox.Refresh(context.Background(), r.previewSlot())
	if !ok {
		fmt.Fprintln(r.out, "Nothing to refresh. Use /run first.")
		return
	}
	if err := r.showFrame(frame, sigCh); err != nil {
		fmt.Fprintf(r.out, "%sError: %v%s\n", colorRed, err, colorReset)
	}
}

func (r *Runner) listVersions() {
	if r.chat == nil {
		fmt.Fprintln(r.out, "No versions yet.")
		return
	}
	versions := r.chat.AssistantVersions()
	if len(versions) == 0 {
		fmt.Fprintln(r.out, "No versions yet.")
		return
	}
	for _, v := range versions {
		seg := fence.Completed(v.Block.Language, v.Block.Filename, v.Block.Code)
		fmt.Fprintf(r.out, "%s %s(%d lines)%s\n", versionLine(v.Number, seg), colorDim, strings.Count(v.Block.Code, "\n"), colorReset)
	}
}

// handleSaveCommand writes the latest code block to args[0], or to its
// annotated filename in the current directory.
func (r *Runner) handleSaveCommand(args []string) error {
	v, ok := r.latest()
	if !ok {
		fmt.Fprintln(r.out, "No app generated yet.")
		return nil
	}
	path := v.Block.Filename.String()
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = "app." + v.Block.Language
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(v.Block.Code), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(r.out, "Saved V%d to %s\n", v.Number, fileStyle.Render(path))
	return nil
}

// handleCoinCommand creates a game coin for the latest version, pre-filled
// from its title, with the given wallet as creator.
func (r *Runner) handleCoinCommand(args []string) error {
	if r.opts.Coins == nil {
		fmt.Fprintln(r.out, "The coin ledger is disabled.")
		return nil
	}
	if len(args) == 0 {
		fmt.Fprintln(r.out, "Usage: /coin <wallet-address> [SYMBOL]")
		return nil
	}
	v, ok := r.latest()
	if !ok {
		fmt.Fprintln(r.out, "No app generated yet.")
		return nil
	}

	title := fence.TitleCase(v.Block.Filename.Name)
	if title == "" {
		title = r.chat.Title
	}
	draft := coin.DraftFromTitle(title)
	if len(args) > 1 {
		draft.Symbol = strings.ToUpper(args[1])
	}

	g, err := r.opts.Coins.CreateGameToken(context.Background(), args[0], draft)
	if err != nil {
		return fmt.Errorf("creating coin: %w", err)
	}
	fmt.Fprintf(r.out, "%s✓%s Created %s%s%s (%s) #%d at %s\n", colorGreen, colorReset,
		colorBold, g.Name, colorReset, g.Symbol, g.ID, fileStyle.Render(g.Token))
	fmt.Fprintf(r.out, "%s%s %s minted to %s%s\n", colorDim, coin.FormatAmount(coin.InitialSupply), g.Symbol, g.Creator, colorReset)
	return nil
}
