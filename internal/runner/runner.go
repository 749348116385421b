// Package runner is the interactive terminal loop: it streams replies,
// previews each generated version in the sandbox and offers fixes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/zhubert/gameforge/internal/agent"
	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/fixloop"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/sandbox"
	"github.com/zhubert/gameforge/internal/stream"
	"github.com/zhubert/gameforge/internal/version"
)

// Options configures a Runner. Chat may be nil to start fresh; Coins may be
// nil to disable /coin.
type Options struct {
	Agent       *agent.Agent
	Chats       *chat.Store
	Chat        *chat.Chat
	Sandbox     *sandbox.Runner
	Fixes       *fixloop.Tracker
	Coins       *coin.Factory
	Logger      *slog.Logger
	HistoryFile string
	Out         io.Writer
}

// Runner handles the stdin/stdout interaction loop.
type Runner struct {
	opts   Options
	out    io.Writer
	logger *slog.Logger
	chat   *chat.Chat

	// pendingFix is the error of the latest preview, if any.
	pendingFix string
	// confirm asks a yes/no question.
	confirm func(prompt string) bool
}

// New creates a new Runner.
func New(opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Fixes == nil {
		opts.Fixes = fixloop.NewTracker(fixloop.DefaultConfig())
	}
	r := &Runner{opts: opts, out: opts.Out, logger: opts.Logger, chat: opts.Chat}
	r.confirm = func(string) bool { return false }
	return r
}

// Run starts the main interaction loop.
func (r *Runner) Run() error {
	r.printWelcome()

	// Handle ctrl+c gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorBold + "> " + colorReset,
		HistoryFile:     r.opts.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          r.out,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()
	r.confirm = func(prompt string) bool { return confirmWith(rl, prompt) }

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue // Ctrl+C clears line, continue prompting
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "Goodbye.")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			fmt.Fprintln(r.out, "Goodbye.")
			return nil
		}

		if strings.HasPrefix(input, "/") {
			r.handleSlashCommand(input, sigCh)
			continue
		}

		r.opts.Fixes.Reset(r.chatID())
		if err := r.processInput(input, sigCh); err != nil {
			fmt.Fprintf(r.out, "%sError: %v%s\n", colorRed, err, colorReset)
		}
	}
}

func confirmWith(rl *readline.Instance, prompt string) bool {
	rl.SetPrompt(prompt)
	defer rl.SetPrompt(colorBold + "> " + colorReset)
	line, err := rl.Readline()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (r *Runner) chatID() string {
	if r.chat == nil {
		return ""
	}
	return r.chat.ID
}

// record stores a message in the current chat, creating the chat on the
// first user message.
func (r *Runner) record(role llm.Role, content string, state chat.State) error {
	if r.opts.Chats == nil {
		return nil
	}
	if r.chat == nil {
		c, err := r.opts.Chats.Create(content, r.opts.Agent.Model())
		if err != nil {
			return fmt.Errorf("creating chat: %w", err)
		}
		r.chat = c
		return nil
	}
	if _, err := r.opts.Chats.AddMessage(r.chat.ID, role, content, state); err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	c, err := r.opts.Chats.Load(r.chat.ID)
	if err != nil {
		return fmt.Errorf("reloading chat: %w", err)
	}
	r.chat = c
	return nil
}

// nextVersion is the number the next app version will get.
func (r *Runner) nextVersion() int {
	if r.chat == nil {
		return 1
	}
	return len(r.chat.AssistantVersions()) + 1
}

// processInput sends input, streams the reply and previews its app.
func (r *Runner) processInput(input string, sigCh <-chan os.Signal) error {
	ok, err := r.converse(input, sigCh)
	if err != nil || !ok {
		return err
	}
	return r.preview(sigCh)
}

// interruptible returns a context cancelled by the next signal on sigCh.
func interruptible(sigCh <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// converse streams one reply and stores it. It reports false when the user
// cancelled.
func (r *Runner) converse(input string, sigCh <-chan os.Signal) (bool, error) {
	ctx, cancel := interruptible(sigCh)
	defer cancel()

	if err := r.record(llm.RoleUser, input, chat.StateNone); err != nil {
		return false, err
	}

	fmt.Fprintln(r.out) // blank line before response
	v := newView(r.out, r.nextVersion())
	src := stream.NewChanSource(r.opts.Agent.SendMessage(ctx, input))
	res, err := stream.NewConsumer(r.logger, v.update).Run(ctx, src)
	if res.State == stream.StateCancelled {
		fmt.Fprintln(r.out, colorYellow+"\n[Cancelled]"+colorReset)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	state := chat.StateComplete
	if res.State == stream.StateIncomplete {
		state = chat.StateIncomplete
		fmt.Fprintln(r.out, colorYellow+"The reply ended before the code was finished. Ask to continue or try again."+colorReset)
	}
	if err := r.record(llm.RoleAssistant, res.Text, state); err != nil {
		return false, err
	}
	r.nameChat()
	fmt.Fprintln(r.out)
	return true, nil
}

// nameChat titles the chat after its first app.
func (r *Runner) nameChat() {
	if r.chat == nil || r.opts.Chats == nil {
		return
	}
	versions := r.chat.AssistantVersions()
	if len(versions) != 1 || versions[0].Block.Filename.Name == "" {
		return
	}
	title := fence.TitleCase(versions[0].Block.Filename.Name)
	if r.chat.Title == title {
		return
	}
	if err := r.opts.Chats.SetTitle(r.chat.ID, title); err != nil {
		r.logger.Warn("saving chat title", "error", err)
		return
	}
	r.chat.SetTitle(title)
}

// latest returns the newest app version of the chat.
func (r *Runner) latest() (chat.Version, bool) {
	if r.chat == nil {
		return chat.Version{}, false
	}
	versions := r.chat.AssistantVersions()
	if len(versions) == 0 {
		return chat.Version{}, false
	}
	return versions[len(versions)-1], true
}

func (r *Runner) previewSlot() string {
	if id := r.chatID(); id != "" {
		return id
	}
	return "repl"
}

func requestFor(v chat.Version) sandbox.Request {
	return sandbox.Request{
		Key:      v.Message.ID,
		Language: v.Block.Language,
		Code:     v.Block.Code,
		Filename: v.Block.Filename.String(),
	}
}

// preview renders the newest version and offers a fix when it fails.
func (r *Runner) preview(sigCh <-chan os.Signal) error {
	if r.opts.Sandbox == nil {
		return nil
	}
	v, ok := r.latest()
	if !ok {
		return nil
	}
	r.pendingFix = ""
	frame := r.opts.Sandbox.Render(context.Background(), r.previewSlot(), requestFor(v), func(errText string) {
		r.pendingFix = errText
	})
	return r.showFrame(frame, sigCh)
}

func (r *Runner) showFrame(frame sandbox.Frame, sigCh <-chan os.Signal) error {
	fmt.Fprintln(r.out, describeFrame(frame))
	if frame.Status != sandbox.StatusError || r.pendingFix == "" {
		return nil
	}
	if !r.confirm(colorYellow + "Ask the model to fix it? [y/n]: " + colorReset) {
		fmt.Fprintln(r.out, colorDim+"Type /fix later to ask for a fix."+colorReset)
		return nil
	}
	return r.requestFix(sigCh)
}

// requestFix sends the fix prompt for the pending error unless the chat is
// stuck in a fix loop.
func (r *Runner) requestFix(sigCh <-chan os.Signal) error {
	if r.pendingFix == "" {
		fmt.Fprintln(r.out, "Nothing to fix.")
		return nil
	}
	if d := r.opts.Fixes.Allow(r.chatID(), r.pendingFix); d.Detected {
		r.logger.Warn("fix loop detected", "chat_id", r.chatID(), "reason", d.Reason)
		fmt.Fprintf(r.out, "%sNot asking for another fix: %s. Describe the problem in your own words instead.%s\n",
			colorYellow, d.Reason, colorReset)
		return nil
	}
	errText := r.pendingFix
	r.pendingFix = ""
	return r.processInput(agent.FixPrompt(errText), sigCh)
}

func (r *Runner) printWelcome() {
	info := []string{
		fmt.Sprintf("v%s", version.Version),
		llm.Label(r.opts.Agent.Model()),
	}
	if r.chat != nil {
		info = append(info, "resumed: "+r.chat.Title)
	}
	fmt.Fprintf(r.out, "%s%sgameforge%s  %s%s%s\n", colorBold, colorCyan, colorReset, colorDim, strings.Join(info, " · "), colorReset)
	fmt.Fprintln(r.out, colorDim+"Describe a game to build. Type /help for commands."+colorReset)
	fmt.Fprintln(r.out)
}

