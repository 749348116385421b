package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/gameforge/internal/sandbox"
	"github.com/zhubert/gameforge/internal/watch"
)

var watchFlag bool

var runCmd = &cobra.Command{
	Use:   "run <files...>",
	Short: "Evaluate game files in the sandbox",
	Long: `Evaluate one or more generated programs (.tsx, .jsx, .ts, .js, .go) in the
sandbox and report whether each renders. With --watch, files are evaluated
again whenever they change.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "re-run files when they change")
	rootCmd.AddCommand(runCmd)
}

// errChecksFailed makes the command exit non-zero without repeating output.
var errChecksFailed = errors.New("one or more programs failed")

func runRun(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	e.openSandbox()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	reqs, err := readRequests(args)
	if err != nil {
		return err
	}
	failed := printChecks(out, e.runner.CheckAll(ctx, reqs, nil))

	if !watchFlag {
		if failed > 0 {
			cmd.SilenceUsage = true
			return errChecksFailed
		}
		return nil
	}

	fmt.Fprintf(out, "\nWatching %d file(s). Press Ctrl+C to stop.\n", len(args))
	err = watch.Files(ctx, args, watch.DefaultDebounce, e.logger, func(path string) {
		req, err := readRequest(path)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			return
		}
		printChecks(out, e.runner.CheckAll(ctx, []sandbox.Request{req}, nil))
	})
	if err != nil {
		return fmt.Errorf("watching files: %w", err)
	}
	return nil
}

func readRequests(paths []string) ([]sandbox.Request, error) {
	reqs := make([]sandbox.Request, 0, len(paths))
	for _, p := range paths {
		req, err := readRequest(p)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func readRequest(path string) (sandbox.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sandbox.Request{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return sandbox.Request{
		Key:      path,
		Language: languageFor(path),
		Code:     string(data),
		Filename: filepath.Base(path),
	}, nil
}

// languageFor maps a file extension to a fence language tag.
func languageFor(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// printChecks writes one line per check and returns the number that failed.
func printChecks(w io.Writer, checks []sandbox.Check) int {
	failed := 0
	for _, c := range checks {
		switch c.Frame.Status {
		case sandbox.StatusReady:
			fmt.Fprintf(w, "✓ %s (%s)\n", c.Request.Filename, c.Frame.Kind)
			for _, line := range c.Frame.Console {
				fmt.Fprintf(w, "    console: %s\n", line)
			}
			if c.Frame.Stdout != "" {
				fmt.Fprintf(w, "    stdout: %s\n", strings.TrimRight(c.Frame.Stdout, "\n"))
			}
		case sandbox.StatusUnsupported:
			failed++
			fmt.Fprintf(w, "? %s: cannot execute %q programs\n", c.Request.Filename, c.Request.Language)
		default:
			failed++
			fmt.Fprintf(w, "✗ %s\n", c.Request.Filename)
			for _, line := range strings.Split(strings.TrimRight(c.Frame.Error, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	return failed
}
