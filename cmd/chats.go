package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/gameforge/internal/llm"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List saved chats",
	Long:  `List all saved game chats, newest first.`,
	RunE:  runChats,
}

func init() {
	rootCmd.AddCommand(chatsCmd)
}

func runChats(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.openChats(); err != nil {
		return err
	}
	summaries, err := e.chats.List()
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved chats.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-12s  %-8s  %-16s  %s\n", "ID", "UPDATED", "MESSAGES", "MODEL", "TITLE")
	fmt.Fprintln(out, "──────────────────────────────────────────────────────────────────────────────────────────────")
	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(out, "%-36s  %-12s  %-8d  %-16s  %s\n",
			s.ID,
			formatTime(s.UpdatedAt, time.Now()),
			s.MessageCount,
			truncate(llm.Label(s.Model), 16),
			title,
		)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Resume a chat with: gameforge --resume <id>")
	fmt.Fprintln(out, "Resume the most recent: gameforge --resume last")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
