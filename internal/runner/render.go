package runner

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/sandbox"
	"github.com/zhubert/gameforge/internal/stream"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
)

var (
	generatingBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1a1b26")).
			Background(lipgloss.Color("#e0af68")).
			Padding(0, 1)
	versionBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1a1b26")).
			Background(lipgloss.Color("#9ece6a")).
			Padding(0, 1)
	fileStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
)

// generatingLine is shown while the app fence is still open.
func generatingLine(version int) string {
	return generatingBadge.Render(fmt.Sprintf("V%d", version)) + " Generating..."
}

// versionLine is shown once the app fence closes.
func versionLine(version int, seg fence.Segment) string {
	title := fence.TitleCase(seg.Filename.Name)
	name := seg.Filename.String()
	if title == "" {
		title = "App"
		name = seg.Language
	}
	line := versionBadge.Render(fmt.Sprintf("V%d", version)) + " " + title
	if name != "" {
		line += " " + fileStyle.Render(name)
	}
	return line
}

// markdownRenderer is the glamour renderer for terminal markdown.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithStylePath("tokyo-night"),
		glamour.WithWordWrap(0), // No wrapping - let terminal handle it
	)
	if err != nil {
		// Fallback: no rendering
		markdownRenderer = nil
	}
}

// addDefaultLanguage labels unlabeled fences in prose as "text" so chroma
// does not guess a language for them.
func addDefaultLanguage(content string) string {
	lines := strings.Split(content, "\n")
	inFence := false
	for i, line := range lines {
		if !strings.HasPrefix(line, fence.Delimiter) {
			continue
		}
		if !inFence && strings.TrimSpace(strings.TrimPrefix(line, fence.Delimiter)) == "" {
			lines[i] = fence.Delimiter + "text"
		}
		inFence = !inFence
	}
	return strings.Join(lines, "\n")
}

// renderMarkdown converts markdown to styled terminal output using glamour.
func renderMarkdown(content string) string {
	if markdownRenderer == nil || strings.TrimSpace(content) == "" {
		return content
	}
	rendered, err := markdownRenderer.Render(addDefaultLanguage(content))
	if err != nil {
		return content
	}
	return strings.TrimSuffix(rendered, "\n")
}

// view prints a streamed reply as it grows: prose is flushed through glamour
// a line at a time, and the app fence is shown as a badge instead of code.
type view struct {
	out     io.Writer
	version int
	render  func(string) string

	leadPrinted  int
	trailPrinted int
	badgeShown   bool
	doneShown    bool
}

func newView(out io.Writer, version int) *view {
	return &view{out: out, version: version, render: renderMarkdown}
}

// flushLines prints text[*printed:] up to its last newline, or all of it when
// final is set.
func (v *view) flushLines(text string, printed *int, final bool) {
	if *printed >= len(text) {
		return
	}
	pending := text[*printed:]
	if !final {
		i := strings.LastIndexByte(pending, '\n')
		if i < 0 {
			return
		}
		pending = pending[:i+1]
	}
	*printed += len(pending)
	if strings.TrimSpace(pending) == "" {
		return
	}
	fmt.Fprintln(v.out, v.render(pending))
}

// update is a stream.Observer.
func (v *view) update(u stream.Update) {
	final := u.State.Terminal()
	segs := fence.SplitByFirstFence(u.Text)

	var lead, trail string
	var app *fence.Segment
	for i := range segs {
		switch {
		case segs[i].IsFence():
			app = &segs[i]
		case app == nil:
			lead = segs[i].Content
		default:
			trail = segs[i].Content
		}
	}

	v.flushLines(lead, &v.leadPrinted, final || app != nil)
	if app == nil {
		return
	}
	if !v.badgeShown {
		v.badgeShown = true
		if app.Kind == fence.KindGeneratingFence {
			fmt.Fprintln(v.out, generatingLine(v.version))
		}
	}
	if app.Kind == fence.KindCompletedFence && !v.doneShown {
		v.doneShown = true
		fmt.Fprintln(v.out, versionLine(v.version, *app))
	}
	v.flushLines(trail, &v.trailPrinted, final)
}

// describeFrame summarizes a rendered frame for the terminal.
func describeFrame(f sandbox.Frame) string {
	switch f.Status {
	case sandbox.StatusReady:
		var b strings.Builder
		b.WriteString(colorGreen + "✓" + colorReset + " rendered")
		if f.Request.Filename != "" {
			b.WriteString(" " + fileStyle.Render(f.Request.Filename))
		}
		if f.Stdout != "" {
			b.WriteString("\n" + colorDim + strings.TrimRight(f.Stdout, "\n") + colorReset)
		}
		for _, line := range f.Console {
			b.WriteString("\n" + colorDim + "console " + line + colorReset)
		}
		return b.String()
	case sandbox.StatusUnsupported:
		return colorYellow + fmt.Sprintf("Cannot execute %s code.", f.Request.Language) + colorReset
	default:
		return colorRed + "✗" + colorReset + " " + errorStyle.Render(f.Error)
	}
}
