// Package sandbox renders generated programs in isolated runtimes. Each
// render gets a fresh interpreter with no access to the host process, and
// failures are reported once per mounted frame so the caller can ask the
// model for a fix.
package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind is the execution strategy for a language.
type Kind string

const (
	KindReact       Kind = "react"
	KindScript      Kind = "script"
	KindGo          Kind = "go"
	KindUnsupported Kind = "unsupported"
)

var languageKinds = map[string]Kind{
	"tsx":        KindReact,
	"jsx":        KindReact,
	"ts":         KindReact,
	"typescript": KindReact,
	"react":      KindReact,
	"js":         KindScript,
	"javascript": KindScript,
	"go":         KindGo,
	"golang":     KindGo,
}

// KindOf maps a fence language tag to its strategy.
func KindOf(language string) Kind {
	if k, ok := languageKinds[strings.ToLower(strings.TrimSpace(language))]; ok {
		return k
	}
	return KindUnsupported
}

// Request is one program to render. Key identifies the mount; rendering the
// same key again is a no-op.
type Request struct {
	Key      string `json:"key"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
}

// Output is what a program produced.
type Output struct {
	Markup  string
	Console []string
	Stdout  string
}

// Status of a mounted frame.
type Status string

const (
	StatusReady       Status = "ready"
	StatusError       Status = "error"
	StatusUnsupported Status = "unsupported"
)

// Frame is the result of mounting a request in a slot.
type Frame struct {
	Slot      string    `json:"slot"`
	Request   Request   `json:"request"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Markup    string    `json:"markup,omitempty"`
	Console   []string  `json:"console,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Error     string    `json:"error,omitempty"`
	MountedAt time.Time `json:"mounted_at"`
}

// FixFunc receives a formatted error. It is called at most once per frame.
type FixFunc func(errText string)

// DefaultTimeout bounds one evaluation.
const DefaultTimeout = 5 * time.Second

// Options configures a Runner.
type Options struct {
	Timeout time.Duration
	Workers int
	// Browser, when set, loads every successfully rendered frame in headless
	// Chrome and reports the first uncaught exception.
	Browser *Browser
	Logger  *slog.Logger
}

// mount is a frame living in a slot.
type mount struct {
	frame  Frame
	cancel context.CancelFunc
	fix    FixFunc
	once   sync.Once
	torn   atomic.Bool
}

func (m *mount) teardown() {
	m.torn.Store(true)
	m.cancel()
}

// requestFix forwards errText unless the frame was torn down or already
// reported.
func (m *mount) requestFix(errText string) bool {
	if m.torn.Load() || m.fix == nil || errText == "" {
		return false
	}
	sent := false
	m.once.Do(func() {
		sent = true
		m.fix(errText)
	})
	return sent
}

// Runner mounts frames into named slots.
type Runner struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	frames map[string]*mount
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{opts: opts, logger: logger, frames: make(map[string]*mount)}
}

// Render mounts req in slot. When the slot already shows the same key and
// code the existing frame is returned untouched. Otherwise the previous frame
// is torn down, interrupting a runtime that is still evaluating, and the new
// one is evaluated. Errors go to onRequestFix, never to the caller.
func (r *Runner) Render(ctx context.Context, slot string, req Request, onRequestFix FixFunc) Frame {
	if req.Key == "" {
		req.Key = uuid.NewString()
	}

	r.mu.Lock()
	if m, ok := r.frames[slot]; ok {
		if m.frame.Request == req {
			f := m.frame
			r.mu.Unlock()
			return f
		}
		m.teardown()
	}
	mctx, cancel := context.WithCancel(ctx)
	m := &mount{
		frame:  Frame{Slot: slot, Request: req, Kind: KindOf(req.Language), MountedAt: time.Now()},
		cancel: cancel,
		fix:    onRequestFix,
	}
	r.frames[slot] = m
	r.mu.Unlock()

	frame := r.evaluate(mctx, m.frame)

	if frame.Status == StatusReady && r.opts.Browser != nil && frame.Kind != KindGo {
		if msg, err := r.opts.Browser.Check(mctx, frame); err != nil {
			r.logger.Warn("browser check failed", "slot", slot, "error", err)
		} else if msg != "" {
			frame.Status, frame.Error = StatusError, msg
		}
	}

	r.mu.Lock()
	if r.frames[slot] == m {
		m.frame = frame
	}
	r.mu.Unlock()

	if frame.Status == StatusError {
		r.logger.Info("frame failed", "slot", slot, "key", req.Key, "kind", frame.Kind)
		m.requestFix(frame.Error)
	}
	return frame
}

// evaluate runs f.Request with the configured timeout.
func (r *Runner) evaluate(ctx context.Context, f Frame) Frame {
	ctx, cancel := context.WithTimeoutCause(ctx, r.opts.Timeout, errTimeout)
	defer cancel()

	var (
		out Output
		err error
	)
	switch f.Kind {
	case KindReact:
		out, err = runReact(ctx, f.Request)
	case KindScript:
		out, err = runScript(ctx, f.Request)
	case KindGo:
		out, err = runGo(ctx, f.Request)
	default:
		f.Status = StatusUnsupported
		return f
	}

	f.Markup, f.Console, f.Stdout = out.Markup, out.Console, out.Stdout
	if err != nil {
		f.Status, f.Error = StatusError, err.Error()
		return f
	}
	f.Status = StatusReady
	return f
}

var errTimeout = errors.New("render timed out")

// ReportError routes an error observed outside the runner, such as one
// reported by the browser, through the frame's once-guard. It returns false
// when the key no longer matches the mounted frame or the frame already
// reported.
func (r *Runner) ReportError(slot, key, errText string) bool {
	r.mu.Lock()
	m, ok := r.frames[slot]
	ok = ok && m.frame.Request.Key == key
	if ok && m.frame.Status == StatusReady {
		m.frame.Status, m.frame.Error = StatusError, errText
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	return m.requestFix(errText)
}

// Refresh remounts the slot's request under a new key.
func (r *Runner) Refresh(ctx context.Context, slot string) (Frame, bool) {
	r.mu.Lock()
	m, ok := r.frames[slot]
	r.mu.Unlock()
	if !ok {
		return Frame{}, false
	}
	req := m.frame.Request
	req.Key = uuid.NewString()
	return r.Render(ctx, slot, req, m.fix), true
}

// Frame returns the frame mounted in slot.
func (r *Runner) Frame(slot string) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.frames[slot]
	if !ok {
		return Frame{}, false
	}
	return m.frame, true
}

// Unmount tears down the frame in slot.
func (r *Runner) Unmount(slot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.frames[slot]; ok {
		m.teardown()
		delete(r.frames, slot)
	}
}

// Close tears down every frame.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for slot, m := range r.frames {
		m.teardown()
		delete(r.frames, slot)
	}
}
