package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultBrowserWait is how long a document may run before it is considered
// healthy.
const DefaultBrowserWait = 2 * time.Second

// Browser loads frame documents in headless Chrome. It connects lazily on
// the first check.
type Browser struct {
	controlURL string
	wait       time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser creates a Browser. An empty controlURL launches a local Chrome.
func NewBrowser(controlURL string, wait time.Duration, logger *slog.Logger) *Browser {
	if wait <= 0 {
		wait = DefaultBrowserWait
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{controlURL: controlURL, wait: wait, logger: logger}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.controlURL
	if controlURL == "" {
		url, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.logger.Info("browser connected", "control_url", controlURL)
	b.browser = browser
	return browser, nil
}

// Check renders f's document in a fresh incognito page and returns the first
// error it reports, or "" when none arrives within the wait.
func (b *Browser) Check(ctx context.Context, f Frame) (string, error) {
	doc, err := Document(f, DocumentOptions{})
	if err != nil {
		return "", err
	}
	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, b.wait)
	defer cancel()

	var (
		mu    sync.Mutex
		first string
	)
	record := func(msg string) bool {
		mu.Lock()
		defer mu.Unlock()
		if first == "" {
			first = msg
		}
		return true
	}
	wait := page.Context(wctx).EachEvent(
		func(ev *proto.RuntimeExceptionThrown) bool {
			return record(describeException(ev.ExceptionDetails))
		},
		func(ev *proto.RuntimeConsoleAPICalled) bool {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError || len(ev.Args) < 2 {
				return false
			}
			if ev.Args[0].Value.Str() != ErrorMarker {
				return false
			}
			return record(ev.Args[1].Value.Str())
		},
	)

	if err := page.SetDocumentContent(string(doc)); err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	mu.Lock()
	defer mu.Unlock()
	return first, nil
}

func describeException(d *proto.RuntimeExceptionDetails) string {
	if d == nil {
		return "uncaught exception"
	}
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		msg = d.Exception.Description
	}
	return fmt.Sprintf("%s (line %d, column %d)", msg, d.LineNumber+1, d.ColumnNumber+1)
}

// Close shuts down the browser connection.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
