// Package stream consumes a streamed assistant reply, keeping an up to date
// segmentation of the text received so far.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/zhubert/gameforge/internal/fence"
)

// State is the lifecycle state of a consumed stream.
type State int

const (
	StateStreaming State = iota
	// StateComplete means the producer finished and every fence closed.
	StateComplete
	// StateIncomplete means the producer finished inside an open fence.
	StateIncomplete
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateStreaming:  "streaming",
	StateComplete:   "complete",
	StateIncomplete: "incomplete",
	StateFailed:     "failed",
	StateCancelled:  "cancelled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further updates follow.
func (s State) Terminal() bool {
	return s != StateStreaming
}

// Update is a view of the buffer after one chunk.
type Update struct {
	Text     string          `json:"text"`
	Delta    string          `json:"-"`
	Segments []fence.Segment `json:"segments"`
	State    State           `json:"state"`
}

// Result is the final outcome of a stream.
type Result struct {
	Text     string
	Segments []fence.Segment
	State    State
}

// Observer is called from the read loop after every update. It must not block.
type Observer func(Update)

// Consumer owns the buffer of one stream. Its read loop is the single writer;
// Snapshot may be called from any goroutine.
type Consumer struct {
	observers []Observer
	logger    *slog.Logger
	snap      atomic.Pointer[Update]
}

// NewConsumer creates a consumer that notifies observers.
func NewConsumer(logger *slog.Logger, observers ...Observer) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Consumer{observers: observers, logger: logger}
	c.snap.Store(&Update{})
	return c
}

// Snapshot returns the latest published update.
func (c *Consumer) Snapshot() Update {
	return *c.snap.Load()
}

func (c *Consumer) publish(u Update) {
	c.snap.Store(&u)
	for _, o := range c.observers {
		o(u)
	}
}

type read struct {
	text string
	err  error
}

// Run reads src until it ends, fails or ctx is cancelled. src is always
// closed before Run returns. On cancellation the partial buffer is dropped,
// observers are not called again, and ctx.Err() is returned.
func (c *Consumer) Run(ctx context.Context, src Source) (Result, error) {
	reads := make(chan read)
	stop := make(chan struct{})
	loopDone := make(chan struct{})

	go func() {
		defer close(loopDone)
		for {
			text, err := src.Next()
			select {
			case reads <- read{text: text, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	shutdown := func() {
		close(stop)
		if err := src.Close(); err != nil {
			c.logger.Debug("closing stream source", "error", err)
		}
		<-loopDone
	}

	var buf strings.Builder
	cancelled := func() (Result, error) {
		shutdown()
		c.logger.Info("stream cancelled", "discarded_bytes", buf.Len())
		return Result{State: StateCancelled}, ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return cancelled()

		case r := <-reads:
			if ctx.Err() != nil {
				return cancelled()
			}
			if r.err != nil {
				shutdown()
				return c.finish(buf.String(), r.err)
			}
			buf.WriteString(r.text)
			text := buf.String()
			c.publish(Update{Text: text, Delta: r.text, Segments: fence.Parse(text), State: StateStreaming})
		}
	}
}

func (c *Consumer) finish(text string, err error) (Result, error) {
	res := Result{Text: text, Segments: fence.Parse(text)}
	switch {
	case errors.Is(err, io.EOF):
		res.State = StateComplete
		if fence.EndsGenerating(res.Segments) {
			res.State = StateIncomplete
			c.logger.Warn("stream ended inside a code fence", "bytes", len(text))
		}
		err = nil
	default:
		res.State = StateFailed
		err = fmt.Errorf("reading stream: %w", err)
		c.logger.Error("stream failed", "error", err)
	}
	c.publish(Update{Text: res.Text, Segments: res.Segments, State: res.State})
	return res, err
}

// Consume runs a fresh Consumer over src.
func Consume(ctx context.Context, src Source, observers ...Observer) (Result, error) {
	return NewConsumer(nil, observers...).Run(ctx, src)
}
