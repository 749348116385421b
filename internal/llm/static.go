package llm

import (
	"context"
	"strings"
	"sync"
)

// Static replays fixed chunks. It backs offline runs and tests.
type Static struct {
	Chunks []string
	Err    error

	mu       sync.Mutex
	requests []Request
}

func (s *Static) Name() string { return "static" }

// Requests returns the requests seen so far.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Static) record(req Request) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

// Stream implements Provider.
func (s *Static) Stream(ctx context.Context, req Request) <-chan Delta {
	s.record(req)
	ch := make(chan Delta)
	go func() {
		defer close(ch)
		for _, c := range s.Chunks {
			if !send(ctx, ch, Delta{Text: c}) {
				return
			}
		}
		if s.Err != nil {
			send(ctx, ch, Delta{Err: s.Err})
		}
	}()
	return ch
}

// Complete implements Provider.
func (s *Static) Complete(ctx context.Context, req Request) (string, error) {
	s.record(req)
	if s.Err != nil {
		return "", s.Err
	}
	return strings.Join(s.Chunks, ""), nil
}
