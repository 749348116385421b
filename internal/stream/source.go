package stream

import (
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/zhubert/gameforge/internal/agent"
)

// Source yields chunks of assistant text in order. Next returns io.EOF once
// the producer has finished. Close releases the source and unblocks a
// pending Next.
type Source interface {
	Next() (string, error)
	Close() error
}

// ErrNoBody is returned when a response carries no body to read.
var ErrNoBody = errors.New("response has no body")

// ReaderSource reads raw UTF-8 text from a response body. A rune split across
// two reads is held back until it is complete.
type ReaderSource struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte
	eof     bool
}

// NewReaderSource wraps body. A nil body fails on the first Next.
func NewReaderSource(body io.ReadCloser) *ReaderSource {
	return &ReaderSource{body: body, buf: make([]byte, 4096)}
}

// Next implements Source.
func (s *ReaderSource) Next() (string, error) {
	if s.body == nil {
		return "", ErrNoBody
	}
	for !s.eof {
		n, err := s.body.Read(s.buf)
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		data := append(s.pending, s.buf[:n]...)
		cut := completePrefix(data)
		s.pending = append([]byte(nil), data[cut:]...)
		if cut > 0 {
			return string(data[:cut]), nil
		}
	}
	if len(s.pending) > 0 {
		out := string(s.pending)
		s.pending = nil
		return out, nil
	}
	return "", io.EOF
}

// completePrefix returns the length of b without a trailing partial rune.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Close implements Source.
func (s *ReaderSource) Close() error {
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// ChanSource reads the chunks of an agent reply.
type ChanSource struct {
	ch   <-chan agent.StreamChunk
	done chan struct{}
	once sync.Once
}

// NewChanSource wraps the channel returned by agent.SendMessage.
func NewChanSource(ch <-chan agent.StreamChunk) *ChanSource {
	return &ChanSource{ch: ch, done: make(chan struct{})}
}

// Next implements Source. A channel that closes without a terminal chunk
// reports io.ErrUnexpectedEOF.
func (s *ChanSource) Next() (string, error) {
	for {
		select {
		case <-s.done:
			return "", io.ErrClosedPipe
		case c, ok := <-s.ch:
			if !ok {
				return "", io.ErrUnexpectedEOF
			}
			switch c.Type {
			case agent.ChunkText:
				if c.Text == "" {
					continue
				}
				return c.Text, nil
			case agent.ChunkDone:
				return "", io.EOF
			case agent.ChunkError:
				return "", c.Err
			}
		}
	}
}

// Close implements Source.
func (s *ChanSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
