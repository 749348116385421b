package stream

import (
	"errors"
	"io"
	"testing"
)

// splitReader returns one fixed read per call.
type splitReader struct {
	reads  [][]byte
	closed bool
}

func (r *splitReader) Read(p []byte) (int, error) {
	if len(r.reads) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.reads[0])
	r.reads = r.reads[1:]
	return n, nil
}

func (r *splitReader) Close() error {
	r.closed = true
	return nil
}

func collect(t *testing.T, src Source) []string {
	t.Helper()
	var out []string
	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		out = append(out, s)
	}
}

func TestReaderSourceHoldsSplitRunes(t *testing.T) {
	t.Parallel()

	check := []byte("✓") // three bytes
	r := &splitReader{reads: [][]byte{
		append([]byte("ok "), check[:1]...),
		check[1:],
		[]byte(" done"),
	}}
	src := NewReaderSource(r)

	got := collect(t, src)
	want := []string{"ok ", "✓", " done"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}

	if err := src.Close(); err != nil || !r.closed {
		t.Errorf("Close() = %v, closed = %v", err, r.closed)
	}
}

func TestReaderSourceFlushesTrailingBytes(t *testing.T) {
	t.Parallel()

	r := &splitReader{reads: [][]byte{{'a', 0xE2, 0x9C}}}
	got := collect(t, NewReaderSource(r))
	if len(got) != 2 || got[0] != "a" || got[1] != "\xE2\x9C" {
		t.Errorf("got %q", got)
	}
}

func TestReaderSourceNoBody(t *testing.T) {
	t.Parallel()

	src := NewReaderSource(nil)
	if _, err := src.Next(); !errors.Is(err, ErrNoBody) {
		t.Errorf("Next() error = %v, want ErrNoBody", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestCompletePrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []byte
		want int
	}{
		{nil, 0},
		{[]byte("abc"), 3},
		{[]byte("a\xE2"), 1},
		{[]byte("a\xE2\x9C"), 1},
		{[]byte("a\xE2\x9C\x93"), 4},
	}
	for _, tt := range cases {
		if got := completePrefix(tt.in); got != tt.want {
			t.Errorf("completePrefix(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
