// Package fence splits assistant message text into prose and code-fence
// segments. Every function here is pure so callers can re-run it on each
// streamed chunk against the full buffer.
package fence

import (
	"fmt"
	"strings"
)

// Delimiter opens and closes a code fence.
const Delimiter = "```"

// Kind identifies the variant of a Segment.
type Kind int

const (
	KindText Kind = iota
	KindGeneratingFence
	KindCompletedFence
)

var kindNames = map[Kind]string{
	KindText:            "text",
	KindGeneratingFence: "code-fence-generating",
	KindCompletedFence:  "code-fence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown segment kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown segment kind %q", b)
}

// Segment is one contiguous unit of parsed message content.
//
// For KindText, Content is the prose. For KindGeneratingFence, Content is the
// partial body received so far and Filename is always zero. For
// KindCompletedFence, Content is the full body including its trailing newline.
type Segment struct {
	Kind     Kind     `json:"kind"`
	Content  string   `json:"content"`
	Language string   `json:"language,omitempty"`
	Filename Filename `json:"filename"`
}

// Text returns a prose segment.
func Text(content string) Segment {
	return Segment{Kind: KindText, Content: content}
}

// Generating returns a segment for a fence that has not been closed yet.
func Generating(language, partial string) Segment {
	return Segment{Kind: KindGeneratingFence, Language: language, Content: partial}
}

// Completed returns a segment for a closed fence.
func Completed(language string, filename Filename, content string) Segment {
	return Segment{Kind: KindCompletedFence, Language: language, Filename: filename, Content: content}
}

// IsFence reports whether the segment is a code fence in either state.
func (s Segment) IsFence() bool {
	return s.Kind == KindGeneratingFence || s.Kind == KindCompletedFence
}

// CodeBlock is the first completed fence of a message, the part treated as
// the app.
type CodeBlock struct {
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Filename Filename `json:"filename"`
}

// State describes where the first fence of a message is.
type State int

const (
	StateNone State = iota
	StateGenerating
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	default:
		return "none"
	}
}

// span locates one fence inside a raw string.
type span struct {
	start  int // index of the opening delimiter
	end    int // index just past the closing delimiter, or len(raw) when open
	tag    string
	body   string
	closed bool
}

// nextFence finds the first fence at or after from.
func nextFence(raw string, from int) (span, bool) {
	i := strings.Index(raw[from:], Delimiter)
	if i < 0 {
		return span{}, false
	}
	start := from + i
	afterOpen := start + len(Delimiter)

	nl := strings.IndexByte(raw[afterOpen:], '\n')
	if nl < 0 {
		// The opener line itself is still streaming.
		return span{start: start, end: len(raw), tag: raw[afterOpen:]}, true
	}
	tag := strings.TrimSuffix(raw[afterOpen:afterOpen+nl], "\r")
	bodyStart := afterOpen + nl + 1

	j := closerIndex(raw[bodyStart:])
	if j < 0 {
		return span{start: start, end: len(raw), tag: tag, body: raw[bodyStart:]}, true
	}
	return span{
		start:  start,
		end:    bodyStart + j + len(Delimiter),
		tag:    tag,
		body:   raw[bodyStart : bodyStart+j],
		closed: true,
	}, true
}

// closerIndex finds the closing delimiter of a fence body. The closer must
// start a line; a delimiter in the middle of a code line is content.
func closerIndex(body string) int {
	if strings.HasPrefix(body, Delimiter) {
		return 0
	}
	i := strings.Index(body, "\n"+Delimiter)
	if i < 0 {
		return -1
	}
	return i + 1
}

func (f span) segment() Segment {
	lang, filename := ParseFenceTag(f.tag)
	if !f.closed {
		return Generating(lang, f.body)
	}
	return Completed(lang, filename, f.body)
}

func appendText(segs []Segment, s string) []Segment {
	if s == "" {
		return segs
	}
	return append(segs, Text(s))
}

// Parse splits raw into every text and fence segment in source order. An
// unclosed fence is always the final segment.
func Parse(raw string) []Segment {
	var segs []Segment
	pos := 0
	for pos < len(raw) {
		f, ok := nextFence(raw, pos)
		if !ok {
			segs = appendText(segs, raw[pos:])
			break
		}
		segs = appendText(segs, raw[pos:f.start])
		segs = append(segs, f.segment())
		if !f.closed {
			break
		}
		pos = f.end
	}
	return segs
}

// SplitByFirstFence returns at most three segments: the text before the first
// fence, the first fence in its current state, and everything after it as
// plain text. Nothing follows a fence that is still generating.
func SplitByFirstFence(raw string) []Segment {
	f, ok := nextFence(raw, 0)
	if !ok {
		return appendText(nil, raw)
	}
	segs := appendText(nil, raw[:f.start])
	segs = append(segs, f.segment())
	if f.closed {
		segs = appendText(segs, raw[f.end:])
	}
	return segs
}

// ExtractFirstCodeBlock returns the first completed fence of raw.
func ExtractFirstCodeBlock(raw string) (CodeBlock, bool) {
	f, ok := nextFence(raw, 0)
	if !ok || !f.closed {
		return CodeBlock{}, false
	}
	lang, filename := ParseFenceTag(f.tag)
	return CodeBlock{Language: lang, Code: f.body, Filename: filename}, true
}

// FirstFenceState reports the state of the first fence in raw.
func FirstFenceState(raw string) State {
	f, ok := nextFence(raw, 0)
	switch {
	case !ok:
		return StateNone
	case f.closed:
		return StateCompleted
	default:
		return StateGenerating
	}
}

// FirstFence returns the first fence segment of segs.
func FirstFence(segs []Segment) (Segment, bool) {
	for _, s := range segs {
		if s.IsFence() {
			return s, true
		}
	}
	return Segment{}, false
}

// EndsGenerating reports whether the last segment is an open fence.
func EndsGenerating(segs []Segment) bool {
	return len(segs) > 0 && segs[len(segs)-1].Kind == KindGeneratingFence
}
