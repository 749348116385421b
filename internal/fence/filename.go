package fence

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Filename is the name.ext annotation of a fence.
type Filename struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

func (f Filename) String() string {
	if f.Extension == "" {
		return f.Name
	}
	return f.Name + "." + f.Extension
}

// IsZero reports whether no filename was annotated.
func (f Filename) IsZero() bool {
	return f.Name == "" && f.Extension == ""
}

var (
	filenameAttr = regexp.MustCompile(`\{\s*filename\s*=\s*([^}]*)\}`)
	wordBreaks   = regexp.MustCompile(`[-_]+`)
)

// ParseFenceTag reads the language and optional {filename=...} attribute from
// the text that follows an opening delimiter, e.g. "tsx{filename=snake.tsx}".
// It never fails: missing parts come back empty.
func ParseFenceTag(tag string) (string, Filename) {
	tag = strings.TrimSpace(tag)

	lang := tag
	if i := strings.IndexByte(tag, '{'); i >= 0 {
		lang = tag[:i]
	}
	if fields := strings.Fields(lang); len(fields) > 0 {
		lang = fields[0]
	} else {
		lang = ""
	}

	var filename Filename
	if m := filenameAttr.FindStringSubmatch(tag); m != nil {
		filename = ParseFilename(m[1])
	}
	return lang, filename
}

// ParseFilename splits s at its last dot. Without a dot the whole string is
// the name and the extension is empty.
func ParseFilename(s string) Filename {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return Filename{Name: s}
	}
	return Filename{Name: s[:i], Extension: s[i+1:]}
}

// TitleCase turns a kebab or snake case name into display words:
// "space_invaders-2" becomes "Space Invaders 2".
func TitleCase(name string) string {
	parts := wordBreaks.Split(name, -1)
	for i, p := range parts {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + strings.ToLower(p[size:])
	}
	return strings.Join(parts, " ")
}
