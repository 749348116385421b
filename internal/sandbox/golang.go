package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedGoImports are the only packages interpreted programs may use.
var allowedGoImports = map[string]bool{
	"bytes":          true,
	"container/heap": true,
	"container/list": true,
	"errors":         true,
	"fmt":            true,
	"math":           true,
	"math/rand":      true,
	"sort":           true,
	"strconv":        true,
	"strings":        true,
	"time":           true,
	"unicode":        true,
	"unicode/utf8":   true,
}

// allowedSymbols filters the interpreter's stdlib down to the allow-list.
var allowedSymbols = func() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// Keys look like "math/rand/rand".
		i := strings.LastIndexByte(key, '/')
		if i > 0 && allowedGoImports[key[:i]] {
			out[key] = syms
		}
	}
	return out
}()

const maxGoOutput = 64 << 10

// limitedBuffer drops writes past its limit.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room < len(p) {
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

func checkGoImports(code string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "main.go", code, parser.ImportsOnly)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			p := list[0].Pos
			return &EvalError{Phase: PhaseCompile, Message: list[0].Msg, File: p.Filename, Line: p.Line, Column: p.Column}
		}
		return &EvalError{Phase: PhaseCompile, Message: err.Error()}
	}
	if f.Name.Name != "main" {
		return &EvalError{Phase: PhaseCompile, Message: fmt.Sprintf("package %s is not runnable, use package main", f.Name.Name)}
	}
	for _, imp := range f.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		if !allowedGoImports[path] {
			p := fset.Position(imp.Pos())
			return &EvalError{Phase: PhaseCompile, Message: fmt.Sprintf("import %q is not allowed", path), File: p.Filename, Line: p.Line, Column: p.Column}
		}
	}
	return nil
}

// runGo interprets a main package and captures what it prints.
// A tight loop that never yields keeps its goroutine after ctx expires;
// the interpreter has no way to preempt it.
func runGo(ctx context.Context, req Request) (Output, error) {
	if err := checkGoImports(req.Code); err != nil {
		return Output{}, err
	}

	stdout := &limitedBuffer{limit: maxGoOutput}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stdout})
	if err := i.Use(allowedSymbols); err != nil {
		return Output{}, fmt.Errorf("loading symbols: %w", err)
	}

	_, err := i.EvalWithContext(ctx, req.Code)
	out := Output{Stdout: stdout.String()}
	if err != nil {
		if ctx.Err() != nil {
			return out, &EvalError{Phase: PhaseRuntime, Message: fmt.Sprintf("execution interrupted: %v", context.Cause(ctx))}
		}
		return out, yaegiError(err)
	}
	return out, nil
}
