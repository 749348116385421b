package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/traefik/yaegi/interp"
)

// Phase says when an app failed.
type Phase string

const (
	PhaseCompile Phase = "compile"
	PhaseRuntime Phase = "runtime"
)

// EvalError is a failure inside the sandbox, formatted for the user and the
// model.
type EvalError struct {
	Phase   Phase
	Message string
	File    string
	Line    int
	Column  int
	Stack   string
}

func (e *EvalError) Error() string {
	var b strings.Builder
	if e.Phase == PhaseCompile {
		b.WriteString("Compile error: ")
	}
	b.WriteString(e.Message)
	if e.Line > 0 {
		fmt.Fprintf(&b, " (%s:%d:%d)", e.File, e.Line, e.Column)
	}
	if e.Stack != "" {
		b.WriteString("\n")
		b.WriteString(e.Stack)
	}
	return b.String()
}

// esbuildError converts the first transform error.
func esbuildError(msgs []api.Message) *EvalError {
	m := msgs[0]
	e := &EvalError{Phase: PhaseCompile, Message: m.Text}
	if loc := m.Location; loc != nil {
		e.File, e.Line, e.Column = loc.File, loc.Line, loc.Column+1
		if loc.LineText != "" {
			e.Stack = "    " + strings.TrimSpace(loc.LineText)
		}
	}
	return e
}

// gojaError converts an error returned by a goja runtime.
func gojaError(err error) *EvalError {
	var (
		intr *goja.InterruptedError
		syn  *goja.CompilerSyntaxError
		ex   *goja.Exception
	)
	switch {
	case errors.As(err, &intr):
		return &EvalError{Phase: PhaseRuntime, Message: fmt.Sprintf("execution interrupted: %v", intr.Value())}
	case errors.As(err, &syn):
		return &EvalError{Phase: PhaseCompile, Message: syn.Error()}
	case errors.As(err, &ex):
		e := &EvalError{Phase: PhaseRuntime, Message: ex.Value().String()}
		var stack []string
		for _, f := range ex.Stack() {
			pos := f.Position()
			if pos.Filename == shimName {
				continue
			}
			if e.Line == 0 && pos.Line > 0 {
				e.File, e.Line, e.Column = pos.Filename, pos.Line, pos.Column
			}
			name := f.FuncName()
			if name == "" {
				name = "<anonymous>"
			}
			stack = append(stack, fmt.Sprintf("    at %s (%s:%d:%d)", name, pos.Filename, pos.Line, pos.Column))
		}
		e.Stack = strings.Join(stack, "\n")
		return e
	default:
		return &EvalError{Phase: PhaseRuntime, Message: err.Error()}
	}
}

// yaegiError converts an error returned by the Go interpreter.
func yaegiError(err error) *EvalError {
	var p interp.Panic
	if errors.As(err, &p) {
		return &EvalError{Phase: PhaseRuntime, Message: fmt.Sprintf("panic: %v", p.Value), Stack: strings.TrimSpace(string(p.Stack))}
	}
	return &EvalError{Phase: PhaseRuntime, Message: err.Error()}
}
