package sandbox

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

//go:embed shim.js
var shimSource string

const shimName = "gameforge:shim"

var (
	shimOnce    sync.Once
	shimProgram *goja.Program
	shimErr     error
)

func compiledShim() (*goja.Program, error) {
	shimOnce.Do(func() {
		shimProgram, shimErr = goja.Compile(shimName, shimSource, true)
	})
	return shimProgram, shimErr
}

const maxConsoleLines = 200

// console collects console output of one runtime.
type console struct {
	mu    sync.Mutex
	lines []string
}

func (c *console) add(level string, args []goja.Value) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) < maxConsoleLines {
		c.lines = append(c.lines, level+": "+strings.Join(parts, " "))
	}
}

func (c *console) output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// newRuntime creates a fresh realm with the browser stubs installed. The
// returned stop function must be called once the runtime is no longer used.
func newRuntime(ctx context.Context, out *console) (*goja.Runtime, func(), error) {
	shim, err := compiledShim()
	if err != nil {
		return nil, nil, fmt.Errorf("compiling shim: %w", err)
	}

	vm := goja.New()
	con := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		if err := con.Set(level, func(call goja.FunctionCall) goja.Value {
			out.add(level, call.Arguments)
			return goja.Undefined()
		}); err != nil {
			return nil, nil, err
		}
	}
	if err := vm.Set("console", con); err != nil {
		return nil, nil, err
	}
	if _, err := vm.RunProgram(shim); err != nil {
		return nil, nil, fmt.Errorf("loading shim: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(context.Cause(ctx))
	})
	return vm, func() { stop() }, nil
}

// transform compiles TSX to plain JavaScript in the given module format.
func transform(code, filename string, format api.Format) (string, error) {
	if filename == "" {
		filename = "App.tsx"
	}
	res := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderTSX,
		Format:     format,
		JSX:        api.JSXAutomatic,
		Target:     api.ES2015,
		Sourcefile: filename,
	})
	if len(res.Errors) > 0 {
		return "", esbuildError(res.Errors)
	}
	return string(res.Code), nil
}

// runReact transforms a component module, evaluates it and renders its
// default export once.
func runReact(ctx context.Context, req Request) (Output, error) {
	filename := req.Filename
	if filename == "" {
		filename = "App.tsx"
	}
	js, err := transform(req.Code, filename, api.FormatCommonJS)
	if err != nil {
		return Output{}, err
	}

	var out console
	vm, stop, err := newRuntime(ctx, &out)
	if err != nil {
		return Output{}, err
	}
	defer stop()

	factory, err := vm.RunScript(filename, "(function (exports, require, module) {\n"+js+"\n})")
	if err != nil {
		return Output{Console: out.output()}, gojaError(err)
	}

	mount, ok := goja.AssertFunction(vm.Get("__gameforge").ToObject(vm).Get("mount"))
	if !ok {
		return Output{}, fmt.Errorf("shim has no mount function")
	}
	markup, err := mount(goja.Undefined(), factory)
	if err != nil {
		return Output{Console: out.output()}, gojaError(err)
	}
	return Output{Markup: markup.String(), Console: out.output()}, nil
}

// runScript evaluates a plain script.
func runScript(ctx context.Context, req Request) (Output, error) {
	filename := req.Filename
	if filename == "" {
		filename = "script.js"
	}

	var out console
	vm, stop, err := newRuntime(ctx, &out)
	if err != nil {
		return Output{}, err
	}
	defer stop()

	if _, err := vm.RunScript(filename, req.Code); err != nil {
		return Output{Console: out.output()}, gojaError(err)
	}
	return Output{Console: out.output()}, nil
}
