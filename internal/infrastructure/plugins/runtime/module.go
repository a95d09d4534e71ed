package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Module is an evaluated plugin package living in its own interpreter
type Module struct {
	name   string
	path   string
	pkg    string
	interp *interp.Interpreter
	logger *zap.Logger
}

var _ ports.Module = (*Module)(nil)

// Name returns the plugin name
func (m *Module) Name() string { return m.name }

// Path returns the source file the module was loaded from
func (m *Module) Path() string { return m.path }

// Package returns the declared package name
func (m *Module) Package() string { return m.pkg }

// errUndefinedSymbol marks a symbol the plugin does not declare
var errUndefinedSymbol = errors.New("undefined symbol")

// Lookup returns a package-level symbol of the plugin
func (m *Module) Lookup(symbol string) (reflect.Value, bool) {
	v, err := m.resolve(symbol)
	return v, err == nil
}

// HasEntryPoint reports whether the plugin exposes a Run symbol
func (m *Module) HasEntryPoint() bool {
	_, ok := m.Lookup(EntryPoint)
	return ok
}

// resolve evaluates a package-level symbol. A main package that declares
// func main is evaluated as a program, and its symbols are only reachable
// unqualified. Missing symbols yield errUndefinedSymbol; other evaluation
// failures are returned as they are.
func (m *Module) resolve(symbol string) (reflect.Value, error) {
	candidates := []string{m.pkg + "." + symbol}
	if m.pkg == "main" {
		candidates = append(candidates, symbol)
	}

	for _, expr := range candidates {
		v, err := m.interp.Eval(expr)
		if err == nil {
			if !v.IsValid() {
				return reflect.Value{}, fmt.Errorf("%s: %w", symbol, errUndefinedSymbol)
			}
			return v, nil
		}
		if !isUndefined(err) {
			return reflect.Value{}, fmt.Errorf("failed to resolve %s: %w", symbol, err)
		}
	}
	return reflect.Value{}, fmt.Errorf("%s: %w", symbol, errUndefinedSymbol)
}

// isUndefined matches yaegi's "undefined: X" and "undefined selector: X"
func isUndefined(err error) bool {
	return strings.Contains(err.Error(), "undefined")
}

// Run calls the plugin's Run function. It blocks until Run returns or ctx is
// done; in the latter case the plugin goroutine is abandoned, not stopped.
func (m *Module) Run(ctx context.Context) (interface{}, error) {
	fn, err := m.resolve(EntryPoint)
	if errors.Is(err, errUndefinedSymbol) {
		return nil, fmt.Errorf("plugin %s: %w", m.name, plugin.ErrNoEntryPoint)
	}
	if err != nil {
		return nil, &plugin.RuntimeError{Name: m.name, Err: err}
	}

	if err := checkEntryPoint(fn); err != nil {
		return nil, &plugin.RuntimeError{Name: m.name, Err: err}
	}

	type callResult struct {
		value interface{}
		err   error
	}
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: &plugin.PanicError{Value: r}}
			}
		}()
		value, err := unpackResults(fn.Call(nil))
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, &plugin.RuntimeError{Name: m.name, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		m.logger.Warn("plugin entry point abandoned",
			zap.String("plugin", m.name),
			zap.Error(ctx.Err()))
		return nil, &plugin.RuntimeError{Name: m.name, Err: fmt.Errorf("entry point did not return: %w", ctx.Err())}
	}
}

// checkEntryPoint verifies Run is a function callable without arguments
func checkEntryPoint(fn reflect.Value) error {
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("%s is not a function (got %s)", EntryPoint, fn.Type())
	}
	if fn.IsNil() {
		return fmt.Errorf("%s is a nil function", EntryPoint)
	}
	t := fn.Type()
	if t.NumIn() == 0 || (t.NumIn() == 1 && t.IsVariadic()) {
		return nil
	}
	return fmt.Errorf("%s must take no arguments (got %s)", EntryPoint, t)
}

// unpackResults maps Run's return values onto (value, error).
// A trailing error result is treated as the failure channel.
func unpackResults(out []reflect.Value) (interface{}, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		last := out[n-1]
		out = out[:n-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]interface{}, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
}
