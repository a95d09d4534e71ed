package runtime

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

// EntryPoint is the conventional function name a plugin must expose
const EntryPoint = "Run"

// LoaderConfig configures the interpreter every plugin is evaluated in
type LoaderConfig struct {
	// Stdout and Stderr receive output written by plugin code. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// GoPath lets plugins import interpreted source packages. Empty disables it.
	GoPath string
}

// InterpreterLoader loads plugin source files with the yaegi Go interpreter.
// Each load gets its own interpreter, so no state is shared between loads.
type InterpreterLoader struct {
	config LoaderConfig
	logger *zap.Logger
}

var _ ports.PluginLoader = (*InterpreterLoader)(nil)

// NewInterpreterLoader creates a loader
func NewInterpreterLoader(config LoaderConfig, logger *zap.Logger) *InterpreterLoader {
	if config.Stdout == nil {
		config.Stdout = io.Discard
	}
	if config.Stderr == nil {
		config.Stderr = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterpreterLoader{config: config, logger: logger}
}

// Load evaluates the plugin described by desc
func (l *InterpreterLoader) Load(ctx context.Context, desc plugin.Descriptor) (ports.Module, error) {
	return l.LoadFile(ctx, desc.Name.Value(), desc.Path)
}

// LoadFile evaluates the source file at path in a fresh interpreter and
// returns a handle to the resulting package.
func (l *InterpreterLoader) LoadFile(ctx context.Context, name, path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, plugin.ErrPluginNotFound)
		}
		return nil, &plugin.LoadError{Name: name, Path: path, Err: err}
	}

	pkg, err := packageName(path, src)
	if err != nil {
		return nil, &plugin.LoadError{Name: name, Path: path, Err: err}
	}

	i := interp.New(interp.Options{
		GoPath: l.config.GoPath,
		Stdout: l.config.Stdout,
		Stderr: l.config.Stderr,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &plugin.LoadError{Name: name, Path: path, Err: fmt.Errorf("failed to load stdlib: %w", err)}
	}

	l.logger.Debug("evaluating plugin source",
		zap.String("plugin", name),
		zap.String("path", path),
		zap.String("package", pkg))

	if err := evalSource(ctx, i, string(src)); err != nil {
		return nil, &plugin.LoadError{Name: name, Path: path, Err: err}
	}

	return &Module{
		name:   name,
		path:   path,
		pkg:    pkg,
		interp: i,
		logger: l.logger,
	}, nil
}

// evalSource runs the plugin's top-level code, converting panics into errors
func evalSource(ctx context.Context, i *interp.Interpreter, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &plugin.PanicError{Value: r}
		}
	}()

	_, err = i.EvalWithContext(ctx, src)
	return err
}

// packageName reads the package clause of a Go source file
func packageName(path string, src []byte) (string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
	if err != nil {
		return "", fmt.Errorf("invalid package clause: %w", err)
	}
	return f.Name.Name, nil
}
