package plugin

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPluginNotFound is returned when no source file exists for a plugin name
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoEntryPoint is returned when a loaded plugin exposes no Run function
	ErrNoEntryPoint = errors.New("no Run entry point")
)

// LoadError reports a failure to read, parse or evaluate a plugin source file
type LoadError struct {
	Name string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load plugin %s from %s: %v", e.Name, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a failure raised while a plugin entry point was executing
type RuntimeError struct {
	Name string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("plugin %s failed: %v", e.Name, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panic in plugin code
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// KindOf classifies an error into the outcome kind it should be recorded as
func KindOf(err error) OutcomeKind {
	var loadErr *LoadError

	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrPluginNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrNoEntryPoint):
		return OutcomeNoEntryPoint
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.As(err, &loadErr):
		return OutcomeLoadError
	default:
		return OutcomeRuntimeError
	}
}
