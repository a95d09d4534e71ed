package ports

import (
	"context"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

// PluginCatalog enumerates plugin source files
type PluginCatalog interface {
	// ListPlugins returns one descriptor per eligible file in the plugins directory
	ListPlugins(ctx context.Context) ([]plugin.Descriptor, error)

	// Resolve returns the descriptor a plugin name maps to, without checking existence
	Resolve(name plugin.Name) plugin.Descriptor

	// Dir returns the directory being scanned
	Dir() string
}

// PluginLoader turns a plugin source file into a loaded module
type PluginLoader interface {
	// Load evaluates the plugin's top-level code in a fresh namespace.
	// Missing files yield plugin.ErrPluginNotFound, everything else a *plugin.LoadError.
	Load(ctx context.Context, desc plugin.Descriptor) (Module, error)
}

// Module is an in-memory handle to evaluated plugin code. It is owned by the
// caller for one load-and-run cycle and never shared.
type Module interface {
	// Name returns the plugin name the module was loaded for
	Name() string

	// Package returns the Go package name declared by the plugin source
	Package() string

	// HasEntryPoint reports whether the module exposes a Run function
	HasEntryPoint() bool

	// Run invokes the entry point. Missing entry points yield plugin.ErrNoEntryPoint.
	Run(ctx context.Context) (interface{}, error)
}

// PluginValidator checks a plugin file against the Plugin base type contract
type PluginValidator interface {
	// Validate never fails; every problem is reported inside the result
	Validate(ctx context.Context, path string) plugin.ValidationResult
}

// RunRecorder persists run reports
type RunRecorder interface {
	Record(ctx context.Context, report *plugin.RunReport) error
	Recent(ctx context.Context, limit int) ([]RunSummary, error)
	Outcomes(ctx context.Context, runID string) ([]RunOutcome, error)
}

// RunSummary is a stored run report reduced to counts
type RunSummary struct {
	ID         string         `json:"id" yaml:"id"`
	StartedAt  int64          `json:"started_at" yaml:"started_at"`
	FinishedAt int64          `json:"finished_at" yaml:"finished_at"`
	Total      int            `json:"total" yaml:"total"`
	Counts     map[string]int `json:"counts" yaml:"counts"`
}

// RunOutcome is one stored plugin result of a run
type RunOutcome struct {
	Plugin     string `json:"plugin" yaml:"plugin"`
	Kind       string `json:"kind" yaml:"kind"`
	Result     string `json:"result" yaml:"result"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// OutcomeObserver receives every recorded outcome, e.g. for metrics
type OutcomeObserver interface {
	ObserveOutcome(name string, outcome plugin.Outcome)
}

// ValidationObserver receives every validation result
type ValidationObserver interface {
	ObserveValidation(result plugin.ValidationResult)
}
