package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

// PluginServiceConfig controls how plugins are executed
type PluginServiceConfig struct {
	// Timeout bounds a single load-and-run cycle. Zero means no limit.
	Timeout time.Duration
	// Concurrency is the number of plugins processed at once. Values below 1 run sequentially.
	Concurrency int
}

// PluginServiceOption configures optional collaborators
type PluginServiceOption func(*PluginService)

// WithRunRecorder stores every full run report
func WithRunRecorder(recorder ports.RunRecorder) PluginServiceOption {
	return func(s *PluginService) { s.recorder = recorder }
}

// WithOutcomeObserver reports every plugin outcome
func WithOutcomeObserver(observer ports.OutcomeObserver) PluginServiceOption {
	return func(s *PluginService) { s.outcomes = observer }
}

// WithValidationObserver reports every validation result
func WithValidationObserver(observer ports.ValidationObserver) PluginServiceOption {
	return func(s *PluginService) { s.validations = observer }
}

// PluginService discovers, loads, runs and validates plugins
type PluginService struct {
	catalog     ports.PluginCatalog
	loader      ports.PluginLoader
	validator   ports.PluginValidator
	recorder    ports.RunRecorder
	outcomes    ports.OutcomeObserver
	validations ports.ValidationObserver
	config      PluginServiceConfig
	logger      *zap.Logger
}

// NewPluginService creates a new plugin service
func NewPluginService(
	catalog ports.PluginCatalog,
	loader ports.PluginLoader,
	validator ports.PluginValidator,
	config PluginServiceConfig,
	logger *zap.Logger,
	opts ...PluginServiceOption,
) *PluginService {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PluginService{
		catalog:   catalog,
		loader:    loader,
		validator: validator,
		config:    config,
		logger:    logger.With(zap.String("component", "plugin_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the plugins directory
func (s *PluginService) Dir() string {
	return s.catalog.Dir()
}

// ListPlugins returns every plugin in the plugins directory, sorted by name
func (s *PluginService) ListPlugins(ctx context.Context) ([]plugin.Descriptor, error) {
	descs, err := s.catalog.ListPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return descs, nil
}

// LoadPlugin loads a plugin by name into a fresh interpreter. Every call
// evaluates the source again.
func (s *PluginService) LoadPlugin(ctx context.Context, name string) (ports.Module, error) {
	n, err := plugin.NewName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrPluginNotFound, err)
	}
	return s.loader.Load(ctx, s.catalog.Resolve(n))
}

// RunPlugin loads and invokes a single plugin. Failures are reported in the
// outcome rather than returned.
func (s *PluginService) RunPlugin(ctx context.Context, name string) plugin.Outcome {
	n, err := plugin.NewName(name)
	if err != nil {
		outcome := plugin.Failed(fmt.Errorf("%w: %v", plugin.ErrPluginNotFound, err), 0)
		s.observe(name, outcome)
		return outcome
	}
	return s.runDescriptor(ctx, s.catalog.Resolve(n))
}

// RunAllPlugins loads and invokes every listed plugin. A failing plugin never
// stops the run; only a listing failure is returned as an error.
func (s *PluginService) RunAllPlugins(ctx context.Context) (*plugin.RunReport, error) {
	descs, err := s.ListPlugins(ctx)
	if err != nil {
		return nil, err
	}

	report := plugin.NewRunReport(uuid.NewString(), time.Now(), len(descs))
	logger := s.logger.With(zap.String("run_id", report.ID))
	logger.Info("running plugins", zap.Int("count", len(descs)), zap.Int("concurrency", s.config.Concurrency))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, desc := range descs {
		desc := desc
		g.Go(func() error {
			outcome := s.runDescriptor(gctx, desc)
			mu.Lock()
			report.Results[desc.Name.Value()] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	logger.Info("plugins finished",
		zap.Int("succeeded", report.Count(plugin.OutcomeSuccess)),
		zap.Int("failed", len(report.Failures())),
		zap.Duration("duration", report.Duration()))

	if s.recorder != nil {
		// recording must outlive a canceled run
		if err := s.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("failed to record run history", zap.Error(err))
		}
	}

	return report, nil
}

// ValidatePlugin checks a plugin file against the Plugin base type contract
func (s *PluginService) ValidatePlugin(ctx context.Context, path string) plugin.ValidationResult {
	result := s.validator.Validate(ctx, path)

	s.logger.Debug("plugin validated",
		zap.String("path", path),
		zap.Bool("valid", result.Valid()),
		zap.Strings("errors", result.Errors()))
	if s.validations != nil {
		s.validations.ObserveValidation(result)
	}
	return result
}

// ValidateAll validates every listed plugin, keyed by plugin name
func (s *PluginService) ValidateAll(ctx context.Context) (map[string]plugin.ValidationResult, error) {
	descs, err := s.ListPlugins(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]plugin.ValidationResult, len(descs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, desc := range descs {
		desc := desc
		g.Go(func() error {
			result := s.ValidatePlugin(gctx, desc.Path)
			mu.Lock()
			results[desc.Name.Value()] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// ResolvePath maps a bare plugin name to its file in the plugins directory.
// Anything that looks like a path is returned unchanged.
func (s *PluginService) ResolvePath(nameOrPath string) string {
	if strings.HasSuffix(nameOrPath, plugin.SourceExtension) || strings.ContainsAny(nameOrPath, `/\`) {
		return nameOrPath
	}
	n, err := plugin.NewName(nameOrPath)
	if err != nil {
		return nameOrPath
	}
	return filepath.Clean(s.catalog.Resolve(n).Path)
}

// History returns up to limit recorded runs, newest first
func (s *PluginService) History(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	return s.recorder.Recent(ctx, limit)
}

// RunOutcomes returns the stored per-plugin results of one recorded run
func (s *PluginService) RunOutcomes(ctx context.Context, runID string) ([]ports.RunOutcome, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	return s.recorder.Outcomes(ctx, runID)
}

func (s *PluginService) runDescriptor(ctx context.Context, desc plugin.Descriptor) plugin.Outcome {
	name := desc.Name.Value()
	start := time.Now()

	outcome := s.invoke(ctx, desc, start)
	s.observe(name, outcome)

	logger := s.logger.With(
		zap.String("plugin", name),
		zap.String("kind", outcome.Kind.String()),
		zap.Duration("duration", outcome.Duration))
	if outcome.Kind.IsFailure() {
		logger.Warn("plugin failed", zap.String("error", outcome.Message))
	} else {
		logger.Debug("plugin finished")
	}
	return outcome
}

func (s *PluginService) invoke(ctx context.Context, desc plugin.Descriptor, start time.Time) (outcome plugin.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := &plugin.RuntimeError{Name: desc.Name.Value(), Err: &plugin.PanicError{Value: r}}
			outcome = plugin.Failed(err, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return plugin.Failed(err, 0)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	module, err := s.loader.Load(ctx, desc)
	if err != nil {
		return plugin.Failed(err, time.Since(start))
	}

	value, err := module.Run(ctx)
	if err != nil {
		return plugin.Failed(err, time.Since(start))
	}
	return plugin.Succeeded(value, time.Since(start))
}

func (s *PluginService) observe(name string, outcome plugin.Outcome) {
	if s.outcomes != nil {
		s.outcomes.ObserveOutcome(name, outcome)
	}
}
