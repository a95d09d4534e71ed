package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/application/services"
	"kilometers.ai/pluginhost/internal/infrastructure/config"
	"kilometers.ai/pluginhost/internal/infrastructure/history"
	"kilometers.ai/pluginhost/internal/infrastructure/logging"
	"kilometers.ai/pluginhost/internal/infrastructure/metrics"
	"kilometers.ai/pluginhost/internal/infrastructure/plugins/discovery"
	"kilometers.ai/pluginhost/internal/infrastructure/plugins/runtime"
	"kilometers.ai/pluginhost/internal/interfaces/cli"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	ConfigRepo *config.Repository
	Config     *config.Configuration

	// Infrastructure
	Catalog      *discovery.FileSystemCatalog
	Loader       *runtime.InterpreterLoader
	PluginOutput *runtime.OutputSink
	Validator    *discovery.ContractValidator
	History      *history.SQLiteStore
	Metrics      *metrics.Collector

	// Application services
	PluginService *services.PluginService

	// CLI
	CLIContainer *cli.CLIContainer

	// Logger
	Logger *zap.Logger

	initOnce sync.Once
	initErr  error
	shutOnce sync.Once
}

// NewContainer creates the dependency injection container. Components that
// depend on flags are built later by Initialize.
func NewContainer() (*Container, error) {
	container := &Container{
		ConfigRepo: config.NewRepository(""),
		Logger:     zap.NewNop(),
	}

	container.CLIContainer = &cli.CLIContainer{
		ConfigRepo:    container.ConfigRepo,
		Logger:        container.Logger,
		MainContainer: container, // Reference to self for initialization
	}

	return container, nil
}

// Initialize loads configuration and builds every component. bind, when not
// nil, is called with the configuration's viper instance so command-line flags
// take precedence. Only the first call has any effect.
func (c *Container) Initialize(configPath string, bind func(v *viper.Viper) error) error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize(configPath, bind)
	})
	return c.initErr
}

func (c *Container) initialize(configPath string, bind func(v *viper.Viper) error) error {
	// 1. Initialize configuration repository
	if configPath != "" {
		c.ConfigRepo = config.NewRepository(configPath)
		c.CLIContainer.ConfigRepo = c.ConfigRepo
	}
	if bind != nil {
		if err := bind(c.ConfigRepo.Viper()); err != nil {
			return err
		}
	}

	// 2. Load configuration
	appConfig, err := c.ConfigRepo.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.Config = appConfig

	// 3. Initialize logging
	logger, err := logging.NewLogger(appConfig.Debug)
	if err != nil {
		return err
	}
	c.Logger = logger

	if err := c.initializeComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	return nil
}

// initializeComponents initializes all components with proper dependencies
func (c *Container) initializeComponents() error {
	appConfig := c.Config

	// 1. Initialize plugin infrastructure
	c.Catalog = discovery.NewFileSystemCatalog(appConfig.Plugins.Dir, c.Logger)
	c.PluginOutput = runtime.NewOutputSink(os.Stderr)
	c.Loader = runtime.NewInterpreterLoader(runtime.LoaderConfig{
		Stdout: c.PluginOutput,
		Stderr: c.PluginOutput,
	}, c.Logger)
	c.Validator = discovery.NewContractValidator(c.Loader, c.Logger)
	c.Metrics = metrics.NewCollector(c.Logger)

	opts := []services.PluginServiceOption{
		services.WithOutcomeObserver(c.Metrics),
		services.WithValidationObserver(c.Metrics),
	}

	// 2. Initialize run history; a broken database only disables history
	if appConfig.History.Path != "" {
		store, err := history.NewSQLiteStore(appConfig.History.Path, c.Logger)
		if err != nil {
			c.Logger.Warn("run history disabled", zap.String("path", appConfig.History.Path), zap.Error(err))
		} else {
			c.History = store
			opts = append(opts, services.WithRunRecorder(store))
		}
	}

	// 3. Initialize application services
	c.PluginService = services.NewPluginService(
		c.Catalog,
		c.Loader,
		c.Validator,
		services.PluginServiceConfig{
			Timeout:     appConfig.Plugins.Timeout,
			Concurrency: appConfig.Plugins.Concurrency,
		},
		c.Logger,
		opts...,
	)

	// 4. Update CLI container
	c.CLIContainer.Config = appConfig
	c.CLIContainer.PluginService = c.PluginService
	c.CLIContainer.PluginOutput = c.PluginOutput
	c.CLIContainer.Logger = c.Logger

	c.Logger.Debug("dependency injection container initialized",
		zap.String("plugins_dir", c.Catalog.Dir()),
		zap.Bool("history", c.History != nil))
	return nil
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}

// Shutdown flushes metrics, closes the history database and syncs the logger.
// It is safe to call more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	c.shutOnce.Do(func() {
		if c.Metrics != nil && c.Config != nil && c.Config.Metrics.File != "" {
			if err := c.Metrics.WriteTextfile(c.Config.Metrics.File); err != nil {
				errs = append(errs, err)
			}
		}

		if c.History != nil {
			if err := c.History.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close history: %w", err))
			}
		}

		logging.Sync(c.Logger)
	})

	return errors.Join(errs...)
}

// HealthCheck performs a health check of all components
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.PluginService == nil {
		return fmt.Errorf("container not initialized")
	}

	if _, err := c.PluginService.ListPlugins(ctx); err != nil {
		return fmt.Errorf("plugins directory check failed: %w", err)
	}

	if c.History != nil {
		if _, err := c.History.Recent(ctx, 1); err != nil {
			return fmt.Errorf("history check failed: %w", err)
		}
	}

	return nil
}

// GetVersion returns version information
func (c *Container) GetVersion() map[string]string {
	return map[string]string{
		"version":    cli.Version,
		"build_time": cli.BuildTime,
	}
}
