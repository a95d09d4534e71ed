package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PLUGINHOST_PLUGINS_DIR
const EnvPrefix = "PLUGINHOST"

// Configuration keys
const (
	KeyPluginsDir         = "plugins.dir"
	KeyPluginsTimeout     = "plugins.timeout"
	KeyPluginsConcurrency = "plugins.concurrency"
	KeyHistoryPath        = "history.path"
	KeyMetricsFile        = "metrics.file"
	KeyDebug              = "debug"
	KeyOutput             = "output"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Configuration is the resolved runtime configuration
type Configuration struct {
	Plugins PluginsConfig `mapstructure:"plugins" json:"plugins" yaml:"plugins"`
	History HistoryConfig `mapstructure:"history" json:"history" yaml:"history"`
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Debug   bool          `mapstructure:"debug" json:"debug" yaml:"debug"`
	Output  string        `mapstructure:"output" json:"output" yaml:"output"`
}

// PluginsConfig configures discovery and execution
type PluginsConfig struct {
	Dir         string        `mapstructure:"dir" json:"dir" yaml:"dir"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	Concurrency int           `mapstructure:"concurrency" json:"concurrency" yaml:"concurrency"`
}

// HistoryConfig configures the run history database. An empty path disables it.
type HistoryConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// MetricsConfig configures the metrics textfile. An empty file disables it.
type MetricsConfig struct {
	File string `mapstructure:"file" json:"file" yaml:"file"`
}

// Repository resolves configuration from defaults, an optional config file,
// PLUGINHOST_* environment variables and bound command-line flags, in
// increasing order of precedence.
type Repository struct {
	v          *viper.Viper
	configPath string
}

// NewRepository creates a repository. An empty configPath falls back to
// PLUGINHOST_CONFIG_FILE and then to ~/.pluginhost/config.yaml.
func NewRepository(configPath string) *Repository {
	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	r := &Repository{v: v, configPath: configPath}
	r.applyDefaults()
	return r
}

// Viper exposes the underlying instance so callers can bind flags
func (r *Repository) Viper() *viper.Viper {
	return r.v
}

// GetConfigPath returns the path to the configuration file
func (r *Repository) GetConfigPath() string {
	return r.configPath
}

// Load reads the config file, if present, and returns the validated configuration
func (r *Repository) Load() (*Configuration, error) {
	if r.configPath != "" {
		r.v.SetConfigFile(r.configPath)
		if err := r.v.ReadInConfig(); err != nil && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", r.configPath, err)
		}
	}

	var config Configuration
	if err := r.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := r.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadDefault returns the default configuration
func (r *Repository) LoadDefault() *Configuration {
	return &Configuration{
		Plugins: PluginsConfig{
			Dir:         "./plugins",
			Timeout:     0,
			Concurrency: 1,
		},
		History: HistoryConfig{Path: getDefaultHistoryPath()},
		Metrics: MetricsConfig{File: ""},
		Debug:   false,
		Output:  OutputText,
	}
}

// Validate validates the configuration
func (r *Repository) Validate(config *Configuration) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if config.Plugins.Dir == "" {
		return fmt.Errorf("plugins directory is required")
	}

	if config.Plugins.Timeout < 0 {
		return fmt.Errorf("plugin timeout cannot be negative")
	}

	if config.Plugins.Concurrency <= 0 {
		return fmt.Errorf("plugin concurrency must be greater than 0")
	}

	switch config.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("output must be one of: %s", strings.Join([]string{OutputText, OutputJSON, OutputYAML}, ", "))
	}

	return nil
}

// Save writes the configuration to the config file, creating its directory
func (r *Repository) Save(config *Configuration) error {
	if err := r.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := viper.New()
	out.Set(KeyPluginsDir, config.Plugins.Dir)
	out.Set(KeyPluginsTimeout, config.Plugins.Timeout.String())
	out.Set(KeyPluginsConcurrency, config.Plugins.Concurrency)
	out.Set(KeyHistoryPath, config.History.Path)
	out.Set(KeyMetricsFile, config.Metrics.File)
	out.Set(KeyDebug, config.Debug)
	out.Set(KeyOutput, config.Output)

	if err := out.WriteConfigAs(r.configPath); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

func (r *Repository) applyDefaults() {
	defaults := r.LoadDefault()
	r.v.SetDefault(KeyPluginsDir, defaults.Plugins.Dir)
	r.v.SetDefault(KeyPluginsTimeout, defaults.Plugins.Timeout)
	r.v.SetDefault(KeyPluginsConcurrency, defaults.Plugins.Concurrency)
	r.v.SetDefault(KeyHistoryPath, defaults.History.Path)
	r.v.SetDefault(KeyMetricsFile, defaults.Metrics.File)
	r.v.SetDefault(KeyDebug, defaults.Debug)
	r.v.SetDefault(KeyOutput, defaults.Output)
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pluginhost", "config.yaml")
	}
	return filepath.Join(homeDir, ".pluginhost", "config.yaml")
}

// getDefaultHistoryPath returns the default run history database path
func getDefaultHistoryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".pluginhost", "history.db")
}
