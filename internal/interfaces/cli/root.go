package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/application/services"
	"kilometers.ai/pluginhost/internal/infrastructure/config"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands. Fields other
// than ConfigRepo and MainContainer are filled in once flags are parsed.
type CLIContainer struct {
	ConfigRepo    *config.Repository
	Config        *config.Configuration
	PluginService *services.PluginService
	Logger        *zap.Logger
	PluginOutput  OutputRedirector
	MainContainer interface{} // Will be set to *di.Container, avoiding circular import
}

// OutputRedirector swaps where plugin code prints to
type OutputRedirector interface {
	Redirect(target io.Writer) (restore func())
}

// initializer is implemented by the main container
type initializer interface {
	Initialize(configPath string, bind func(v *viper.Viper) error) error
}

// shutdowner is implemented by the main container
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// flagKeys maps persistent flags onto configuration keys
var flagKeys = map[string]string{
	"plugins-dir":  config.KeyPluginsDir,
	"timeout":      config.KeyPluginsTimeout,
	"concurrency":  config.KeyPluginsConcurrency,
	"history":      config.KeyHistoryPath,
	"metrics-file": config.KeyMetricsFile,
	"debug":        config.KeyDebug,
	"output":       config.KeyOutput,
}

// NewRootCommand RootCommand represents the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "pluginhost",
		Short: "pluginhost - discover, validate and run Go source plugins",
		Long: `pluginhost discovers Go plugin source files in a directory, loads each
one into its own interpreter, and runs or validates it.

A plugin is a single .go file. The registry invokes its package-level Run
function; the validator checks for a Plugin base type and a type embedding
it that exposes Run. doc.go and _test.go files are never treated as plugins.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Global setup that runs before any command
			if err := initializeContainer(cmd, container); err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return nil
		},
	}

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	// Add persistent flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default is $HOME/.pluginhost/config.yaml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("plugins-dir", "", "Directory containing plugin source files (default ./plugins)")
	flags.Duration("timeout", 0, "Per-plugin timeout, 0 for none")
	flags.Int("concurrency", 0, "Number of plugins to process at once (default 1)")
	flags.String("history", "", "Run history database path, \"off\" to disable")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.StringP("output", "o", "", "Output format: text, json or yaml")

	// Add subcommands
	rootCmd.AddCommand(NewListCommand(container))
	rootCmd.AddCommand(NewRunCommand(container))
	rootCmd.AddCommand(NewRunAllCommand(container))
	rootCmd.AddCommand(NewValidateCommand(container))
	rootCmd.AddCommand(NewWatchCommand(container))
	rootCmd.AddCommand(NewDashboardCommand(container))
	rootCmd.AddCommand(NewHistoryCommand(container))
	rootCmd.AddCommand(NewConfigCommand(container))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// initializeContainer binds explicitly set flags and builds the dependencies
func initializeContainer(cmd *cobra.Command, container *CLIContainer) error {
	// Type assert the MainContainer to access the initializer
	mainContainer, ok := container.MainContainer.(initializer)
	if !ok {
		// Containers wired by hand in tests are already initialized
		return nil
	}

	configPath, _ := cmd.Flags().GetString("config")
	return mainContainer.Initialize(configPath, func(v *viper.Viper) error {
		return bindFlags(v, cmd.Flags())
	})
}

// bindFlags applies only flags that were set, so unset flags never mask the
// config file or environment
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if name == "history" && flag.Value.String() == "off" {
			v.Set(key, "")
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context, container *CLIContainer) {
	rootCmd := NewRootCommand(container)
	err := rootCmd.ExecuteContext(ctx)

	if mainContainer, ok := container.MainContainer.(shutdowner); ok {
		if shutdownErr := mainContainer.Shutdown(context.Background()); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown failed: %v\n", shutdownErr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pluginhost version %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
				Version, BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
