package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kilometers.ai/pluginhost/internal/infrastructure/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand(container *CLIContainer) *cobra.Command {
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage configuration settings for pluginhost.

Settings are resolved from defaults, the config file, PLUGINHOST_* environment
variables and command-line flags, in increasing order of precedence.`,
	}

	// Add subcommands
	configCmd.AddCommand(NewConfigShowCommand(container))
	configCmd.AddCommand(NewConfigPathCommand(container))
	configCmd.AddCommand(NewConfigInitCommand(container))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := container.Config
			if cfg == nil {
				loaded, err := container.ConfigRepo.Load()
				if err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
				cfg = loaded
			}

			if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), cfg); ok {
				return err
			}
			printConfig(cmd, cfg)
			return nil
		},
	}
}

func printConfig(cmd *cobra.Command, cfg *config.Configuration) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("Current Configuration:"))
	fmt.Fprintf(w, "Plugins Directory: %s\n", cfg.Plugins.Dir)
	fmt.Fprintf(w, "Timeout: %s\n", displayDuration(cfg.Plugins.Timeout.String(), cfg.Plugins.Timeout == 0))
	fmt.Fprintf(w, "Concurrency: %d\n", cfg.Plugins.Concurrency)
	fmt.Fprintf(w, "History: %s\n", displayOrDisabled(cfg.History.Path))
	fmt.Fprintf(w, "Metrics File: %s\n", displayOrDisabled(cfg.Metrics.File))
	fmt.Fprintf(w, "Debug: %t\n", cfg.Debug)
	fmt.Fprintf(w, "Output: %s\n", cfg.Output)
}

func displayDuration(value string, none bool) string {
	if none {
		return "(none)"
	}
	return value
}

func displayOrDisabled(value string) string {
	if value == "" {
		return "(disabled)"
	}
	return value
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := container.ConfigRepo.GetConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file path: %s\n", path)
			return nil
		},
	}
}

// NewConfigInitCommand creates the init subcommand
func NewConfigInitCommand(container *CLIContainer) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := container.ConfigRepo.GetConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}

			cfg := container.Config
			if cfg == nil {
				cfg = container.ConfigRepo.LoadDefault()
			}
			if err := container.ConfigRepo.Save(cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("✓ Configuration written to"), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}
