package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

// pluginListItem is the structured form of a listed plugin
type pluginListItem struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// NewListCommand creates the list command
func NewListCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List plugins in the plugins directory",
		Long: `List every plugin source file in the plugins directory.

Files are listed whether or not they load; use 'pluginhost validate' to check them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := container.PluginService.ListPlugins(cmd.Context())
			if err != nil {
				return err
			}

			items := make([]pluginListItem, len(descs))
			for i, d := range descs {
				items[i] = pluginListItem{Name: d.Name.Value(), Path: d.Path}
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), items); ok {
				return err
			}

			printPluginList(cmd.OutOrStdout(), container.PluginService.Dir(), descs)
			return nil
		},
	}
}

// NewRunCommand creates the run command
func NewRunCommand(container *CLIContainer) *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "run [plugin]",
		Short: "Run one plugin, or all plugins when no name is given",
		Long: `Load a plugin into a fresh interpreter and call its Run function.

Without a name every plugin is run, exactly like 'pluginhost run-all'.

Examples:
  pluginhost run hello
  pluginhost run --timeout 5s
  pluginhost run -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runAll(cmd, container, failOnError)
			}
			return runOne(cmd, container, args[0], failOnError)
		},
	}

	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when a plugin fails")
	return cmd
}

// NewRunAllCommand creates the run-all command
func NewRunAllCommand(container *CLIContainer) *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every plugin and report each outcome",
		Long: `Run every plugin in the plugins directory.

A plugin that fails to load, has no Run function, returns an error or panics
is recorded in the report; the remaining plugins still run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd, container, failOnError)
		},
	}

	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any plugin fails")
	return cmd
}

func runOne(cmd *cobra.Command, container *CLIContainer, name string, failOnError bool) error {
	outcome := container.PluginService.RunPlugin(cmd.Context(), name)

	ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), map[string]plugin.Outcome{name: outcome})
	if !ok {
		printOutcome(cmd.OutOrStdout(), name, outcome)
	} else if err != nil {
		return err
	}

	if failOnError && outcome.Kind.IsFailure() {
		return fmt.Errorf("plugin %s failed: %s", name, outcome.Message)
	}
	return nil
}

func runAll(cmd *cobra.Command, container *CLIContainer, failOnError bool) error {
	report, err := container.PluginService.RunAllPlugins(cmd.Context())
	if err != nil {
		return err
	}

	ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), newReportView(report))
	if !ok {
		printReport(cmd.OutOrStdout(), report)
	} else if err != nil {
		return err
	}

	if failOnError && !report.OK() {
		return fmt.Errorf("%d plugin(s) failed: %v", len(report.Failures()), report.Failures())
	}
	return nil
}
