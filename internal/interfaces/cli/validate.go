package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [plugin|path...]",
		Short: "Check plugins against the Plugin base type contract",
		Long: `Validate plugin source files without running their entry point.

A valid plugin declares a type named Plugin and at least one type that embeds
it (directly, by pointer, or through another embedding type) and exposes Run.
The first such type in declaration order is reported.

Arguments may be plugin names or file paths. Without arguments every plugin
in the plugins directory is validated. The command fails if any result is
invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := collectValidations(cmd, container, args)
			if err != nil {
				return err
			}

			labels := make([]string, 0, len(results))
			for label := range results {
				labels = append(labels, label)
			}
			sort.Strings(labels)

			ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), results)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Plugin validation"))
				for _, label := range labels {
					printValidation(cmd.OutOrStdout(), label, results[label])
				}
			} else if err != nil {
				return err
			}

			invalid := 0
			for _, r := range results {
				if !r.Valid() {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d plugin(s) invalid", invalid, len(results))
			}
			return nil
		},
	}
}

func collectValidations(cmd *cobra.Command, container *CLIContainer, args []string) (map[string]plugin.ValidationResult, error) {
	if len(args) == 0 {
		return container.PluginService.ValidateAll(cmd.Context())
	}

	results := make(map[string]plugin.ValidationResult, len(args))
	for _, arg := range args {
		results[arg] = container.PluginService.ValidatePlugin(cmd.Context(), container.PluginService.ResolvePath(arg))
	}
	return results, nil
}
