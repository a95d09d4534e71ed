package cli

import (
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand(container *CLIContainer) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded plugin runs",
		Long: `Show the most recent runs recorded in the history database, or the
per-plugin results of one run when a run ID is given.

Examples:
  pluginhost history
  pluginhost history --limit 50
  pluginhost history 4f9c2a1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				outcomes, err := container.PluginService.RunOutcomes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), outcomes); ok {
					return err
				}
				printRunOutcomes(cmd.OutOrStdout(), args[0], outcomes)
				return nil
			}

			summaries, err := container.PluginService.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), outputFormat(container), summaries); ok {
				return err
			}
			printHistory(cmd.OutOrStdout(), summaries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}
