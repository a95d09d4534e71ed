package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/infrastructure/monitoring"
)

// WatchFlags holds command-line flags for the watch command
type WatchFlags struct {
	Debounce     time.Duration
	ValidateOnly bool
}

// NewWatchCommand creates the watch command
func NewWatchCommand(container *CLIContainer) *cobra.Command {
	flags := &WatchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate and re-run plugins whenever their files change",
		Long: `Watch the plugins directory. Each time plugin files settle after a change,
every plugin is validated and then run, and the report is printed.

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), container, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.Debounce, "debounce", monitoring.DefaultDebounce, "Quiet period before a change is handled")
	cmd.Flags().BoolVar(&flags.ValidateOnly, "validate-only", false, "Validate on change without running plugins")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, container *CLIContainer, flags *WatchFlags) error {
	logger := container.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// cycles never overlap
	var mu sync.Mutex
	cycle := func(ctx context.Context, changed []string) {
		mu.Lock()
		defer mu.Unlock()

		if len(changed) > 0 {
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("changed: %v", changed)))
		}
		if err := watchCycle(ctx, out, container, flags.ValidateOnly); err != nil {
			logger.Warn("watch cycle failed", zap.Error(err))
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}

	watcher, err := monitoring.NewPluginDirWatcher(container.PluginService.Dir(), flags.Debounce, cycle, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return err
	}
	defer watcher.Stop()

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Watching %s (Ctrl+C to stop)", container.PluginService.Dir())))
	cycle(ctx, nil)

	select {
	case <-ctx.Done():
	case <-watcher.Done():
	}
	return nil
}

func watchCycle(ctx context.Context, out io.Writer, container *CLIContainer, validateOnly bool) error {
	results, err := container.PluginService.ValidateAll(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Validation at %s", time.Now().Format("15:04:05"))))
	for _, name := range names {
		printValidation(out, name, results[name])
	}

	if validateOnly {
		return nil
	}

	report, err := container.PluginService.RunAllPlugins(ctx)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}
