package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"gopkg.in/yaml.v3"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
	"kilometers.ai/pluginhost/internal/infrastructure/config"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// outputFormat returns the configured output format
func outputFormat(container *CLIContainer) string {
	if container.Config == nil || container.Config.Output == "" {
		return config.OutputText
	}
	return container.Config.Output
}

// writeStructured encodes v as JSON or YAML. It reports false for text output.
func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

// kindStyle picks the style for an outcome kind
func kindStyle(kind plugin.OutcomeKind) lipgloss.Style {
	switch {
	case kind == plugin.OutcomeSuccess:
		return successStyle
	case kind == plugin.OutcomeNoEntryPoint:
		return warningStyle
	default:
		return errorStyle
	}
}

// kindSymbol returns the status marker for an outcome kind
func kindSymbol(kind plugin.OutcomeKind) string {
	switch {
	case kind == plugin.OutcomeSuccess:
		return "✓"
	case kind == plugin.OutcomeNoEntryPoint:
		return "-"
	default:
		return "✗"
	}
}

func printPluginList(w io.Writer, dir string, descs []plugin.Descriptor) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plugins in %s", dir)))
	if len(descs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  (none)"))
		return
	}
	for _, d := range descs {
		fmt.Fprintf(w, "  %-24s %s\n", d.Name.Value(), mutedStyle.Render(d.Path))
	}
}

func printOutcome(w io.Writer, name string, outcome plugin.Outcome) {
	style := kindStyle(outcome.Kind)
	fmt.Fprintf(w, "  %s %-24s %-15s %s %s\n",
		style.Render(kindSymbol(outcome.Kind)),
		name,
		style.Render(outcome.Kind.String()),
		truncateString(singleLine(outcome.String()), 60),
		mutedStyle.Render(outcome.Duration.Round(time.Millisecond).String()),
	)
}

func printReport(w io.Writer, report *plugin.RunReport) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s", report.ID)))
	for _, name := range report.Names() {
		printOutcome(w, name, report.Results[name])
	}
	fmt.Fprintln(w, summaryLine(report))
}

func summaryLine(report *plugin.RunReport) string {
	failed := len(report.Failures())
	line := fmt.Sprintf("%d plugins: %d succeeded, %d without entry point, %d failed (%s)",
		len(report.Results),
		report.Count(plugin.OutcomeSuccess),
		report.Count(plugin.OutcomeNoEntryPoint),
		failed,
		report.Duration().Round(time.Millisecond))
	if failed > 0 {
		return errorStyle.Render(line)
	}
	return successStyle.Render(line)
}

// reportView is the structured form of a run report
type reportView struct {
	ID         string                    `json:"id" yaml:"id"`
	StartedAt  time.Time                 `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                 `json:"finished_at" yaml:"finished_at"`
	OK         bool                      `json:"ok" yaml:"ok"`
	Results    map[string]plugin.Outcome `json:"results" yaml:"results"`
}

func newReportView(report *plugin.RunReport) reportView {
	return reportView{
		ID:         report.ID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		OK:         report.OK(),
		Results:    report.Results,
	}
}

func printValidation(w io.Writer, label string, result plugin.ValidationResult) {
	if result.Valid() {
		fmt.Fprintf(w, "  %s %-24s %s\n", successStyle.Render("✓"), label, successStyle.Render("valid ("+result.ClassName()+")"))
	} else {
		fmt.Fprintf(w, "  %s %-24s %s\n", errorStyle.Render("✗"), label, errorStyle.Render("invalid"))
	}
	for _, e := range result.Errors() {
		fmt.Fprintf(w, "      %s\n", errorStyle.Render(e))
	}
	for _, warning := range result.Warnings() {
		fmt.Fprintf(w, "      %s\n", warningStyle.Render("warning: "+warning))
	}
}

func printHistory(w io.Writer, summaries []ports.RunSummary) {
	fmt.Fprintln(w, titleStyle.Render("Recent runs"))
	if len(summaries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  (no runs recorded)"))
		return
	}
	for _, s := range summaries {
		started := time.UnixMilli(s.StartedAt).Format("2006-01-02 15:04:05")
		duration := time.Duration(s.FinishedAt-s.StartedAt) * time.Millisecond
		fmt.Fprintf(w, "  %s  %s  %3d plugins  %s  %s\n",
			s.ID, started, s.Total, formatCounts(s.Counts), mutedStyle.Render(duration.String()))
	}
}

func printRunOutcomes(w io.Writer, runID string, outcomes []ports.RunOutcome) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s", runID)))
	for _, o := range outcomes {
		kind, err := plugin.ParseOutcomeKind(o.Kind)
		style := mutedStyle
		if err == nil {
			style = kindStyle(kind)
		}
		fmt.Fprintf(w, "  %-24s %-15s %s %s\n",
			o.Plugin, style.Render(o.Kind), truncateString(singleLine(o.Result), 60),
			mutedStyle.Render(fmt.Sprintf("%dms", o.DurationMS)))
	}
}

func formatCounts(counts map[string]int) string {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, counts[kind]))
	}
	return strings.Join(parts, " ")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateString truncates a string to maxLen terminal cells, never
// splitting a rune
func truncateString(s string, maxLen int) string {
	return ansi.Truncate(s, maxLen, "...")
}
