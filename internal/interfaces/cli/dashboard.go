package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

// DashboardFlags holds command-line flags for the dashboard command
type DashboardFlags struct {
	RefreshRate time.Duration
}

// NewDashboardCommand creates the dashboard command
func NewDashboardCommand(container *CLIContainer) *cobra.Command {
	flags := &DashboardFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Interactive terminal dashboard for plugins",
		Long: `Launch an interactive terminal dashboard listing every plugin with its
validation status and the outcome of its last run.

Examples:
  pluginhost dashboard                  # Run on demand with 'r'
  pluginhost dashboard --refresh 10s    # Re-run every 10 seconds`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), container, flags)
		},
	}

	// Add command-line flags
	cmd.Flags().DurationVar(&flags.RefreshRate, "refresh", 0, "Re-run all plugins at this interval, 0 to disable")

	return cmd
}

// runDashboard starts the terminal dashboard
func runDashboard(ctx context.Context, container *CLIContainer, flags *DashboardFlags) error {
	model := newDashboardModel(ctx, container, flags)

	// Plugin output would draw over the alternate screen
	defer silencePluginOutput(container)()

	// Start the Bubble Tea program
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}

// silencePluginOutput discards plugin output until the returned func is called
func silencePluginOutput(container *CLIContainer) (restore func()) {
	if container.PluginOutput == nil {
		return func() {}
	}
	return container.PluginOutput.Redirect(io.Discard)
}

// pluginRow is one plugin as displayed in the dashboard
type pluginRow struct {
	Name       string
	Validation *plugin.ValidationResult
	Outcome    *plugin.Outcome
}

// dashboardModel holds the state for the Bubble Tea dashboard
type dashboardModel struct {
	ctx          context.Context
	container    *CLIContainer
	flags        *DashboardFlags
	rows         []pluginRow
	selectedRow  int
	busy         string
	lastRunID    string
	lastUpdate   time.Time
	windowWidth  int
	windowHeight int
	err          error
}

// newDashboardModel creates a new dashboard model
func newDashboardModel(ctx context.Context, container *CLIContainer, flags *DashboardFlags) dashboardModel {
	return dashboardModel{
		ctx:          ctx,
		container:    container,
		flags:        flags,
		rows:         []pluginRow{},
		selectedRow:  0,
		busy:         "validating",
		windowHeight: 24,
	}
}

// Init implements the Bubble Tea init method
func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		m.validateCmd(),
		m.tickCmd(),
	)
}

// Update implements the Bubble Tea update method
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			return m, nil

		case "down", "j":
			if m.selectedRow < len(m.rows)-1 {
				m.selectedRow++
			}
			return m, nil

		case "r":
			if m.busy != "" {
				return m, nil
			}
			m.busy = "running"
			return m, m.runCmd()

		case "v":
			if m.busy != "" {
				return m, nil
			}
			m.busy = "validating"
			return m, m.validateCmd()
		}

	case tickMsg:
		if m.busy == "" {
			m.busy = "running"
			return m, tea.Batch(m.tickCmd(), m.runCmd())
		}
		return m, m.tickCmd()

	case validatedMsg:
		m.busy = ""
		m.err = nil
		m.mergeValidations(msg.results)
		m.lastUpdate = time.Now()
		return m, nil

	case reportMsg:
		m.busy = ""
		m.err = nil
		m.mergeReport(msg.report)
		m.lastRunID = msg.report.ID
		m.lastUpdate = time.Now()
		return m, nil

	case errMsg:
		m.busy = ""
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method
func (m dashboardModel) View() string {
	// Header
	header := m.renderHeader()

	// Plugin table
	table := m.renderPluginTable()

	// Footer with controls
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}

// renderHeader renders the dashboard header
func (m dashboardModel) renderHeader() string {
	title := titleStyle.Render("pluginhost dashboard")

	info := fmt.Sprintf("Dir: %s | Plugins: %d", m.container.PluginService.Dir(), len(m.rows))

	status := "IDLE"
	statusStyle := successStyle.Bold(true)
	if m.busy != "" {
		status = strings.ToUpper(m.busy)
		statusStyle = warningStyle.Bold(true)
	}

	line1 := lipgloss.JoinHorizontal(lipgloss.Left,
		title,
		"  ",
		info,
		"  ",
		statusStyle.Render(status),
	)

	lastUpdate := "never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("15:04:05")
	}
	line2 := fmt.Sprintf("Last Update: %s | Last Run: %s", lastUpdate, valueOr(m.lastRunID, "none"))
	if m.err != nil {
		line2 += " | " + errorStyle.Render("Error: "+m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left, line1, line2, "")
}

// renderPluginTable renders the main plugin table
func (m dashboardModel) renderPluginTable() string {
	if len(m.rows) == 0 {
		return mutedStyle.Render("\n  No plugins found. Press 'v' to rescan.\n")
	}

	// Table header
	header := titleStyle.Render(fmt.Sprintf("%-24s │ %-20s │ %-15s │ %-8s │ %s",
		"PLUGIN", "CONTRACT", "LAST RUN", "TIME", "RESULT"))

	rows := []string{header}

	maxRows := m.windowHeight - 7 // Account for header and footer
	if maxRows < 1 {
		maxRows = 1
	}
	start := 0
	if m.selectedRow >= maxRows {
		start = m.selectedRow - maxRows + 1
	}

	for i := start; i < len(m.rows) && i < start+maxRows; i++ {
		row := m.rows[i]

		contract := mutedStyle.Render(fmt.Sprintf("%-20s", "?"))
		if row.Validation != nil {
			if row.Validation.Valid() {
				contract = successStyle.Render(fmt.Sprintf("%-20s", truncateString(row.Validation.ClassName(), 20)))
			} else {
				contract = errorStyle.Render(fmt.Sprintf("%-20s", "invalid"))
			}
		}

		kind, duration, result := "-", "", ""
		style := mutedStyle
		if row.Outcome != nil {
			kind = row.Outcome.Kind.String()
			duration = row.Outcome.Duration.Round(time.Millisecond).String()
			result = truncateString(singleLine(row.Outcome.String()), 40)
			style = kindStyle(row.Outcome.Kind)
		}

		line := fmt.Sprintf("%-24s │ %s │ %s │ %-8s │ %s",
			truncateString(row.Name, 24), contract, style.Render(fmt.Sprintf("%-15s", kind)), duration, result)

		if i == m.selectedRow {
			line = lipgloss.NewStyle().Background(lipgloss.Color("240")).Render(line)
		}
		rows = append(rows, line)
	}

	if details := m.renderSelected(); details != "" {
		rows = append(rows, "", details)
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderSelected renders the validation errors of the selected plugin
func (m dashboardModel) renderSelected() string {
	if m.selectedRow >= len(m.rows) {
		return ""
	}
	row := m.rows[m.selectedRow]
	if row.Validation == nil || row.Validation.Valid() {
		return ""
	}
	return errorStyle.Render(row.Name + ": " + strings.Join(row.Validation.Errors(), "; "))
}

// renderFooter renders the control instructions footer
func (m dashboardModel) renderFooter() string {
	return mutedStyle.Render("Controls: [↑↓] Navigate | [r] Run all | [v] Validate | [q] Quit")
}

// mergeValidations replaces the plugin list with the validated set
func (m *dashboardModel) mergeValidations(results map[string]plugin.ValidationResult) {
	previous := make(map[string]*plugin.Outcome, len(m.rows))
	for _, row := range m.rows {
		previous[row.Name] = row.Outcome
	}

	rows := make([]pluginRow, 0, len(results))
	for name, result := range results {
		result := result
		rows = append(rows, pluginRow{Name: name, Validation: &result, Outcome: previous[name]})
	}
	m.setRows(rows)
}

// mergeReport records run outcomes, adding plugins the table has not seen yet
func (m *dashboardModel) mergeReport(report *plugin.RunReport) {
	index := make(map[string]int, len(m.rows))
	for i, row := range m.rows {
		index[row.Name] = i
	}

	rows := m.rows
	for _, name := range report.Names() {
		outcome := report.Results[name]
		if i, ok := index[name]; ok {
			rows[i].Outcome = &outcome
			continue
		}
		rows = append(rows, pluginRow{Name: name, Outcome: &outcome})
	}
	m.setRows(rows)
}

func (m *dashboardModel) setRows(rows []pluginRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	m.rows = rows
	if m.selectedRow >= len(rows) {
		m.selectedRow = len(rows) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

// tickMsg is sent every refresh interval
type tickMsg time.Time

// tickCmd creates a tick command, or nil when auto refresh is disabled
func (m dashboardModel) tickCmd() tea.Cmd {
	if m.flags.RefreshRate <= 0 {
		return nil
	}
	return tea.Tick(m.flags.RefreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// validatedMsg is sent when validation finishes
type validatedMsg struct {
	results map[string]plugin.ValidationResult
}

// reportMsg is sent when a run finishes
type reportMsg struct {
	report *plugin.RunReport
}

// errMsg is sent when an error occurs
type errMsg struct {
	err error
}

// validateCmd validates every plugin
func (m dashboardModel) validateCmd() tea.Cmd {
	return func() tea.Msg {
		results, err := m.container.PluginService.ValidateAll(m.ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return validatedMsg{results: results}
	}
}

// runCmd runs every plugin
func (m dashboardModel) runCmd() tea.Cmd {
	return func() tea.Msg {
		report, err := m.container.PluginService.RunAllPlugins(m.ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return reportMsg{report: report}
	}
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
