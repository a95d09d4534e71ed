package plugin

import (
	"sort"
	"time"
)

// RunReport aggregates the outcome of every plugin discovered in one run.
// Every discovered name appears exactly once in Results.
type RunReport struct {
	ID         string             `json:"id" yaml:"id"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time          `json:"finished_at" yaml:"finished_at"`
	Results    map[string]Outcome `json:"results" yaml:"results"`
}

// NewRunReport creates an empty report sized for n plugins
func NewRunReport(id string, startedAt time.Time, n int) *RunReport {
	return &RunReport{
		ID:        id,
		StartedAt: startedAt,
		Results:   make(map[string]Outcome, n),
	}
}

// Names returns the plugin names in the report, sorted
func (r *RunReport) Names() []string {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of outcomes of the given kind
func (r *RunReport) Count(kind OutcomeKind) int {
	count := 0
	for _, o := range r.Results {
		if o.Kind == kind {
			count++
		}
	}
	return count
}

// Failures returns the names of plugins whose outcome is a failure, sorted
func (r *RunReport) Failures() []string {
	var failed []string
	for _, name := range r.Names() {
		if r.Results[name].Kind.IsFailure() {
			failed = append(failed, name)
		}
	}
	return failed
}

// OK reports whether no plugin failed
func (r *RunReport) OK() bool {
	return len(r.Failures()) == 0
}

// Duration returns the wall time of the run
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Flatten returns the name->string view of the report
func (r *RunReport) Flatten() map[string]string {
	flat := make(map[string]string, len(r.Results))
	for name, o := range r.Results {
		flat[name] = o.String()
	}
	return flat
}
