// Package metrics records plugin outcomes as Prometheus metrics. A CLI run is
// short-lived, so metrics are written to a node_exporter textfile rather than
// served over HTTP.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

const namespace = "pluginhost"

// Collector records plugin outcomes
type Collector struct {
	registry    *prometheus.Registry
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	validations *prometheus.CounterVec
	logger      *zap.Logger
}

var (
	_ ports.OutcomeObserver    = (*Collector)(nil)
	_ ports.ValidationObserver = (*Collector)(nil)
)

// NewCollector creates a collector backed by its own registry
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_runs_total",
				Help:      "Total number of plugin invocations by outcome kind",
			},
			[]string{"plugin", "kind"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plugin_run_duration_seconds",
				Help:      "Time spent loading and running a plugin",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_validations_total",
				Help:      "Total number of plugin validations by result",
			},
			[]string{"valid"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveOutcome records one plugin outcome
func (c *Collector) ObserveOutcome(name string, outcome plugin.Outcome) {
	c.runsTotal.WithLabelValues(name, outcome.Kind.String()).Inc()
	c.runDuration.WithLabelValues(name).Observe(outcome.Duration.Seconds())
}

// ObserveValidation records one validation result
func (c *Collector) ObserveValidation(result plugin.ValidationResult) {
	c.validations.WithLabelValues(fmt.Sprintf("%t", result.Valid())).Inc()
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the Prometheus text format
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
