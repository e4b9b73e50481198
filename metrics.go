package cutover

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics describes one run for a node_exporter textfile collector.
type Metrics struct {
	registry *prometheus.Registry

	probes   *prometheus.CounterVec
	commands *prometheus.CounterVec
	warnings prometheus.Counter
	success  prometheus.Gauge
	duration prometheus.Gauge
	lastRun  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggcutover",
			Name:      "probes_total",
			Help:      "Status probes by unit kind and observed state.",
		}, []string{"kind", "state"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggcutover",
			Name:      "commands_total",
			Help:      "Mutating commands by unit kind, action and classified outcome.",
		}, []string{"kind", "action", "outcome"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ggcutover",
			Name:      "warnings_total",
			Help:      "Warnings raised during the run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ggcutover",
			Name:      "last_run_success",
			Help:      "1 when both units were running at final verification.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ggcutover",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ggcutover",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}
	m.registry.MustRegister(m.probes, m.commands, m.warnings, m.success, m.duration, m.lastRun)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeProbe(unit ReplicationUnit, state UnitState) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(unit.Kind.String(), state.String()).Inc()
}

func (m *Metrics) observeCommand(unit ReplicationUnit, action Action, outcome CommandOutcome) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(unit.Kind.String(), action.String(), outcome.Kind.String()).Inc()
}

func (m *Metrics) observeWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

func (m *Metrics) observeRun(result *CutoverResult, elapsed time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	if result.Success {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.duration.Set(elapsed.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the run metrics in the text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
