// Package metrics exposes Prometheus counters for simulation runs.
//
// A nil *Metrics is valid and records nothing, so engine code can call the
// Record methods unconditionally.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcome labels.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics is the set of collectors updated by sims and ensembles.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	DaysSimulated      prometheus.Counter
	InfectionsTotal    prometheus.Counter
	RescaleEvents      prometheus.Counter
	InterventionEvents *prometheus.CounterVec
	PopulationScale    prometheus.Gauge
	EnsembleRuns       prometheus.Gauge

	registry prometheus.Gatherer
}

// New registers the collectors with a fresh registry. Use Gatherer to expose
// or dump them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)
	m.registry = reg
	return m
}

// NewWith registers the collectors with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "episim_runs_total",
			Help: "Total number of simulation runs by outcome",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "episim_run_duration_seconds",
			Help:    "Wall-clock duration of simulation runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		DaysSimulated: f.NewCounter(prometheus.CounterOpts{
			Name: "episim_days_simulated_total",
			Help: "Total number of simulated days across runs",
		}),
		InfectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "episim_agent_infections_total",
			Help: "Total number of agent infections, before population scaling",
		}),
		RescaleEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "episim_rescale_events_total",
			Help: "Total number of dynamic rescaling steps",
		}),
		InterventionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "episim_intervention_events_total",
			Help: "Total number of intervention actions by kind",
		}, []string{"kind"}),
		PopulationScale: f.NewGauge(prometheus.GaugeOpts{
			Name: "episim_population_scale",
			Help: "Population scale of the most recently stepped run",
		}),
		EnsembleRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "episim_ensemble_runs_in_flight",
			Help: "Ensemble members currently running",
		}),
	}
}

// Gatherer returns the registry created by New, or nil for NewWith.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRun counts a finished run and its duration.
func (m *Metrics) RecordRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// RecordDay counts one simulated day and the agent infections it produced.
func (m *Metrics) RecordDay(infections int, scale float64) {
	if m == nil {
		return
	}
	m.DaysSimulated.Inc()
	m.InfectionsTotal.Add(float64(infections))
	m.PopulationScale.Set(scale)
}

func (m *Metrics) RecordRescale() {
	if m == nil {
		return
	}
	m.RescaleEvents.Inc()
}

func (m *Metrics) RecordIntervention(kind string) {
	if m == nil {
		return
	}
	m.InterventionEvents.WithLabelValues(kind).Inc()
}

// EnsembleRunStarted and EnsembleRunDone track in-flight ensemble members.
func (m *Metrics) EnsembleRunStarted() {
	if m == nil {
		return
	}
	m.EnsembleRuns.Inc()
}

func (m *Metrics) EnsembleRunDone() {
	if m == nil {
		return
	}
	m.EnsembleRuns.Dec()
}

// WriteTextfile dumps the registry created by New in the Prometheus text
// format, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || m.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
