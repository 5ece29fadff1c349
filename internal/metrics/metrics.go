// Package metrics provides Prometheus instrumentation for the payments engine.
//
// A run is a batch job, so instead of serving /metrics the recorder's
// registry is written once to a node_exporter textfile after the run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for RecordsTotal.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
)

// Recorder groups the engine's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// RecordsTotal counts processed records by kind and outcome.
	RecordsTotal *prometheus.CounterVec

	// IgnoredTotal counts ignored records by kind and reason.
	IgnoredTotal *prometheus.CounterVec

	// Clients tracks the number of known client accounts.
	Clients prometheus.Gauge

	// LockedClients tracks accounts locked by a chargeback.
	LockedClients prometheus.Gauge

	// OpenDisputes tracks deposits currently under dispute.
	OpenDisputes prometheus.Gauge

	// RunDuration observes wall time of a full run.
	RunDuration prometheus.Histogram
}

// New creates a Recorder whose collectors live in a private registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_records_total",
			Help: "Transaction records processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		IgnoredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_records_ignored_total",
			Help: "Transaction records ignored by policy, by kind and reason",
		}, []string{"kind", "reason"}),
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "payments_clients",
			Help: "Number of client accounts",
		}),
		LockedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "payments_locked_clients",
			Help: "Number of client accounts locked by a chargeback",
		}),
		OpenDisputes: f.NewGauge(prometheus.GaugeOpts{
			Name: "payments_open_disputes",
			Help: "Number of deposits currently under dispute",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payments_run_duration_seconds",
			Help:    "Wall time of a processing run in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Applied records a record that changed state.
func (r *Recorder) Applied(kind string) {
	if r == nil {
		return
	}
	r.RecordsTotal.WithLabelValues(kind, OutcomeApplied).Inc()
}

// Ignored records a record dropped by policy.
func (r *Recorder) Ignored(kind, reason string) {
	if r == nil {
		return
	}
	r.RecordsTotal.WithLabelValues(kind, OutcomeIgnored).Inc()
	r.IgnoredTotal.WithLabelValues(kind, reason).Inc()
}

// SetState publishes the engine's current sizes.
func (r *Recorder) SetState(clients, locked, openDisputes int) {
	if r == nil {
		return
	}
	r.Clients.Set(float64(clients))
	r.LockedClients.Set(float64(locked))
	r.OpenDisputes.Set(float64(openDisputes))
}

// ObserveRun records the duration of a run.
func (r *Recorder) ObserveRun(seconds float64) {
	if r == nil {
		return
	}
	r.RunDuration.Observe(seconds)
}

// WriteTextfile writes the registry in the Prometheus text format. The file
// is written atomically, so a scraper never sees a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
