// Package metrics exposes catalog load outcomes as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/eventscript/internal/catalog"
)

// Load results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics records catalog loads. It implements catalog.Recorder.
type Metrics struct {
	registry *prometheus.Registry
	textfile string
	onError  func(error)

	loads    *prometheus.CounterVec
	events   *prometheus.CounterVec
	size     *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// Option configures Metrics.
type Option func(*Metrics)

// WithTextfile writes every metric to path after each load, for the
// node_exporter textfile collector.
func WithTextfile(path string) Option {
	return func(m *Metrics) {
		m.textfile = path
	}
}

// WithErrorHandler receives textfile write errors.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Metrics) {
		m.onError = fn
	}
}

// New creates and registers the collectors in a fresh registry.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventscript",
				Subsystem: "catalog",
				Name:      "loads_total",
				Help:      "Total number of catalog loads by result",
			},
			[]string{"catalog", "result"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventscript",
				Name:      "events_total",
				Help:      "Total number of event declarations processed by outcome",
			},
			[]string{"catalog", "outcome"},
		),
		size: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventscript",
				Subsystem: "catalog",
				Name:      "events",
				Help:      "Events registered by the last successful load",
			},
			[]string{"catalog"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventscript",
				Subsystem: "catalog",
				Name:      "load_duration_seconds",
				Help:      "Duration of successful catalog loads in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"catalog"},
		),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry.MustRegister(m.loads, m.events, m.size, m.duration)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LoadFinished implements catalog.Recorder.
func (m *Metrics) LoadFinished(name string, rep *catalog.Report, err error) {
	if err != nil || rep == nil {
		m.loads.WithLabelValues(name, ResultFailure).Inc()
		m.flush()
		return
	}

	m.loads.WithLabelValues(name, ResultSuccess).Inc()
	for _, o := range catalog.Outcomes {
		if n := rep.Count(o); n > 0 {
			m.events.WithLabelValues(name, o.String()).Add(float64(n))
		}
	}
	m.size.WithLabelValues(name).Set(float64(rep.Registered()))
	m.duration.WithLabelValues(name).Observe(rep.Duration.Seconds())
	m.flush()
}

// WriteTextfile writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) flush() {
	if m.textfile == "" {
		return
	}
	if err := m.WriteTextfile(m.textfile); err != nil && m.onError != nil {
		m.onError(err)
	}
}

var _ catalog.Recorder = (*Metrics)(nil)
