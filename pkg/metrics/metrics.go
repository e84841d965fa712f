package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every instrument
const Namespace = "aigis"

// Tool call status labels
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics groups all Prometheus instruments used by the agent. It is passed
// by reference to every component that records.
type Metrics struct {
	registry *prometheus.Registry

	PostsIngested    prometheus.Counter
	IngestErrors     prometheus.Counter
	IngestLatency    prometheus.Histogram
	RepliesPosted    prometheus.Counter
	ToolCalls        *prometheus.CounterVec
	GenerationRounds prometheus.Histogram
	InFlight         prometheus.Gauge
}

// New creates the instruments on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PostsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "posts_ingested_total",
			Help:      "Events dispatched to the agent.",
		}),
		IngestErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_errors_total",
			Help:      "Events whose turn ended with an error.",
		}),
		IngestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ingest_latency_seconds",
			Help:      "Duration of one agent turn.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		RepliesPosted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replies_posted_total",
			Help:      "Replies published to the network.",
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		GenerationRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "generation_rounds",
			Help:      "Model calls per turn.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "turns_in_flight",
			Help:      "Agent turns currently running.",
		}),
	}
}

func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	m.IngestLatency.Observe(d.Seconds())
}

// TurnStarted marks one turn in flight. A nil Metrics is a no-op.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// TurnFinished records the outcome of one dispatched event. A nil Metrics
// is a no-op.
func (m *Metrics) TurnFinished(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.PostsIngested.Inc()
	m.ObserveIngestLatency(d)
	if failed {
		m.IngestErrors.Inc()
	}
}

// ToolCall counts one tool invocation. A nil Metrics is a no-op.
func (m *Metrics) ToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := StatusOK
	if failed {
		status = StatusError
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// Replied counts one published reply. A nil Metrics is a no-op.
func (m *Metrics) Replied() {
	if m == nil {
		return
	}
	m.RepliesPosted.Inc()
}

// Rounds records the number of model calls of a turn. A nil Metrics is a no-op.
func (m *Metrics) Rounds(n int) {
	if m == nil {
		return
	}
	m.GenerationRounds.Observe(float64(n))
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
