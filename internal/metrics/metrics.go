package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the assistant and storage counters. Each instance owns its registry so
// tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Turns          *prometheus.CounterVec
	TurnLatency    prometheus.Histogram
	ToolCalls      *prometheus.CounterVec
	ModelRequests  *prometheus.CounterVec
	IndexUploads   *prometheus.CounterVec
	StoreMutations *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devtracker_assistant_turns_total",
			Help: "Assistant turns by outcome",
		}, []string{"outcome"}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "devtracker_assistant_turn_duration_seconds",
			Help:    "Wall time of one assistant turn",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devtracker_tool_calls_total",
			Help: "Executed tool calls by tool and result",
		}, []string{"tool", "result"}),
		ModelRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devtracker_model_requests_total",
			Help: "Chat completion requests by pass and result",
		}, []string{"pass", "result"}),
		IndexUploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devtracker_index_requests_total",
			Help: "Knowledge-base mirror requests by operation and result",
		}, []string{"op", "result"}),
		StoreMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devtracker_store_changes_total",
			Help: "Committed record changes by event type",
		}, []string{"type"}),
	}
}

// ObserveTurn records one finished turn. A nil receiver is a no-op so callers can run
// without metrics.
func (m *Metrics) ObserveTurn(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result(ok)).Inc()
}

func (m *Metrics) ModelRequest(pass string, ok bool) {
	if m == nil {
		return
	}
	m.ModelRequests.WithLabelValues(pass, result(ok)).Inc()
}

func (m *Metrics) IndexRequest(op string, ok bool) {
	if m == nil {
		return
	}
	m.IndexUploads.WithLabelValues(op, result(ok)).Inc()
}

func (m *Metrics) StoreChange(eventType string) {
	if m == nil {
		return
	}
	m.StoreMutations.WithLabelValues(eventType).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
