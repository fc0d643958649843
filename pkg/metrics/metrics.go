// Package metrics provides Prometheus collectors for the orchestration core.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics dependency without branching at every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relance"

// Outcome labels for turns.
const (
	OutcomeFinal     = "final"
	OutcomeForced    = "forced_final"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every collector exported by the engine.
type Metrics struct {
	// ToolExecutionsTotal counts executor results.
	// Labels: tool, code ("ok" for success, otherwise the error code)
	ToolExecutionsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures handler latency for calls that reached a handler.
	// Labels: tool
	ToolDurationSeconds *prometheus.HistogramVec

	// LedgerDenialsTotal counts anti-loop denials.
	// Labels: reason (ANTI_LOOP_ID, ANTI_LOOP_SIGNATURE)
	LedgerDenialsTotal *prometheus.CounterVec

	// BatchChunksTotal counts chunks dispatched by the scheduler.
	BatchChunksTotal prometheus.Counter

	// BatchChunkSize observes the number of requests per chunk.
	BatchChunkSize prometheus.Histogram

	// RelanceRoundsTotal counts model re-invocations after tool results.
	RelanceRoundsTotal prometheus.Counter

	// TurnsTotal counts completed user turns.
	// Labels: outcome (final, forced_final, error, cancelled)
	TurnsTotal *prometheus.CounterVec

	// ModelCallDurationSeconds measures model client latency.
	ModelCallDurationSeconds prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. When reg is nil a
// private registry is used.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total tool call results by tool and result code",
		}, []string{"tool", "code"}),

		ToolDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool handler duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		}, []string{"tool"}),

		LedgerDenialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_denials_total",
			Help:      "Tool calls refused by the execution ledger",
		}, []string{"reason"}),

		BatchChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_chunks_total",
			Help:      "Total chunks dispatched by the batch scheduler",
		}),

		BatchChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_chunk_size",
			Help:      "Number of tool calls per dispatched chunk",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),

		RelanceRoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relance_rounds_total",
			Help:      "Total model re-invocations following tool results",
		}),

		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed user turns by outcome",
		}, []string{"outcome"}),

		ModelCallDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model client call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		gatherer: gatherer,
	}
}

// RecordToolResult counts one executor result.
func (m *Metrics) RecordToolResult(tool, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, code).Inc()
}

// ObserveToolDuration records handler latency.
func (m *Metrics) ObserveToolDuration(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordDenial counts a ledger denial.
func (m *Metrics) RecordDenial(reason string) {
	if m == nil {
		return
	}
	m.LedgerDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordChunk counts a dispatched chunk of size n.
func (m *Metrics) RecordChunk(n int) {
	if m == nil {
		return
	}
	m.BatchChunksTotal.Inc()
	m.BatchChunkSize.Observe(float64(n))
}

// RecordRelance counts one relance round.
func (m *Metrics) RecordRelance() {
	if m == nil {
		return
	}
	m.RelanceRoundsTotal.Inc()
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelCall records model client latency.
func (m *Metrics) ObserveModelCall(d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallDurationSeconds.Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing the registry the metrics were
// registered on. It falls back to the default gatherer when the registerer
// cannot be gathered from.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
