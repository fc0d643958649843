package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordToolResult(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordToolResult("create_note", "")
	m.RecordToolResult("create_note", "")
	m.RecordToolResult("create_note", "EXECUTION_ERROR")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("create_note", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("create_note", "EXECUTION_ERROR")))
}

func TestMetrics_Counters(t *testing.T) {
	m := New(nil)

	m.RecordDenial("ANTI_LOOP_ID")
	m.RecordChunk(10)
	m.RecordChunk(5)
	m.RecordRelance()
	m.RecordTurn(OutcomeForced)
	m.ObserveToolDuration("create_note", 20*time.Millisecond)
	m.ObserveModelCall(time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerDenialsTotal.WithLabelValues("ANTI_LOOP_ID")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchChunksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelanceRoundsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(OutcomeForced)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolDurationSeconds))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordToolResult("x", "")
		m.ObserveToolDuration("x", time.Second)
		m.RecordDenial("x")
		m.RecordChunk(1)
		m.RecordRelance()
		m.RecordTurn(OutcomeFinal)
		m.ObserveModelCall(time.Second)
	})
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordRelance()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "relance_relance_rounds_total 1"))
}
