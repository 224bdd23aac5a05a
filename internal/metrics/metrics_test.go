package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ToolCall("addTask", true)
	m.ToolCall("addTask", false)
	m.ObserveTurn("done", time.Now())

	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("addTask", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("addTask", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "devtracker_assistant_turns_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ToolCall("x", true)
	m.ObserveTurn("done", time.Now())
	m.ModelRequest("initial", false)
	m.IndexRequest("upload", true)
	m.StoreChange("task.created")
}
