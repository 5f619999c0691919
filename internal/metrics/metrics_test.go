package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveVerdict(t *testing.T) {
	m := New()

	m.ObserveVerdict(false, "normal")
	m.ObserveVerdict(true, "behavioral_anomaly")
	m.ObserveVerdict(true, "behavioral_anomaly")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("normal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("attack")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.attacks.WithLabelValues("behavioral_anomaly")))
}

func TestMetrics_JanitorSweep(t *testing.T) {
	m := New()

	m.JanitorSweep(3, 2, false)
	m.JanitorSweep(0, 0, true)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.janitorEvicted.WithLabelValues("user")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.janitorEvicted.WithLabelValues("origin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.janitorSweeps.WithLabelValues("failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveVerdict(true, "x")
		m.SetClassifierState(1)
		m.Anomaly("HIGH_FREQUENCY")
		m.StorageFailure("file")
		m.LedgerSubmission("ok")
		m.JanitorSweep(1, 1, false)
		m.ObserveRequest("/health", "GET", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Anomaly("SUSPICIOUS_UA")
	m.SetClassifierState(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `loginguard_anomalies_total{kind="SUSPICIOUS_UA"} 1`)
	assert.Contains(t, string(body), "loginguard_classifier_state 2")
}

func TestMetrics_GaugeFunc(t *testing.T) {
	m := New()
	conns := 3.0
	m.GaugeFunc("db_pool_acquired_conns", "Acquired pool connections.", func() float64 { return conns })

	n, err := testutil.GatherAndCount(m.Registry(), "loginguard_db_pool_acquired_conns")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("/security/attacks", "GET", 200, 20*time.Millisecond)
	m.ObserveRequest("", "GET", 404, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))

	n, err := testutil.GatherAndCount(m.Registry(), "loginguard_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
