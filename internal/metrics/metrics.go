package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loginguard"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts          *prometheus.CounterVec
	attacks           *prometheus.CounterVec
	classifierState   prometheus.Gauge
	anomalies         *prometheus.CounterVec
	storageFailures   *prometheus.CounterVec
	ledgerSubmissions *prometheus.CounterVec
	janitorEvicted    *prometheus.CounterVec
	janitorSweeps     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "attempts_total", Help: "Login attempts analyzed, by verdict."},
			[]string{"verdict"},
		),
		attacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "attacks_total", Help: "Detected attacks, by attack type."},
			[]string{"type"},
		),
		classifierState: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "classifier_state", Help: "Classifier load state (0 unloaded, 1 loaded, 2 failed)."},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "anomalies_total", Help: "Anomalies attached to security events, by kind."},
			[]string{"kind"},
		),
		storageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "storage_failures_total", Help: "Durable event write failures, by sink."},
			[]string{"sink"},
		),
		ledgerSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ledger_submissions_total", Help: "Ledger submissions, by result."},
			[]string{"result"},
		),
		janitorEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "janitor", Name: "evicted_keys_total", Help: "Keys removed by the janitor, by scope."},
			[]string{"scope"},
		),
		janitorSweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "janitor", Name: "sweeps_total", Help: "Janitor sweeps, by result."},
			[]string{"result"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request latency, by route and status.", Buckets: prometheus.DefBuckets},
			[]string{"route", "method", "status"},
		),
	}

	m.registry.MustRegister(
		m.attempts,
		m.attacks,
		m.classifierState,
		m.anomalies,
		m.storageFailures,
		m.ledgerSubmissions,
		m.janitorEvicted,
		m.janitorSweeps,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveVerdict counts one analyzed attempt
func (m *Metrics) ObserveVerdict(isAttack bool, attackType string) {
	if m == nil {
		return
	}
	if isAttack {
		m.attempts.WithLabelValues("attack").Inc()
		m.attacks.WithLabelValues(attackType).Inc()
		return
	}
	m.attempts.WithLabelValues("normal").Inc()
}

// SetClassifierState records the classifier load state
func (m *Metrics) SetClassifierState(state int) {
	if m == nil {
		return
	}
	m.classifierState.Set(float64(state))
}

// Anomaly counts an anomaly of the given kind
func (m *Metrics) Anomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

// StorageFailure counts a failed durable write
func (m *Metrics) StorageFailure(sink string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(sink).Inc()
}

// LedgerSubmission counts a ledger call; result is "ok", "failed" or "disabled"
func (m *Metrics) LedgerSubmission(result string) {
	if m == nil {
		return
	}
	m.ledgerSubmissions.WithLabelValues(result).Inc()
}

// JanitorSweep records the outcome of one sweep
func (m *Metrics) JanitorSweep(usersRemoved, originsRemoved int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.janitorSweeps.WithLabelValues("failed").Inc()
		return
	}
	m.janitorSweeps.WithLabelValues("ok").Inc()
	m.janitorEvicted.WithLabelValues("user").Add(float64(usersRemoved))
	m.janitorEvicted.WithLabelValues("origin").Add(float64(originsRemoved))
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

// ObserveRequest records the latency of one HTTP request. route is the
// matched pattern, never the raw path.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
