// Package metrics defines the Prometheus collectors of Owl Middleware.
// All Record* methods are safe to call on a nil *Metrics, which disables collection.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "owl"

// Metrics holds every collector exported by the process.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Remote backend
	BackendRequestDuration *prometheus.HistogramVec
	BackendUp              prometheus.Gauge

	// Orchestration
	RollbacksTotal  *prometheus.CounterVec
	UploadedBytes   prometheus.Counter
	ProviderCalls   *prometheus.CounterVec
	SearchCacheHits *prometheus.CounterVec

	// Bot surface
	BotUpdatesTotal *prometheus.CounterVec

	// Janitor
	JanitorLastRunTime  *prometheus.GaugeVec
	ReconciledTotal     *prometheus.CounterVec
	StateEntriesRemoved prometheus.Counter
}

// New registers all collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served by the gateway.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		BackendRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of calls to the remote container service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),

		BackendUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "1 when the last backend health probe succeeded.",
		}),

		RollbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Compensating metadata deletions after a failed remote write.",
		}, []string{"entity", "outcome"}),

		UploadedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of file content accepted by uploads.",
		}),

		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Calls to third-party LLM and OCR providers.",
		}, []string{"provider", "outcome"}),

		SearchCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_session_lookups_total",
			Help:      "Lookups of cached search result sets.",
		}, []string{"result"}),

		BotUpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Telegram updates processed.",
		}, []string{"kind", "outcome"}),

		JanitorLastRunTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "janitor_last_run_timestamp_seconds",
			Help:      "Unix time of the last janitor job run.",
		}, []string{"job"}),

		ReconciledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_records_total",
			Help:      "Stale pending records removed by the janitor.",
		}, []string{"entity"}),

		StateEntriesRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_entries_removed_total",
			Help:      "Idle per-user states dropped by cleanup.",
		}),
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordBackendCall records one call to the remote backend.
func (m *Metrics) RecordBackendCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestDuration.WithLabelValues(operation, outcome(err)).Observe(d.Seconds())
}

// SetBackendUp records the result of a health probe.
func (m *Metrics) SetBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BackendUp.Set(1)
	} else {
		m.BackendUp.Set(0)
	}
}

// RecordRollback records a compensating deletion.
func (m *Metrics) RecordRollback(entity string, err error) {
	if m == nil {
		return
	}
	m.RollbacksTotal.WithLabelValues(entity, outcome(err)).Inc()
}

// RecordUpload records accepted upload bytes.
func (m *Metrics) RecordUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadedBytes.Add(float64(size))
}

// RecordProviderCall records a call to an LLM or OCR provider.
func (m *Metrics) RecordProviderCall(provider string, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome(err)).Inc()
}

// RecordSearchSessionLookup records a hit or miss of the search session cache.
func (m *Metrics) RecordSearchSessionLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SearchCacheHits.WithLabelValues("hit").Inc()
	} else {
		m.SearchCacheHits.WithLabelValues("miss").Inc()
	}
}

// RecordBotUpdate records a processed Telegram update.
func (m *Metrics) RecordBotUpdate(kind string, err error) {
	if m == nil {
		return
	}
	m.BotUpdatesTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordJanitorRun stamps the last run time of a janitor job.
func (m *Metrics) RecordJanitorRun(job string) {
	if m == nil {
		return
	}
	m.JanitorLastRunTime.WithLabelValues(job).SetToCurrentTime()
}

// RecordReconciled records stale pending records removed.
func (m *Metrics) RecordReconciled(entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReconciledTotal.WithLabelValues(entity).Add(float64(n))
}

// RecordStateCleanup records dropped per-user states.
func (m *Metrics) RecordStateCleanup(n int) {
	if m == nil || n == 0 {
		return
	}
	m.StateEntriesRemoved.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
