package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/demandes-api/internal/models"
)

const metricsNamespace = "demandes"

// OutcomeCommitted labels a lifecycle action that reached the store.
const OutcomeCommitted = "committed"

// MetricsService owns the Prometheus registry and keeps running totals for the
// system dashboard, which reads them without scraping.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	render       *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	cacheLatency prometheus.Histogram

	totals struct {
		requests        atomic.Uint64
		requestNanos    atomic.Uint64
		cacheHits       atomic.Uint64
		cacheMisses     atomic.Uint64
		transitions     atomic.Uint64
		transitionFails atomic.Uint64
	}
}

// NewMetricsService builds a private registry with the lifecycle collectors and
// the standard Go runtime collector.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Lifecycle actions by action and outcome.",
		}, []string{"action", "outcome"}),
		render: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "documents",
			Name:      "render_seconds",
			Help:      "Time spent rendering authorizations and registers.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification publish attempts by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dashboard_cache",
			Name:      "lookups_total",
			Help:      "Dashboard cache lookups by result.",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dashboard_cache",
			Name:      "lookup_seconds",
			Help:      "Dashboard cache lookup latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05},
		}),
	}

	m.registry.MustRegister(
		m.httpDuration, m.httpRequests, m.transitions, m.render,
		m.deliveries, m.cacheLookups, m.cacheLatency,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest implements middleware.RequestObserver.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation counts one dashboard cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.totals.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.totals.cacheMisses.Add(1)
}

// RecordTransition counts a lifecycle action. outcome is OutcomeCommitted or the error code.
func (m *MetricsService) RecordTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
	m.totals.transitions.Add(1)
	if outcome != OutcomeCommitted {
		m.totals.transitionFails.Add(1)
	}
}

// ObserveRender records the time spent producing one document of the given kind.
func (m *MetricsService) ObserveRender(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.render.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordDelivery counts a notification publish attempt.
func (m *MetricsService) RecordDelivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.deliveries.WithLabelValues("delivered").Inc()
		return
	}
	m.deliveries.WithLabelValues("failed").Inc()
}

// Snapshot summarises the running totals for GET /dashboard/system.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits, misses := m.totals.cacheHits.Load(), m.totals.cacheMisses.Load()
	requests := m.totals.requests.Load()

	snapshot := models.SystemMetrics{
		CacheHits:          hits,
		CacheMisses:        misses,
		RequestsTotal:      requests,
		TransitionsTotal:   m.totals.transitions.Load(),
		TransitionFailures: m.totals.transitionFails.Load(),
		Goroutines:         runtime.NumGoroutine(),
		GeneratedAt:        time.Now().UTC(),
	}
	if lookups := hits + misses; lookups > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(lookups)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(m.totals.requestNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return snapshot
}
