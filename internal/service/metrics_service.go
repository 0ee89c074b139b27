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

	"github.com/noah-isme/assignx-api/internal/models"
)

const metricsNamespace = "assignx"

// MetricsService owns the Prometheus registry and keeps running totals for
// the operator summary endpoint. A nil service records nothing.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheRead       prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	sweeps          prometheus.Counter
	autoApproved    prometheus.Counter
	notifications   *prometheus.CounterVec

	totals struct {
		hits, misses, requests, requestNanos atomic.Uint64
		transitions, rejections, autoApproved atomic.Uint64
	}
}

func NewMetricsService() *MetricsService {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help}, labels)
	}
	latency := func(name, help string, buckets []float64) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: metricsNamespace, Name: name, Help: help, Buckets: buckets})
	}
	fast := prometheus.ExponentialBuckets(0.0005, 2, 10)

	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal:  counterVec("http_requests_total", "HTTP requests by route and status", "method", "route", "status"),
		cacheRead:     latency("cache_read_seconds", "Dashboard cache lookup latency", fast),
		cacheWrite:    latency("cache_write_seconds", "Dashboard cache write latency", fast),
		cacheHits:     counter("cache_hits_total", "Dashboard cache hits"),
		cacheMisses:   counter("cache_misses_total", "Dashboard cache misses"),
		transitions:   counterVec("project_transitions_total", "Accepted project actions by action and resulting status", "action", "to"),
		rejections:    counterVec("project_transition_rejections_total", "Rejected project actions by error code", "code"),
		sweeps:        counter("auto_approval_sweeps_total", "Completed auto approval sweeps"),
		autoApproved:  counter("auto_approved_projects_total", "Projects completed by the auto approval timer"),
		notifications: counterVec("project_notifications_total", "Status notification deliveries by outcome", "outcome"),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hit_ratio",
			Help:      "Share of dashboard lookups served from cache",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.requestTotal,
		m.cacheRead, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.transitions, m.rejections, m.sweeps, m.autoApproved, m.notifications,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler serves the registry, or 503 on a nil service.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(d.Nanoseconds()))
}

func (m *MetricsService) RecordCacheOperation(hit bool, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheRead.Observe(d.Seconds())
	if hit {
		m.cacheHits.Inc()
		m.totals.hits.Add(1)
	} else {
		m.cacheMisses.Inc()
		m.totals.misses.Add(1)
	}
	m.cacheHitRatio.Set(ratioOf(m.totals.hits.Load(), m.totals.misses.Load()))
}

func (m *MetricsService) ObserveCacheWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(d.Seconds())
}

func (m *MetricsService) RecordTransition(action, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, to).Inc()
	m.totals.transitions.Add(1)
}

func (m *MetricsService) RecordTransitionRejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
	m.totals.rejections.Add(1)
}

// RecordSweep counts one auto approval pass and the projects it completed.
func (m *MetricsService) RecordSweep(approved int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	if approved > 0 {
		m.autoApproved.Add(float64(approved))
		m.totals.autoApproved.Add(uint64(approved))
	}
}

// RecordNotification counts a delivery outcome: delivered, failed or dropped.
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// Snapshot returns the running totals.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits, misses := m.totals.hits.Load(), m.totals.misses.Load()
	requests := m.totals.requests.Load()
	var avgMs float64
	if requests > 0 {
		avgMs = float64(m.totals.requestNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return models.SystemMetrics{
		CacheHitRatio:            ratioOf(hits, misses),
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgMs,
		TransitionsTotal:         m.totals.transitions.Load(),
		RejectionsTotal:          m.totals.rejections.Load(),
		AutoApprovedTotal:        m.totals.autoApproved.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func ratioOf(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
