package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the admission workflows.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheLookups      *prometheus.CounterVec
	jobTicks          *prometheus.HistogramVec
	seatOutcomes      *prometheus.CounterVec
	sagaEvents        *prometheus.CounterVec
	formTransitions   *prometheus.CounterVec
	termTransitions   *prometheus.CounterVec
	upstreamFallbacks *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	jobTicks := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admission_job_tick_seconds",
		Help:    "Duration of periodic admission job ticks",
		Buckets: prometheus.DefBuckets,
	}, []string{"job", "outcome"})

	seatOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_seat_outcomes_total",
		Help: "Per-class seat reservation outcomes",
	}, []string{"outcome"})

	sagaEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_saga_events_total",
		Help: "Payment events handled by the enrollment saga",
	}, []string{"event", "outcome"})

	formTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_form_transitions_total",
		Help: "Admission form status transitions",
	}, []string{"to"})

	termTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_term_transitions_total",
		Help: "Admission term and term item status transitions",
	}, []string{"kind", "to"})

	upstreamFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_lookup_fallbacks_total",
		Help: "Directory lookups that degraded to a placeholder identity",
	}, []string{"kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, jobTicks,
		seatOutcomes, sagaEvents, formTransitions, termTransitions, upstreamFallbacks, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheLookups:      cacheLookups,
		jobTicks:          jobTicks,
		seatOutcomes:      seatOutcomes,
		sagaEvents:        sagaEvents,
		formTransitions:   formTransitions,
		termTransitions:   termTransitions,
		upstreamFallbacks: upstreamFallbacks,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveJobTick implements jobs.TickObserver.
func (m *MetricsService) ObserveJobTick(job string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobTicks.WithLabelValues(job, outcome).Observe(duration.Seconds())
}

// RecordSeatOutcome counts a per-class reservation result (reserved, full, missing, term_full).
func (m *MetricsService) RecordSeatOutcome(outcome string) {
	if m == nil {
		return
	}
	m.seatOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSagaEvent counts a handled saga event and its outcome.
func (m *MetricsService) RecordSagaEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.sagaEvents.WithLabelValues(event, outcome).Inc()
}

// RecordFormTransition counts admission form status changes.
func (m *MetricsService) RecordFormTransition(to string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.formTransitions.WithLabelValues(to).Add(float64(n))
}

// RecordTermTransition counts a term or term item status change.
func (m *MetricsService) RecordTermTransition(kind, to string) {
	if m == nil {
		return
	}
	m.termTransitions.WithLabelValues(kind, to).Inc()
}

// RecordUpstreamFallback counts a directory lookup that degraded to the placeholder identity.
func (m *MetricsService) RecordUpstreamFallback(kind string) {
	if m == nil {
		return
	}
	m.upstreamFallbacks.WithLabelValues(kind).Inc()
}
