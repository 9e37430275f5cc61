// Package metrics holds the Prometheus collectors shared by the API and the
// worker. All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

type Metrics struct {
	jobsProcessed  *prometheus.CounterVec
	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	notifications  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_analysis_jobs_total",
				Help: "Analysis jobs handled, by outcome (completed, retried, dead)",
			},
			[]string{"outcome"},
		),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_inference_calls_total",
				Help: "Inference backend calls, by backend and outcome (ok, unavailable, error)",
			},
			[]string{"backend", "outcome"},
		),
		backendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "civic_inference_duration_seconds",
				Help:    "Inference backend call latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"backend"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_result_cache_lookups_total",
				Help: "Result cache lookups, by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "civic_analysis_queue_jobs",
				Help: "Jobs in the analysis queue, by state",
			},
			[]string{"state"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_notifications_total",
				Help: "Report-updated notifications, by outcome (sent, failed)",
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civic_http_requests_total",
				Help: "HTTP requests, by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "civic_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.jobsProcessed,
			m.backendCalls,
			m.backendLatency,
			m.cacheLookups,
			m.queueDepth,
			m.notifications,
			m.httpRequests,
			m.httpDuration,
		)
	}
	return m
}

func (m *Metrics) JobHandled(outcome string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BackendCall(backend, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, outcome).Inc()
	if outcome != "unavailable" {
		m.backendLatency.WithLabelValues(backend).Observe(took.Seconds())
	}
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueDepth(s jobs.Stats) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(jobs.StateQueued)).Set(float64(s.Queued))
	m.queueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
	m.queueDepth.WithLabelValues(string(jobs.StateActive)).Set(float64(s.Active))
	m.queueDepth.WithLabelValues(string(jobs.StateDead)).Set(float64(s.Dead))
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
