// Package metrics exposes Prometheus collectors for the listing service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fotoljay"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	// TransitionsTotal counts committed lifecycle operations by action and resulting status.
	TransitionsTotal *prometheus.CounterVec
	// SideEffectFailuresTotal counts best-effort work that failed after commit.
	SideEffectFailuresTotal *prometheus.CounterVec
	NotificationsTotal      *prometheus.CounterVec
	MaintenanceRunsTotal    *prometheus.CounterVec
	RateLimitedTotal        *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_transitions_total",
			Help:      "Committed listing lifecycle operations.",
		}, []string{"action", "status"}),
		SideEffectFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Post-commit side effects that failed (notification, event, photo cleanup).",
		}, []string{"effect"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications written to user inboxes.",
		}, []string{"type"}),
		MaintenanceRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Background maintenance passes by job and result.",
		}, []string{"job", "result"}),
		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected with 429 by limiter rule.",
		}, []string{"rule"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.TransitionsTotal,
		m.SideEffectFailuresTotal,
		m.NotificationsTotal,
		m.MaintenanceRunsTotal,
		m.RateLimitedTotal,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Transition records a committed lifecycle operation. Safe on a nil receiver.
func (m *Metrics) Transition(action, status string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, status).Inc()
}

// SideEffectFailed records a failed post-commit effect. Safe on a nil receiver.
func (m *Metrics) SideEffectFailed(effect string) {
	if m == nil {
		return
	}
	m.SideEffectFailuresTotal.WithLabelValues(effect).Inc()
}

// NotificationCreated records one inbox write. Safe on a nil receiver.
func (m *Metrics) NotificationCreated(typ string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(typ).Inc()
}

// MaintenanceRun records one background pass. Safe on a nil receiver.
func (m *Metrics) MaintenanceRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MaintenanceRunsTotal.WithLabelValues(job, result).Inc()
}

// RateLimited records a request rejected by a limiter rule. Safe on a nil receiver.
func (m *Metrics) RateLimited(rule string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(rule).Inc()
}

// ObserveRequest records the latency of one HTTP request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
