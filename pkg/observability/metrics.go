package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PermissionChecks         *prometheus.CounterVec
	StaleSnapshotResolutions prometheus.Counter
	PermissionVersionBumps   prometheus.Counter

	// Session metrics
	SessionsIssued     prometheus.Counter
	SessionValidations *prometheus.CounterVec
	SessionsRevoked    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_permission_checks_total",
				Help: "Permission check outcomes (granted, denied, auth_required, error)",
			},
			[]string{"outcome"},
		),
		StaleSnapshotResolutions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_stale_snapshot_resolutions_total",
				Help: "Permission snapshots re-resolved after a version mismatch",
			},
		),
		PermissionVersionBumps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_permission_version_bumps_total",
				Help: "Permission version bumps caused by role mutations",
			},
		),
		SessionsIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_sessions_issued_total",
				Help: "Sessions issued at sign-in",
			},
		),
		SessionValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_session_validations_total",
				Help: "Session validation outcomes (valid, expired, tenant_mismatch, missing)",
			},
			[]string{"outcome"},
		),
		SessionsRevoked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_sessions_revoked_total",
				Help: "Sessions revoked at sign-out",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecks,
		m.StaleSnapshotResolutions,
		m.PermissionVersionBumps,
		m.SessionsIssued,
		m.SessionValidations,
		m.SessionsRevoked,
	)

	return m
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
