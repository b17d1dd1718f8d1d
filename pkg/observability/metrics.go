package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Saga metrics
	SagaStepsTotal         *prometheus.CounterVec
	SagaCompensationsTotal *prometheus.CounterVec

	// Identity provider metrics
	IdentityCallDuration       *prometheus.HistogramVec
	PasswordResetFailuresTotal prometheus.Counter
	LoginAttemptsTotal         *prometheus.CounterVec

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuelops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_authz_decisions_total",
				Help: "Authorization decisions by entity, action, result and reason",
			},
			[]string{"entity", "action", "result", "reason"},
		),

		SagaStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_saga_steps_total",
				Help: "Provisioning saga steps by step and result",
			},
			[]string{"step", "result"},
		),
		SagaCompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_saga_compensations_total",
				Help: "Compensating identity account deletions by result",
			},
			[]string{"result"},
		),

		IdentityCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuelops_identity_call_duration_seconds",
				Help:    "Identity provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
		PasswordResetFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fuelops_password_reset_failures_total",
				Help: "Best-effort password reset emails that failed to send",
			},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelops_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuelops_db_connections_active",
			Help: "Number of in-use database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuelops_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBConnectionsWait: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuelops_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.SagaStepsTotal,
		m.SagaCompensationsTotal,
		m.IdentityCallDuration,
		m.PasswordResetFailuresTotal,
		m.LoginAttemptsTotal,
		m.RateLimitedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(entity rbac.Entity, action rbac.Action, decision rbac.Decision) {
	result := "deny"
	if decision.Allowed {
		result = "allow"
	}
	reason := string(decision.Reason)
	if reason == "" {
		reason = "none"
	}
	m.AuthzDecisionsTotal.WithLabelValues(string(entity), string(action), result, reason).Inc()
}

// ObserveIdentityCall records the latency of an identity provider call
func (m *Metrics) ObserveIdentityCall(operation string, err error, duration time.Duration) {
	m.IdentityCallDuration.WithLabelValues(operation, resultLabel(err == nil)).Observe(duration.Seconds())
}

// RecordSagaStep counts a provisioning step outcome
func (m *Metrics) RecordSagaStep(step string, ok bool) {
	m.SagaStepsTotal.WithLabelValues(step, resultLabel(ok)).Inc()
}

// RecordCompensation counts a compensating delete outcome
func (m *Metrics) RecordCompensation(ok bool) {
	m.SagaCompensationsTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordPasswordResetFailure counts a reset email that could not be sent
func (m *Metrics) RecordPasswordResetFailure() {
	m.PasswordResetFailuresTotal.Inc()
}

// RecordLogin counts a login attempt
func (m *Metrics) RecordLogin(result string) {
	m.LoginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a throttled request
func (m *Metrics) RecordRateLimited(limiter string) {
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// ObserveHTTPRequest records a served request under its route template
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// Handler serves the registry in the Prometheus exposition format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
