package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|disabled).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// VerificationCodes counts issued and redeemed verification codes by type and outcome.
	VerificationCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_verification_codes_total",
			Help: "Verification codes issued and redeemed",
		},
		[]string{"type", "outcome"},
	)

	// RefreshRotations counts refresh token rotations by result (success|rejected).
	RefreshRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_refresh_rotations_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	// ActiveSessions is the number of unrevoked, unexpired refresh tokens at the last recount.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// EmailDeliveries counts outbound emails by transport and result.
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_email_deliveries_total",
			Help: "Outbound verification emails by transport and result",
		},
		[]string{"transport", "result"},
	)

	// RoleChecks counts role authorisation decisions by result (allowed|denied).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_role_checks_total",
			Help: "Role authorisation decisions",
		},
		[]string{"result"},
	)

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// MaintenanceRuns counts maintenance sweeps by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// MaintenanceRemoved counts rows deleted by maintenance sweeps.
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_maintenance_removed_total",
			Help: "Rows removed by maintenance jobs",
		},
		[]string{"job"},
	)

	// MaintenanceDuration measures maintenance job latency.
	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_maintenance_duration_seconds",
			Help:    "Maintenance job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
