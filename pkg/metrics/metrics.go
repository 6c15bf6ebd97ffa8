package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hireloop_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokensIssued counts single-use tokens issued by kind.
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hireloop_tokens_issued_total",
			Help: "Total number of single-use tokens issued",
		},
		[]string{"kind"},
	)

	// TokensConsumed counts single-use token consumptions by kind and result
	// (success|not_found|expired|used).
	TokensConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hireloop_tokens_consumed_total",
			Help: "Total number of single-use token consumption attempts",
		},
		[]string{"kind", "result"},
	)

	// EntitlementChecks counts entitlement decisions by outcome.
	EntitlementChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hireloop_entitlement_checks_total",
			Help: "Total number of entitlement decisions",
		},
		[]string{"decision"},
	)

	// SweeperTransitions counts reconciliation transitions applied by the sweeper.
	SweeperTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hireloop_sweeper_transitions_total",
			Help: "Total number of state transitions applied by the reconciliation sweeper",
		},
		[]string{"transition"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hireloop_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
