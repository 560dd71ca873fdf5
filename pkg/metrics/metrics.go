// Package metrics holds the Prometheus collectors exported on /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yield_service"

var (
	// HTTPRequestsTotal counts HTTP requests by route and status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// DatabaseConnectionsGauge tracks the pool by state (open, idle, in_use)
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections",
		Help:      "Database connection pool state",
	}, []string{"state"})

	// SettlementsTotal counts settlement outcomes by trigger
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Investment settlement attempts by trigger and outcome",
	}, []string{"trigger", "outcome"})

	// SettledVolume sums confirmed amounts by origin
	SettledVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settled_volume_usdt",
		Help:      "Confirmed investment volume in USDT",
	}, []string{"origin"})

	// AccrualRunsTotal counts nightly accrual runs by result
	AccrualRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accrual_runs_total",
		Help:      "Daily accrual runs by result",
	}, []string{"result"})

	// AccrualAccountsTotal counts per-account accrual outcomes
	AccrualAccountsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accrual_accounts_total",
		Help:      "Per-account accrual outcomes",
	}, []string{"outcome"})

	// AccrualRunDuration observes batch duration
	AccrualRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "accrual_run_duration_seconds",
		Help:      "Daily accrual batch duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// WithdrawalsTotal counts withdrawal lifecycle events
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawals_total",
		Help:      "Withdrawal requests by kind and status",
	}, []string{"kind", "status"})

	// ExternalCallsTotal counts verifier and gateway calls
	ExternalCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_calls_total",
		Help:      "Outbound calls by dependency and result",
	}, []string{"dependency", "result"})

	// ReconciliationRunsTotal counts reconciler passes by type and state
	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliation_runs_total",
		Help:      "Reconciliation runs by type and state",
	}, []string{"type", "state"})

	// ReconciliationRunsInProgress tracks running reconciler passes
	ReconciliationRunsInProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconciliation_runs_in_progress",
		Help:      "Reconciliation runs currently executing",
	}, []string{"type"})
)

// RecordSettlement records a settlement attempt
func RecordSettlement(trigger, outcome string) {
	SettlementsTotal.WithLabelValues(trigger, outcome).Inc()
}

// RecordSettledVolume adds a confirmed amount
func RecordSettledVolume(origin string, amount float64) {
	SettledVolume.WithLabelValues(origin).Add(amount)
}

// RecordExternalCall records the result of an outbound call
func RecordExternalCall(dependency string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ExternalCallsTotal.WithLabelValues(dependency, result).Inc()
}
