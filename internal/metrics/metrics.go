package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsObserved tracks transactions seen by the monitor, per state
	TransactionsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchasekit_transactions_observed_total",
			Help: "Total number of transactions observed by the monitor",
		},
		[]string{"state"},
	)

	// HandlerErrors tracks handler callbacks that returned an error or panicked
	HandlerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_handler_errors_total",
			Help: "Total number of failed handler dispatches",
		},
	)

	// RecoverySweeps tracks completed recovery sweeps
	RecoverySweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_recovery_sweeps_total",
			Help: "Total number of completed recovery sweeps",
		},
	)

	// SweepDuration tracks how long a full recovery sweep takes
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purchasekit_recovery_sweep_duration_seconds",
			Help:    "Duration of recovery sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TransactionsRecovered tracks transactions driven to a finished state
	TransactionsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_transactions_recovered_total",
			Help: "Total number of transactions recovered to a finished state",
		},
	)

	// TransactionsFailed tracks transactions that ended a sweep unrecovered
	TransactionsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_transactions_failed_total",
			Help: "Total number of transactions counted failed by recovery",
		},
	)

	// StalledTransactionAge reports the age of the oldest in-flight transaction
	StalledTransactionAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "purchasekit_stalled_transaction_age_seconds",
			Help: "Age of the oldest purchasing/deferred transaction still pending",
		},
	)

	// FinishCalls tracks finish acknowledgements per result
	FinishCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchasekit_finish_calls_total",
			Help: "Total number of finishTransaction calls",
		},
		[]string{"result"},
	)

	// RetryAttempts tracks attempts recorded in the retry ledger
	RetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_retry_attempts_total",
			Help: "Total number of recorded retry attempts",
		},
	)

	// RetryExhausted tracks operations that burned their full retry budget
	RetryExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchasekit_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retries",
		},
	)

	// OrderTransitions tracks accepted order status transitions
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchasekit_order_transitions_total",
			Help: "Total number of accepted order status transitions",
		},
		[]string{"to"},
	)

	// DBConnectionPoolUsage reports connection pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "purchasekit_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
