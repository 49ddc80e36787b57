// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec
	TotalPrincipal  prometheus.Gauge
	AccountCount    prometheus.Gauge
	GlobalRate      prometheus.Gauge
	JournalSequence prometheus.Gauge

	// Gateway metrics
	DepositsTotal   prometheus.Counter
	RedeemsTotal    prometheus.Counter
	DepositedAmount prometheus.Counter
	RedeemedAmount  prometheus.Counter

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge

	// Journal metrics
	JournalPending     prometheus.Gauge
	JournalFlushErrors prometheus.Counter

	// Snapshot metrics
	SnapshotsTotal   prometheus.Counter
	SnapshotErrors   prometheus.Counter
	LastSnapshotTime prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default
// registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered on reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "rebase_ledger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of committed ledger operations by type",
		}, []string{"operation"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected ledger operations by type and reason",
		}, []string{"operation", "reason"}),
		TotalPrincipal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_principal",
			Help:      "Sum of all account principals",
		}),
		AccountCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "account_count",
			Help:      "Number of accounts in the ledger",
		}),
		GlobalRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "global_rate",
			Help:      "Current global interest rate in scaled units per second",
		}),
		JournalSequence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "journal_sequence",
			Help:      "Sequence number of the latest committed event",
		}),

		// Gateway metrics
		DepositsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "deposits_total",
			Help:      "Total number of completed deposits",
		}),
		RedeemsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "redeems_total",
			Help:      "Total number of completed redemptions",
		}),
		DepositedAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "deposited_amount_total",
			Help:      "Total amount of underlying asset deposited",
		}),
		RedeemedAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "redeemed_amount_total",
			Help:      "Total amount of underlying asset redeemed",
		}),

		// HTTP metrics
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by path and status",
		}, []string{"path", "method", "status"}),

		// Feed metrics
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of connected WebSocket subscribers",
		}),

		// Journal metrics
		JournalPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "pending_events",
			Help:      "Number of buffered events not yet persisted",
		}),
		JournalFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "flush_errors_total",
			Help:      "Total number of failed journal flushes",
		}),

		// Snapshot metrics
		SnapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "snapshots_total",
			Help:      "Total number of completed snapshots",
		}),
		SnapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "errors_total",
			Help:      "Total number of failed snapshots",
		}),
		LastSnapshotTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_snapshot_timestamp",
			Help:      "Unix timestamp of last successful snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
