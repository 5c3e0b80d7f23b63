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
	LedgerAppends      *prometheus.CounterVec
	LedgerLength       prometheus.Gauge
	ActiveReservations prometheus.Gauge

	// Issuance metrics
	DeploymentsTotal  *prometheus.CounterVec
	SupplyDistributed *prometheus.CounterVec

	// Fee metrics
	TradesObserved    *prometheus.CounterVec
	FeesCharged       prometheus.Counter
	FeesSplitProtocol prometheus.Counter
	FeesSplitUser     prometheus.Counter

	// Vault metrics
	VaultDeposits prometheus.Counter
	VaultClaims   prometheus.Counter
	ClaimAmounts  prometheus.Histogram

	// Verification metrics
	VerificationRuns        *prometheus.CounterVec
	VerificationDivergences prometheus.Gauge
	VerificationDuration    prometheus.Histogram

	// Notification metrics
	NotificationSubscribers prometheus.Gauge
	NotificationsSent       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulAppend prometheus.Gauge
	UptimeSeconds        prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mintledger"
	}

	return &Metrics{
		// Ledger metrics
		LedgerAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Total number of ledger entries appended by kind",
		}, []string{"kind"}),
		LedgerLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "length",
			Help:      "Current number of entries in the ledger",
		}),
		ActiveReservations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "active_reservations",
			Help:      "Current number of live ticker reservations",
		}),

		// Issuance metrics
		DeploymentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuance",
			Name:      "deployments_total",
			Help:      "Total number of deployment attempts by status",
		}, []string{"status"}),
		SupplyDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuance",
			Name:      "supply_distributed_total",
			Help:      "Total supply units distributed by bucket",
		}, []string{"bucket"}),

		// Fee metrics
		TradesObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "trades_observed_total",
			Help:      "Total number of trades observed by direction",
		}, []string{"direction"}),
		FeesCharged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "charged_total",
			Help:      "Total fee units charged on observed trades",
		}),
		FeesSplitProtocol: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "split_protocol_total",
			Help:      "Total fee units allocated to the protocol share",
		}),
		FeesSplitUser: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "split_user_total",
			Help:      "Total fee units forwarded to the user share",
		}),

		// Vault metrics
		VaultDeposits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposits_total",
			Help:      "Total number of vault deposits",
		}),
		VaultClaims: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "claims_total",
			Help:      "Total number of vault claims paid",
		}),
		ClaimAmounts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "claim_amount_units",
			Help:      "Amount paid per vault claim",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
		}),

		// Verification metrics
		VerificationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "runs_total",
			Help:      "Total number of snapshot verification runs by status",
		}, []string{"status"}),
		VerificationDivergences: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "divergences",
			Help:      "Number of divergences found by the last verification run",
		}),
		VerificationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "duration_seconds",
			Help:      "Snapshot verification duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Notification metrics
		NotificationSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "subscribers",
			Help:      "Current number of connected notification subscribers",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications broadcast",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulAppend: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_append_timestamp",
			Help:      "Unix timestamp of the last successful ledger append",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAppend increments the ledger append counter for the entry kind.
func RecordAppend(kind string) {
	DefaultMetrics.LedgerAppends.WithLabelValues(kind).Inc()
	DefaultMetrics.NotificationsSent.Inc()
}

// RecordDeployment records a deployment attempt outcome.
func RecordDeployment(status string) {
	DefaultMetrics.DeploymentsTotal.WithLabelValues(status).Inc()
}

// RecordSupplyBucket adds distributed supply units for one bucket.
func RecordSupplyBucket(bucket string, amount uint64) {
	DefaultMetrics.SupplyDistributed.WithLabelValues(bucket).Add(float64(amount))
}

// RecordTrade records an observed trade and its fee accounting.
func RecordTrade(direction string, charged, protocol, user uint64) {
	DefaultMetrics.TradesObserved.WithLabelValues(direction).Inc()
	DefaultMetrics.FeesCharged.Add(float64(charged))
	DefaultMetrics.FeesSplitProtocol.Add(float64(protocol))
	DefaultMetrics.FeesSplitUser.Add(float64(user))
}

// RecordDeposit counts a vault fee deposit.
func RecordDeposit() {
	DefaultMetrics.VaultDeposits.Inc()
}

// RecordClaim records a paid vault claim.
func RecordClaim(amount uint64) {
	DefaultMetrics.VaultClaims.Inc()
	DefaultMetrics.ClaimAmounts.Observe(float64(amount))
}

// RecordVerification records a snapshot verification run.
func RecordVerification(clean bool, divergences int, seconds float64) {
	status := "clean"
	if !clean {
		status = "diverged"
	}
	DefaultMetrics.VerificationRuns.WithLabelValues(status).Inc()
	DefaultMetrics.VerificationDivergences.Set(float64(divergences))
	DefaultMetrics.VerificationDuration.Observe(seconds)
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(database, operation string, seconds float64) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
