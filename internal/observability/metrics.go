// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Vesting metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	TokenVolume      *prometheus.CounterVec

	// Solvency metrics
	PoolBalance       *prometheus.GaugeVec
	OutstandingLocked *prometheus.GaugeVec

	// Event stream metrics
	EventsPublished *prometheus.CounterVec
	WSClients       prometheus.Gauge

	// API metrics
	HTTPRequests *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulOperation prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "presale_vesting"
	}

	return &Metrics{
		// Vesting metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and result code",
		}, []string{"op", "status"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		TokenVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "token_volume_base_units_total",
			Help:      "Base units moved by ledger operations",
		}, []string{"op"}),

		// Solvency metrics
		PoolBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solvency",
			Name:      "pool_balance_base_units",
			Help:      "Custody account balance by presale and pool",
		}, []string{"presale", "pool"}),
		OutstandingLocked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solvency",
			Name:      "outstanding_locked_base_units",
			Help:      "Sum of unclaimed locked balances by presale",
		}, []string{"presale"}),

		// Event stream metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of ledger events published by sink and status",
		}, []string{"sink", "status"}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ws_clients",
			Help:      "Number of connected websocket subscribers",
		}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

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
		LastSuccessfulOperation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_operation_timestamp",
			Help:      "Unix timestamp of last committed ledger operation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and latency of a ledger operation.
// status is "ok" or an error code.
func RecordOperation(op, status string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(op, status).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(op).Observe(seconds)
}

// RecordTokenVolume adds amount base units to the volume counter of op.
func RecordTokenVolume(op string, amount uint64) {
	DefaultMetrics.TokenVolume.WithLabelValues(op).Add(float64(amount))
}

// UpdateSolvency sets the solvency gauges of a presale.
func UpdateSolvency(presale string, paymentBalance, saleBalance, locked uint64) {
	DefaultMetrics.PoolBalance.WithLabelValues(presale, "payment").Set(float64(paymentBalance))
	DefaultMetrics.PoolBalance.WithLabelValues(presale, "sale").Set(float64(saleBalance))
	DefaultMetrics.OutstandingLocked.WithLabelValues(presale).Set(float64(locked))
}

// RecordEventPublished records a publish attempt to sink.
func RecordEventPublished(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink, status).Inc()
}

// SetWSClients updates the websocket subscriber gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkOperationSuccess stamps the last successful operation gauge.
func MarkOperationSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulOperation.Set(float64(unix))
}
