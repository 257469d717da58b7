package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Distribution Metrics
	distributionsTotal      *prometheus.CounterVec
	distributionDuration    *prometheus.HistogramVec
	lamportsDistributed     *prometheus.CounterVec
	holdersPerDistribution  *prometheus.HistogramVec
	idempotentReplaysTotal  *prometheus.CounterVec
	distributionErrorsTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		// Distribution Metrics
		distributionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distributions_total",
				Help: "Total number of distribution attempts by stream and final status",
			},
			[]string{"stream_id", "status"},
		),
		distributionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distribution_duration_seconds",
				Help:    "End-to-end duration of distribution attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stream_id", "status"},
		),
		lamportsDistributed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lamports_distributed_total",
				Help: "Total lamports paid out to holders by stream",
			},
			[]string{"stream_id"},
		),
		holdersPerDistribution: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "holders_per_distribution",
				Help:    "Number of holders paid per distribution",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"stream_id"},
		),
		idempotentReplaysTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idempotent_replays_total",
				Help: "Distribution requests answered from an existing ledger record",
			},
			[]string{"stream_id"},
		),
		distributionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distribution_errors_total",
				Help: "Distribution failures by stream and error kind",
			},
			[]string{"stream_id", "kind"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Distribution metric helpers

// RecordDistribution records a completed distribution attempt.
func (m *Metrics) RecordDistribution(streamID, status string, duration float64) {
	m.distributionsTotal.WithLabelValues(streamID, status).Inc()
	m.distributionDuration.WithLabelValues(streamID, status).Observe(duration)
}

// RecordLamportsDistributed records lamports paid out to holders.
func (m *Metrics) RecordLamportsDistributed(streamID string, lamports int64) {
	m.lamportsDistributed.WithLabelValues(streamID).Add(float64(lamports))
}

// RecordHolderCount records the holder count of a distribution.
func (m *Metrics) RecordHolderCount(streamID string, count int) {
	m.holdersPerDistribution.WithLabelValues(streamID).Observe(float64(count))
}

// RecordIdempotentReplay records a request answered from the ledger.
func (m *Metrics) RecordIdempotentReplay(streamID string) {
	m.idempotentReplaysTotal.WithLabelValues(streamID).Inc()
}

// RecordDistributionError records a distribution failure by kind.
func (m *Metrics) RecordDistributionError(streamID, kind string) {
	m.distributionErrorsTotal.WithLabelValues(streamID, kind).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
