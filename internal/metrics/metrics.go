// Package metrics provides Prometheus metrics for cliodb
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for cliodb
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Transaction metrics
	TxTotal         *prometheus.CounterVec
	TxDuration      prometheus.Histogram
	TxItemsTotal    *prometheus.CounterVec
	NewEntitiesTotal prometheus.Counter

	// Query metrics
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    prometheus.Histogram
	QueryResultsRows prometheus.Histogram

	// Index/rebuild metrics
	MemIndexSize      prometheus.Gauge
	RebuildsTotal     *prometheus.CounterVec
	RebuildDuration   prometheus.Histogram
	Throttled         prometheus.Gauge

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliodb_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliodb_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliodb_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.TxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliodb_transactions_total",
			Help: "Total number of submitted transactions, by outcome",
		},
		[]string{"status"},
	)

	m.TxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliodb_transaction_duration_seconds",
			Help:    "Duration of transaction processing in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.TxItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliodb_tx_items_total",
			Help: "Total number of transaction items processed, by kind",
		},
		[]string{"kind"},
	)

	m.NewEntitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cliodb_new_entities_total",
			Help: "Total number of entities minted by new-entity tx items",
		},
	)

	m.QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliodb_queries_total",
			Help: "Total number of queries executed, by outcome",
		},
		[]string{"status"},
	)

	m.QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliodb_query_duration_seconds",
			Help:    "Duration of query execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.QueryResultsRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliodb_query_result_rows",
			Help:    "Number of rows returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	m.MemIndexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliodb_mem_index_size",
			Help: "Current size of the in-memory overlay index",
		},
	)

	m.RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliodb_index_rebuilds_total",
			Help: "Total number of background index rebuilds, by outcome",
		},
		[]string{"status"},
	)

	m.RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliodb_index_rebuild_duration_seconds",
			Help:    "Duration of background index rebuilds in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
	)

	m.Throttled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliodb_write_throttled",
			Help: "1 when the transactor is throttling writes for a lagging rebuild, else 0",
		},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliodb_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTx records a completed transaction and its items.
func (m *Metrics) RecordTx(success bool, newEntities int, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.TxTotal.WithLabelValues(status).Inc()
	m.TxDuration.Observe(duration.Seconds())
	if newEntities > 0 {
		m.NewEntitiesTotal.Add(float64(newEntities))
	}
}

// RecordQuery records a completed query.
func (m *Metrics) RecordQuery(success bool, rows int, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(duration.Seconds())
	if success {
		m.QueryResultsRows.Observe(float64(rows))
	}
}

// RecordRebuild records the outcome of a background index rebuild.
func (m *Metrics) RecordRebuild(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.RebuildsTotal.WithLabelValues(status).Inc()
	m.RebuildDuration.Observe(duration.Seconds())
}

// SetThrottled updates the write-throttle gauge.
func (m *Metrics) SetThrottled(throttled bool) {
	if throttled {
		m.Throttled.Set(1)
		return
	}
	m.Throttled.Set(0)
}

// SetMemIndexSize updates the in-memory overlay size gauge.
func (m *Metrics) SetMemIndexSize(size int) {
	m.MemIndexSize.Set(float64(size))
}
