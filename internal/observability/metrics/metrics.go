package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdsphere_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "herdsphere_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	farmLifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdsphere_farm_lifecycle_operations_total",
		Help: "Count of farm lifecycle operations by kind and result",
	}, []string{"operation", "result"})

	joinCodeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "herdsphere_join_code_attempts",
		Help:    "Candidate join codes drawn per unique-code generation",
		Buckets: []float64{1, 2, 3, 5, 10, 20},
	})

	cascadeBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herdsphere_cascade_batches_total",
		Help: "Count of bounded delete batches executed by the cascade engine",
	})

	cascadeDocsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdsphere_cascade_documents_purged_total",
		Help: "Documents removed by cascading deletion, by subtree",
	}, []string{"subtree"})

	stockDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdsphere_stock_deltas_total",
		Help: "Count of ledger delta applications by result",
	}, []string{"result"})

	activeFarms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herdsphere_active_farms",
		Help: "Number of live farm tenants",
	})

	stockFeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herdsphere_stock_feed_subscribers",
		Help: "Open websocket subscriptions on the live stock feed",
	})

	reaperRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdsphere_reaper_repairs_total",
		Help: "Reconciliations performed by the reaper worker, by kind",
	}, []string{"kind"})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLifecycle counts a lifecycle operation outcome.
func ObserveLifecycle(operation, result string) {
	farmLifecycleOps.WithLabelValues(operation, result).Inc()
}

// ObserveJoinCodeAttempts records how many candidates a generation drew.
func ObserveJoinCodeAttempts(n int) {
	joinCodeAttempts.Observe(float64(n))
}

// ObserveCascadeBatch counts one bounded delete batch and its documents.
func ObserveCascadeBatch(subtree string, docs int) {
	cascadeBatches.Inc()
	cascadeDocsPurged.WithLabelValues(subtree).Add(float64(docs))
}

// ObserveStockDelta counts a ledger delta application.
func ObserveStockDelta(result string) {
	stockDeltas.WithLabelValues(result).Inc()
}

// SetActiveFarms sets the live farm gauge.
func SetActiveFarms(n int) {
	activeFarms.Set(float64(n))
}

// IncStockSubscribers and DecStockSubscribers track websocket feed clients.
func IncStockSubscribers() { stockFeedSubscribers.Inc() }
func DecStockSubscribers() { stockFeedSubscribers.Dec() }

// ObserveReaperRepair counts one reconciliation by the reaper.
func ObserveReaperRepair(kind string) {
	reaperRepairs.WithLabelValues(kind).Inc()
}
