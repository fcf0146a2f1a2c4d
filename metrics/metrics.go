// Package metrics exposes Prometheus counters for reconciliation, the sync
// outbox and statement exports. All helpers are safe to call before Init;
// they do nothing until the collectors are registered.
package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

const (
	metricPrefix = "water_"

	resultSuccess = "success"
	resultError   = "error"
)

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

var (
	registerOnce sync.Once

	reconcileTotal *prometheus.CounterVec
	driftTotal     prometheus.Counter
	driftAmount    prometheus.Histogram

	syncItemsTotal   *prometheus.CounterVec
	syncBatchLatency prometheus.Histogram

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec
)

// SyncCounter reports outbox sizes for the queue gauges.
type SyncCounter interface {
	CountByStatus(ctx context.Context) (map[billing.SyncStatus]int, error)
}

// Init registers the collectors. queue may be nil, in which case the
// outbox gauges are not registered.
func Init(queue SyncCounter, logger *log.Logger) {
	registerOnce.Do(func() {
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_reconcile_total",
				Help: "Total farmer balance reconciliations by result",
			},
			[]string{"result"},
		)
		driftTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_drift_total",
				Help: "Total reconciliations that found drift above rounding noise",
			},
		)
		driftAmount = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "balance_drift_amount",
				Help:    "Absolute drift between stored and recomputed balance",
				Buckets: []float64{0.01, 0.1, 1, 10, 100, 1000, 10000},
			},
		)

		syncItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_items_total",
				Help: "Total outbox delivery attempts by result",
			},
			[]string{"result"},
		)
		syncBatchLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sync_batch_latency_seconds",
				Help:    "Outbox batch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			reconcileTotal,
			driftTotal,
			driftAmount,
			syncItemsTotal,
			syncBatchLatency,
			statementExportTotal,
			statementExportLatency,
		)

		if queue != nil {
			registerQueueMetrics(queue, logger)
		}
	})
}

func registerQueueMetrics(queue SyncCounter, logger *log.Logger) {
	for _, status := range []billing.SyncStatus{billing.SyncPending, billing.SyncFailed} {
		status := status
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sync_" + string(status),
				Help: "Outbox items with status " + string(status),
			},
			func() float64 {
				return queueCount(queue, logger, status)
			},
		))
	}
}

func queueCount(queue SyncCounter, logger *log.Logger, status billing.SyncStatus) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	counts, err := queue.CountByStatus(ctx)
	if err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	return float64(counts[status])
}

// ObserveReconcile counts one reconciliation and, for drift, its size.
func ObserveReconcile(result string, d billing.Drift) {
	if result == "" {
		result = "unknown"
	}
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(result).Inc()
	}
	if result != billing.ReconcileDrift {
		return
	}
	if driftTotal != nil {
		driftTotal.Inc()
	}
	if driftAmount != nil {
		driftAmount.Observe(d.Diff().Abs().InexactFloat64())
	}
}

// Observer adapts the package helpers to billing.Observer.
type Observer struct{}

func (Observer) ObserveReconcile(result string, d billing.Drift) { ObserveReconcile(result, d) }

// IncSyncItem counts one outbox delivery attempt.
func IncSyncItem(result string) {
	if result == "" {
		result = "unknown"
	}
	if syncItemsTotal != nil {
		syncItemsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSyncBatch records how long one outbox batch took.
func ObserveSyncBatch(duration time.Duration) {
	if syncBatchLatency != nil {
		syncBatchLatency.Observe(duration.Seconds())
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
