package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "waterledger_"

	ResultSuccess   = "success"
	ResultDuplicate = "duplicate"
	ResultError     = "error"

	PayoutSent   = "sent"
	PayoutFailed = "failed"
)

var (
	registerOnce sync.Once

	ingestResults *prometheus.CounterVec

	settlementOps *prometheus.CounterVec

	payoutTransfers *prometheus.CounterVec
	payoutLatency   prometheus.Histogram

	anchorBuilds  *prometheus.CounterVec
	anchorLatency prometheus.Histogram
	anchorLeaves  prometheus.Histogram

	reportExports *prometheus.CounterVec
)

// Init registers metrics once; subsequent calls are no-ops.
func Init() {
	registerOnce.Do(func() {
		ingestResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_events_total",
				Help: "Ingested consensus events by result",
			},
			[]string{"result"},
		)
		settlementOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_operations_total",
				Help: "Settlement lifecycle operations by op and result",
			},
			[]string{"op", "result"},
		)
		payoutTransfers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payout_transfers_total",
				Help: "Payout transfer attempts by terminal status",
			},
			[]string{"status"},
		)
		payoutLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payout_transfer_latency_seconds",
				Help:    "Payout transfer latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		anchorBuilds = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anchor_builds_total",
				Help: "Anchor builds by result",
			},
			[]string{"result"},
		)
		anchorLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "anchor_build_latency_seconds",
				Help:    "Anchor build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		anchorLeaves = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "anchor_leaf_count",
				Help:    "Leaves per anchor batch",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		)
		reportExports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_exports_total",
				Help: "Audit report exports by format",
			},
			[]string{"format"},
		)

		prometheus.MustRegister(
			ingestResults,
			settlementOps,
			payoutTransfers,
			payoutLatency,
			anchorBuilds,
			anchorLatency,
			anchorLeaves,
			reportExports,
		)
	})
}

// ObserveIngest counts one ingest attempt.
func ObserveIngest(result string) {
	if ingestResults != nil {
		ingestResults.WithLabelValues(result).Inc()
	}
}

// ObserveSettlementOp counts one settlement lifecycle operation.
func ObserveSettlementOp(op, result string) {
	if settlementOps != nil {
		settlementOps.WithLabelValues(op, result).Inc()
	}
}

// ObservePayoutTransfer counts one payout attempt and its latency.
func ObservePayoutTransfer(status string, elapsed time.Duration) {
	if payoutTransfers != nil {
		payoutTransfers.WithLabelValues(status).Inc()
	}
	if payoutLatency != nil {
		payoutLatency.Observe(elapsed.Seconds())
	}
}

// ObserveAnchorBuild counts one anchor build.
func ObserveAnchorBuild(result string, leafCount int, elapsed time.Duration) {
	if anchorBuilds != nil {
		anchorBuilds.WithLabelValues(result).Inc()
	}
	if anchorLatency != nil {
		anchorLatency.Observe(elapsed.Seconds())
	}
	if anchorLeaves != nil && leafCount > 0 {
		anchorLeaves.Observe(float64(leafCount))
	}
}

// ObserveReportExport counts one report export.
func ObserveReportExport(format string) {
	if reportExports != nil {
		reportExports.WithLabelValues(format).Inc()
	}
}
