// Package metrics exposes prometheus collectors for the receipt pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ReceiptsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receipts_submitted_total",
			Help: "Total number of receipts accepted for processing",
		},
	)

	ReceiptJobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_jobs_processed_total",
			Help: "Total number of receipt jobs processed by terminal outcome",
		},
		[]string{"outcome"},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_extraction_duration_seconds",
			Help:    "Duration of external document analysis calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "receipt_queue_depth",
			Help: "Jobs currently waiting on the process-receipt queue",
		},
	)

	UploadURLsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_urls_issued_total",
			Help: "Total number of presigned upload URLs issued",
		},
	)
)

// Register adds all pipeline collectors to the default registry.
func Register() {
	prometheus.MustRegister(
		ReceiptsSubmittedTotal,
		ReceiptJobsProcessedTotal,
		ExtractionDuration,
		QueueDepth,
		UploadURLsIssuedTotal,
	)
}
