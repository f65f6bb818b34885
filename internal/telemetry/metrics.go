// Package telemetry provides the reader's operator-facing observability
// surface: Prometheus counters for ingestion throughput, and an optional
// OTLP span exporter for mirroring reconstructed spans to an external
// collector. Neither is the excluded end-user viewer protocol — they
// instrument the ingester itself, the way itsddvn-goclaw's tracing
// collector instruments the gateway it runs inside.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics implements reader.Metrics using Prometheus collectors.
type Metrics struct {
	rowsProcessed   prometheus.Counter
	batchesApplied  prometheus.Counter
	resets          prometheus.Counter
	malformedFrames prometheus.Counter
	batchSize       prometheus.Histogram
}

// NewMetrics registers the reader's collectors against reg and returns the
// handle used to record activity.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracereader",
			Name:      "rows_processed_total",
			Help:      "Total decoded trace records applied to the span store.",
		}),
		batchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracereader",
			Name:      "batches_applied_total",
			Help:      "Total write-handle holds used to apply a batch of records.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracereader",
			Name:      "resets_total",
			Help:      "Total times the span store was reset (truncation, replace, or persistent malformed framing).",
		}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracereader",
			Name:      "malformed_frames_total",
			Help:      "Total malformed frames encountered by the decoder.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracereader",
			Name:      "batch_size_rows",
			Help:      "Number of records applied per write-handle hold.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
	reg.MustRegister(m.rowsProcessed, m.batchesApplied, m.resets, m.malformedFrames, m.batchSize)
	return m
}

// RecordBatch records one write-handle hold covering rows records.
func (m *Metrics) RecordBatch(rows int) {
	m.rowsProcessed.Add(float64(rows))
	m.batchesApplied.Inc()
	m.batchSize.Observe(float64(rows))
}

// RecordReset records a store reset.
func (m *Metrics) RecordReset() {
	m.resets.Inc()
}

// RecordMalformedFrame records one malformed-frame occurrence.
func (m *Metrics) RecordMalformedFrame() {
	m.malformedFrames.Inc()
}
