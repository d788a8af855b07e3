package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Stage label values.
const (
	StageConnect  = "connect"
	StageMetadata = "metadata"
	StageAssign   = "assign"
	StagePoll     = "poll"
)

// FetchMetrics holds metrics related to a fetch.
type FetchMetrics struct {
	// LatencyHistogram tracks end-to-end fetch latency.
	// Labels: status (success, failure)
	LatencyHistogram *prometheus.HistogramVec

	// StageLatencyHistogram tracks time spent in each protocol stage.
	// Labels: stage (connect, metadata, assign, poll)
	StageLatencyHistogram *prometheus.HistogramVec

	// ResultsTotal counts fetch outcomes.
	// Labels: result (success or the failure kind)
	ResultsTotal *prometheus.CounterVec

	// PayloadBytes tracks the size of fetched payloads.
	PayloadBytes prometheus.Histogram
}

// DefaultFetchLatencyBuckets are latency buckets for a fetch. The poll blocks
// until a record arrives, so the tail reaches further than a broker-side fetch.
var DefaultFetchLatencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
	30.0,  // 30s
	60.0,  // 1m
}

// DefaultPayloadSizeBuckets cover 64B up to 16MB in powers of four.
var DefaultPayloadSizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

func newFetchMetrics(f promauto.Factory) *FetchMetrics {
	return &FetchMetrics{
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kafka_consumer",
				Subsystem: "fetch",
				Name:      "latency_seconds",
				Help:      "Fetch latency in seconds, broken down by success/failure.",
				Buckets:   DefaultFetchLatencyBuckets,
			},
			[]string{"status"},
		),
		StageLatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kafka_consumer",
				Subsystem: "fetch",
				Name:      "stage_latency_seconds",
				Help:      "Time spent per fetch stage (connect, metadata, assign, poll).",
				Buckets:   DefaultFetchLatencyBuckets,
			},
			[]string{"stage"},
		),
		ResultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafka_consumer",
				Subsystem: "fetch",
				Name:      "results_total",
				Help:      "Total fetches by result (success, connection, assignment, poll, empty_payload, no_event).",
			},
			[]string{"result"},
		),
		PayloadBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kafka_consumer",
				Subsystem: "fetch",
				Name:      "payload_bytes",
				Help:      "Size of fetched payloads in bytes.",
				Buckets:   DefaultPayloadSizeBuckets,
			},
		),
	}
}

// NewFetchMetrics creates and registers fetch metrics.
// Uses promauto for automatic registration with the default registry.
func NewFetchMetrics() *FetchMetrics {
	return newFetchMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewFetchMetricsWithRegistry creates fetch metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewFetchMetricsWithRegistry(reg prometheus.Registerer) *FetchMetrics {
	return newFetchMetrics(promauto.With(reg))
}

// RecordResult records the outcome of one fetch. result is StatusSuccess or
// the failure kind; payloadBytes is ignored on failure.
func (m *FetchMetrics) RecordResult(durationSeconds float64, result string, payloadBytes int) {
	status := StatusFailure
	if result == StatusSuccess {
		status = StatusSuccess
		m.PayloadBytes.Observe(float64(payloadBytes))
	}
	m.LatencyHistogram.WithLabelValues(status).Observe(durationSeconds)
	m.ResultsTotal.WithLabelValues(result).Inc()
}

// RecordStage records how long a protocol stage took.
func (m *FetchMetrics) RecordStage(stage string, durationSeconds float64) {
	m.StageLatencyHistogram.WithLabelValues(stage).Observe(durationSeconds)
}
