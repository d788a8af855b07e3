package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestObjectStoreMetrics_NewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	if m.LatencyHistogram == nil {
		t.Error("LatencyHistogram should not be nil")
	}
	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}
	if m.BytesWritten == nil {
		t.Error("BytesWritten should not be nil")
	}

	// Vec types are only gathered once they have observations.
	m.RecordPut(0.01, true, 100)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(mfs) != 3 {
		t.Errorf("Expected 3 metric families, got %d", len(mfs))
	}
}

func TestObjectStoreMetrics_RecordPut(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.1, true, 1024)
	m.RecordPut(0.2, false, 512)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	latencyMF := findMetricFamily(mfs, "kafka_consumer_objectstore_operation_latency_seconds")
	if latencyMF == nil {
		t.Fatal("kafka_consumer_objectstore_operation_latency_seconds not found")
	}
	if len(latencyMF.Metric) != 2 {
		t.Errorf("Expected 2 latency metrics (success/failure), got %d", len(latencyMF.Metric))
	}

	requestsMF := findMetricFamily(mfs, "kafka_consumer_objectstore_operations_total")
	if requestsMF == nil {
		t.Fatal("kafka_consumer_objectstore_operations_total not found")
	}
	successCount := getCounterValue(requestsMF, map[string]string{"operation": OpObjPut, "status": StatusSuccess})
	failureCount := getCounterValue(requestsMF, map[string]string{"operation": OpObjPut, "status": StatusFailure})
	if successCount != 1 {
		t.Errorf("Expected 1 success put, got %f", successCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure put, got %f", failureCount)
	}

	// Failed puts do not count bytes.
	bytesMF := findMetricFamily(mfs, "kafka_consumer_objectstore_bytes_written_total")
	if bytesMF == nil {
		t.Fatal("kafka_consumer_objectstore_bytes_written_total not found")
	}
	if got := getCounterValue(bytesMF, map[string]string{}); got != 1024 {
		t.Errorf("Expected 1024 bytes written, got %f", got)
	}
}

func TestObjectStoreMetrics_ZeroBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.01, true, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	bytesMF := findMetricFamily(mfs, "kafka_consumer_objectstore_bytes_written_total")
	if bytesMF == nil {
		t.Fatal("kafka_consumer_objectstore_bytes_written_total not found")
	}
	if got := getCounterValue(bytesMF, map[string]string{}); got != 0 {
		t.Errorf("Expected 0 bytes written, got %f", got)
	}
}

// Helper to find a metric family by name
func findMetricFamily(mfs []*io_prometheus_client.MetricFamily, name string) *io_prometheus_client.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// Helper to get counter value with specific labels
func getCounterValue(mf *io_prometheus_client.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.Metric {
		if matchLabels(metric.Label, labels) {
			if metric.Counter != nil {
				return metric.Counter.GetValue()
			}
		}
	}
	return 0
}

// Helper to check if metric labels match expected labels
func matchLabels(metricLabels []*io_prometheus_client.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}
	for _, lp := range metricLabels {
		if expected[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
