package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordBatchUpdatesCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordBatch(10)
	m.RecordBatch(5)

	if got := counterValue(t, m.rowsProcessed); got != 15 {
		t.Fatalf("expected 15 rows processed, got %v", got)
	}
	if got := counterValue(t, m.batchesApplied); got != 2 {
		t.Fatalf("expected 2 batches applied, got %v", got)
	}
}

func TestRecordResetAndMalformedFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordReset()
	m.RecordReset()
	m.RecordMalformedFrame()

	if got := counterValue(t, m.resets); got != 2 {
		t.Fatalf("expected 2 resets, got %v", got)
	}
	if got := counterValue(t, m.malformedFrames); got != 1 {
		t.Fatalf("expected 1 malformed frame, got %v", got)
	}
}

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 registered collector families, got %d", len(families))
	}
}
