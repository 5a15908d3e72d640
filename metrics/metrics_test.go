package metrics

import (
	"testing"
	"time"
)

func TestMetricsHappyPath(t *testing.T) {
	m := NewMetrics()

	m.RecordItemYielded()
	m.RecordItemYielded()
	m.RecordBatchDispatched()
	m.RecordThrottleEvent()
	m.RecordUnprocessedRetry(3)
	m.RecordSegmentCompleted()
	m.RecordError()

	time.Sleep(100 * time.Millisecond)

	report := m.GenerateReport()

	if report.ItemsYielded != 2 {
		t.Errorf("expected 2 items yielded, got %d", report.ItemsYielded)
	}
	if report.BatchesDispatched != 1 {
		t.Errorf("expected 1 batch dispatched, got %d", report.BatchesDispatched)
	}
	if report.ThrottleEvents != 1 {
		t.Errorf("expected 1 throttle event, got %d", report.ThrottleEvents)
	}
	if report.UnprocessedRetries != 3 {
		t.Errorf("expected 3 unprocessed retries, got %d", report.UnprocessedRetries)
	}
	if report.SegmentsCompleted != 1 {
		t.Errorf("expected 1 segment completed, got %d", report.SegmentsCompleted)
	}
	if report.Errors != 1 {
		t.Errorf("expected 1 error, got %d", report.Errors)
	}
	if report.Duration < 100*time.Millisecond {
		t.Errorf("expected duration >= 100ms, got %v", report.Duration)
	}
	if report.Throughput <= 0 {
		t.Errorf("expected positive throughput, got %f", report.Throughput)
	}

	str := report.String()
	if str == "" {
		t.Error("expected non-empty string representation")
	}
}
