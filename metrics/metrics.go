// Package metrics implements the counters and report generation carried
// over from the teacher's restore tooling, generalized to the batch engine
// and paginator family's vocabulary: items yielded, batches dispatched,
// throttle events, unprocessed-element retries, and parallel-scan segments
// completed.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters for one run of a batch or paginator pipeline.
type Metrics struct {
	mu sync.RWMutex

	itemsYielded       int64
	batchesDispatched  int64
	throttleEvents     int64
	unprocessedRetries int64
	segmentsCompleted  int64
	errors             int64

	processingTime time.Duration
	startTime      time.Time
}

// NewMetrics starts a fresh counter set, timestamped at construction.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordItemYielded increments the count of items yielded by a batch
// engine or paginator.
func (m *Metrics) RecordItemYielded() {
	atomic.AddInt64(&m.itemsYielded, 1)
}

// RecordBatchDispatched increments the count of BatchGetItem/
// BatchWriteItem requests issued.
func (m *Metrics) RecordBatchDispatched() {
	atomic.AddInt64(&m.batchesDispatched, 1)
}

// RecordThrottleEvent increments the count of tables observed entering a
// throttled backoff state.
func (m *Metrics) RecordThrottleEvent() {
	atomic.AddInt64(&m.throttleEvents, 1)
}

// RecordUnprocessedRetry increments the count of elements re-sent after
// coming back in UnprocessedKeys/UnprocessedItems.
func (m *Metrics) RecordUnprocessedRetry(n int) {
	atomic.AddInt64(&m.unprocessedRetries, int64(n))
}

// RecordSegmentCompleted increments the count of parallel-scan segments
// that reached exhaustion.
func (m *Metrics) RecordSegmentCompleted() {
	atomic.AddInt64(&m.segmentsCompleted, 1)
}

// RecordError increments the errors counter.
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

// RecordProcessingTime records wall-clock time spent in a processing step.
func (m *Metrics) RecordProcessingTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processingTime += d
}

// Report is the final, JSON-serializable summary of one run.
type Report struct {
	StartTime          time.Time     `json:"startTime"`
	EndTime            time.Time     `json:"endTime"`
	ItemsYielded       int64         `json:"itemsYielded"`
	BatchesDispatched  int64         `json:"batchesDispatched"`
	ThrottleEvents     int64         `json:"throttleEvents"`
	UnprocessedRetries int64         `json:"unprocessedRetries"`
	SegmentsCompleted  int64         `json:"segmentsCompleted"`
	Errors             int64         `json:"errors"`
	Duration           time.Duration `json:"duration"`
	Throughput         float64       `json:"throughput"`
}

// GenerateReport snapshots every counter into a Report, computing
// throughput as items yielded per second of wall-clock duration.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	var throughput float64
	if duration > 0 {
		throughput = float64(atomic.LoadInt64(&m.itemsYielded)) / duration.Seconds()
	}

	return Report{
		StartTime:          m.startTime,
		EndTime:            endTime,
		ItemsYielded:       atomic.LoadInt64(&m.itemsYielded),
		BatchesDispatched:  atomic.LoadInt64(&m.batchesDispatched),
		ThrottleEvents:     atomic.LoadInt64(&m.throttleEvents),
		UnprocessedRetries: atomic.LoadInt64(&m.unprocessedRetries),
		SegmentsCompleted:  atomic.LoadInt64(&m.segmentsCompleted),
		Errors:             atomic.LoadInt64(&m.errors),
		Duration:           duration,
		Throughput:         throughput,
	}
}

// MarshalJSON renders Duration as a string, matching the teacher's report
// shape for stdout and S3 output.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String renders a human-readable console summary.
func (r Report) String() string {
	return fmt.Sprintf(
		"Run completed in %s\n"+
			"Items yielded: %d\n"+
			"Batches dispatched: %d\n"+
			"Throttle events: %d\n"+
			"Unprocessed retries: %d\n"+
			"Segments completed: %d\n"+
			"Errors: %d\n"+
			"Throughput: %.2f items/sec",
		r.Duration,
		r.ItemsYielded,
		r.BatchesDispatched,
		r.ThrottleEvents,
		r.UnprocessedRetries,
		r.SegmentsCompleted,
		r.Errors,
		r.Throughput,
	)
}
