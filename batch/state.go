package batch

import (
	"context"
	"math/rand/v2"
	"time"
)

// ReadOptions carries the per-table, read-only options section 4.1 names:
// consistent reads and a projection to apply to every Get element routed to
// that table for the lifetime of the engine.
type ReadOptions struct {
	ConsistentRead           bool
	ProjectionExpression     string
	ExpressionAttributeNames map[string]string
}

// throttleRecord is the backoff state for one table currently waiting out a
// throughput-exceeded response: the elements DynamoDB returned as
// unprocessed, parked until the backoff timer fires.
type throttleRecord struct {
	unprocessed []Element
}

// tableState is the per-table bookkeeping the engine keeps across the
// lifetime of one Iterate call: the table's read options and its current
// backoff factor. backoffFactor increases by one on every throttling event
// and decreases by at most one per successful batch, floored at 0 — the
// forward-progress invariant from section 4.1, so persistent throttling
// still grows the delay geometrically while a table that recovers backs
// off its aggressiveness again.
type tableState struct {
	name          string
	opts          ReadOptions
	backoffFactor int
	throttling    *throttleRecord
}

const maxBackoffFactor = 20 // caps the jitter window at 2^20ms (~17.5 min)

// nextBackoffFactor applies one scheduling event to a table's backoff
// factor: a throttling event always increments it by one; a successful
// batch decrements it by at most one, floored at 0. This is the
// forward-progress invariant from section 4.1 — under persistent
// throttling the factor (and so the jitter window) only grows, but a
// table that starts succeeding again walks its aggressiveness back down.
func nextBackoffFactor(current int, throttled bool) int {
	if throttled {
		return current + 1
	}
	if current > 0 {
		return current - 1
	}
	return 0
}

// scheduleWake starts the backoff timer for a throttled table and reports
// the table's name on ready once it expires, so the engine's single
// goroutine can fan a growing number of independently-timed backoffs into
// one select without resorting to reflect.Select.
func scheduleWake(ctx context.Context, table string, factor int, ready chan<- string) {
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	window := int64(1) << uint(factor)
	delay := time.Duration(rand.Int64N(window)) * time.Millisecond
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case ready <- table:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}
