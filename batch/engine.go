package batch

import (
	"context"

	"github.com/gurre/ddb-dam/awsx"
)

// Mode selects which DynamoDB batch API an Engine drives.
type Mode int

const (
	ModeGet Mode = iota
	ModeWrite
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTableOptions sets the read-only per-table options (consistent read,
// projection) applied to every Get element routed to table. Only
// meaningful for a ModeGet engine.
func WithTableOptions(table string, opts ReadOptions) Option {
	return func(e *Engine) { e.tableOpts[table] = opts }
}

// Engine is the batch operation engine from section 4.1: it drains a
// source channel of Elements, partitions them per table into
// size-bounded BatchGetItem/BatchWriteItem requests, and retries elements
// DynamoDB reports as unprocessed with per-table exponential backoff,
// surfacing results through a single pull-iterator channel.
//
// An Engine is single-use: call Iterate once, consume the channel to
// exhaustion or call Close, then discard it.
type Engine struct {
	client    awsx.DynamoDBClient
	mode      Mode
	source    <-chan Element
	tableOpts map[string]ReadOptions

	cancel context.CancelFunc
}

// NewEngine builds an Engine that reads elements from source and issues
// requests with client, in the API family mode selects.
func NewEngine(client awsx.DynamoDBClient, mode Mode, source <-chan Element, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		mode:      mode,
		source:    source,
		tableOpts: make(map[string]ReadOptions),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Iterate starts the engine and returns the channel of Results. The
// channel closes when source is exhausted and every in-flight and
// throttled element has been resolved, when ctx is cancelled, or when a
// request fails outright (the last Result on the channel carries Err in
// that case). Results are not guaranteed to be delivered in source order:
// a throttled table's elements surface after tables that were never
// throttled.
func (e *Engine) Iterate(ctx context.Context) <-chan Result {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	out := make(chan Result)
	go e.run(ctx, out)
	return out
}

// Close cancels the engine's iteration. Safe to call multiple times and
// safe to call before the output channel has drained; callers that want a
// clean shutdown should continue draining the channel until it closes.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) executor() requestExecutor {
	if e.mode == ModeWrite {
		return &writeExecutor{client: e.client}
	}
	return &getExecutor{client: e.client, tableOpts: e.tableOpts}
}

func (e *Engine) run(ctx context.Context, out chan<- Result) {
	defer close(out)

	exec := e.executor()
	batchSize := exec.maxBatchSize()

	var toSend []Element
	var pending []Result
	states := make(map[string]*tableState)
	ready := make(chan string, 64)
	sourceDone := false

	ensureState := func(table string) *tableState {
		st, ok := states[table]
		if !ok {
			st = &tableState{name: table, opts: e.tableOpts[table]}
			states[table] = st
		}
		return st
	}

	anyThrottled := func() bool {
		for _, st := range states {
			if st.throttling != nil {
				return true
			}
		}
		return false
	}

	route := func(el Element) {
		st := states[el.Table]
		if st != nil && st.throttling != nil {
			st.throttling.unprocessed = append(st.throttling.unprocessed, el)
			return
		}
		toSend = append(toSend, el)
	}

	wake := func(table string) {
		st := states[table]
		if st == nil || st.throttling == nil {
			return
		}
		elems := st.throttling.unprocessed
		st.throttling = nil
		toSend = append(toSend, elems...)
	}

	handleThrottled := func(table string, unprocessedElems []Element) {
		st := ensureState(table)
		st.backoffFactor = nextBackoffFactor(st.backoffFactor, true)
		var merged []Element
		if st.throttling != nil {
			merged = append(merged, st.throttling.unprocessed...)
		}
		merged = append(merged, unprocessedElems...)
		st.throttling = &throttleRecord{unprocessed: merged}
		scheduleWake(ctx, table, st.backoffFactor, ready)
	}

	movePendingToThrottled := func(tables []string) {
		if len(tables) == 0 {
			return
		}
		set := make(map[string]bool, len(tables))
		for _, t := range tables {
			set[t] = true
		}
		kept := toSend[:0]
		for _, el := range toSend {
			if set[el.Table] {
				st := states[el.Table]
				st.throttling.unprocessed = append(st.throttling.unprocessed, el)
			} else {
				kept = append(kept, el)
			}
		}
		toSend = kept
	}

	send := func(r Result) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if len(pending) > 0 {
			r := pending[0]
			pending = pending[1:]
			if !send(r) {
				return
			}
			continue
		}

		if sourceDone && len(toSend) == 0 && !anyThrottled() {
			return
		}

		for !sourceDone && len(toSend) < batchSize {
			select {
			case el, ok := <-e.source:
				if !ok {
					sourceDone = true
				} else {
					route(el)
				}
			case table := <-ready:
				wake(table)
			case <-ctx.Done():
				return
			}
			if len(toSend) >= batchSize {
				break
			}
		}

		for len(toSend) == 0 && sourceDone && anyThrottled() {
			select {
			case table := <-ready:
				wake(table)
			case <-ctx.Done():
				return
			}
		}

		if len(toSend) == 0 {
			continue
		}

		n := len(toSend)
		if n > batchSize {
			n = batchSize
		}
		batchElems := toSend[:n]
		toSend = toSend[n:]

		successes, unprocessed, err := exec.execute(ctx, batchElems)
		if err != nil {
			send(Result{Err: err})
			return
		}
		pending = append(pending, successes...)

		succeededTables := make(map[string]bool, len(successes))
		for _, r := range successes {
			succeededTables[r.Table] = true
		}
		for table := range succeededTables {
			if st := states[table]; st != nil {
				st.backoffFactor = nextBackoffFactor(st.backoffFactor, false)
			}
		}

		if len(unprocessed) > 0 {
			throttledTables := make([]string, 0, len(unprocessed))
			for table, elems := range unprocessed {
				handleThrottled(table, elems)
				throttledTables = append(throttledTables, table)
			}
			movePendingToThrottled(throttledTables)
		}
	}
}
