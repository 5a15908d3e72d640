package paginate

import (
	"context"
	"fmt"
	"sync"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/awsx"
)

// SegmentState is the resumable state of one segment of a parallel scan.
// Initialized distinguishes a segment that has never been touched from one
// that ran to completion: a segment with Initialized true and a nil
// LastEvaluatedKey is fully exhausted and is skipped entirely on resume,
// the concrete Parallel-scan resume testable property from section 4.2.
type SegmentState struct {
	Initialized      bool           `json:"initialized"`
	LastEvaluatedKey attrvalue.Item `json:"lastEvaluatedKey,omitempty"`
}

// ParallelScanState is a JSON-serializable snapshot of every segment's
// progress, suitable for persisting to a checkpoint store between runs.
type ParallelScanState []SegmentState

// ParallelScanPaginator fans out a Scan across TotalSegments concurrent
// segments and merges their pages into one Paginator surface. Per section
// 4.2, scheduling is a single shared result channel written to by
// per-segment goroutines, each relaunched immediately after its result is
// consumed — the Go-idiomatic substitute for a reflect.Select-based dynamic
// race that keeps exactly one fetch in flight per active segment.
type ParallelScanPaginator struct {
	totalSegments int32
	segments      []*ScanPaginator // nil entry = segment was already exhausted at construction

	resultCh chan segmentResult

	mu       sync.Mutex
	active   map[int32]struct{}
	inFlight bool
	closed   bool
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

type segmentResult struct {
	segment int32
	page    Page
	hasMore bool
	err     error
}

// NewParallelScanPaginator builds a ParallelScanPaginator. If state is
// non-nil its length must equal totalSegments, or a *ConfigError is
// returned. opts applies to every segment's underlying Scan (filter,
// projection, consistent read); per-segment Segment/TotalSegments values
// are set automatically.
func NewParallelScanPaginator(client awsx.DynamoDBClient, table string, totalSegments int32, state ParallelScanState, opts ...ScanOption) (*ParallelScanPaginator, error) {
	if totalSegments <= 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("TotalSegments must be positive, got %d", totalSegments)}
	}
	if state != nil && len(state) != int(totalSegments) {
		return nil, &ConfigError{Msg: fmt.Sprintf("resume state has %d segments, want %d", len(state), totalSegments)}
	}

	segments := make([]*ScanPaginator, totalSegments)
	active := make(map[int32]struct{}, totalSegments)
	for i := int32(0); i < totalSegments; i++ {
		if state != nil {
			ss := state[i]
			if ss.Initialized && ss.LastEvaluatedKey == nil {
				continue // fully exhausted in a prior run; skip entirely
			}
			segOpts := append(append([]ScanOption(nil), opts...), WithScanSegment(i, totalSegments))
			if ss.LastEvaluatedKey != nil {
				startKey, err := attrvalue.ItemToSDK(ss.LastEvaluatedKey)
				if err != nil {
					return nil, fmt.Errorf("paginate: segment %d resume key: %w", i, err)
				}
				segOpts = append(segOpts, WithScanExclusiveStartKey(startKey))
			}
			segments[i] = NewScanPaginator(client, table, segOpts...)
		} else {
			segOpts := append(append([]ScanOption(nil), opts...), WithScanSegment(i, totalSegments))
			segments[i] = NewScanPaginator(client, table, segOpts...)
		}
		active[i] = struct{}{}
	}

	return &ParallelScanPaginator{
		totalSegments: totalSegments,
		segments:      segments,
		active:        active,
		resultCh:      make(chan segmentResult, totalSegments),
	}, nil
}

func (p *ParallelScanPaginator) launch(seg int32) {
	go func() {
		page, hasMore, err := p.segments[seg].Next(p.ctx)
		select {
		case p.resultCh <- segmentResult{segment: seg, page: page, hasMore: hasMore, err: err}:
		case <-p.ctx.Done():
		}
	}()
}

// Next blocks until any active segment's next page is available, the
// supplied ctx is cancelled, or the paginator is closed.
func (p *ParallelScanPaginator) Next(ctx context.Context) (Page, bool, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return Page{}, false, ErrConcurrentNext
	}
	if p.closed {
		p.mu.Unlock()
		return Page{}, false, fmt.Errorf("paginate: Next called on closed ParallelScanPaginator")
	}
	if len(p.active) == 0 {
		p.mu.Unlock()
		return Page{}, false, nil
	}
	p.inFlight = true
	if !p.started {
		p.started = true
		p.ctx, p.cancel = context.WithCancel(ctx)
		for seg := range p.active {
			p.launch(seg)
		}
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	select {
	case res := <-p.resultCh:
		if res.err != nil {
			return Page{}, false, res.err
		}
		p.mu.Lock()
		if !res.hasMore {
			delete(p.active, res.segment)
		} else {
			p.launch(res.segment)
		}
		hasMore := len(p.active) > 0
		p.mu.Unlock()
		return res.page, hasMore, nil
	case <-ctx.Done():
		return Page{}, false, ctx.Err()
	case <-p.ctx.Done():
		return Page{}, false, fmt.Errorf("paginate: parallel scan closed")
	}
}

// Close cancels every in-flight segment fetch and marks the paginator
// unusable. Safe to call multiple times.
func (p *ParallelScanPaginator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	for _, seg := range p.segments {
		if seg != nil {
			seg.Close()
		}
	}
}

// ScanState returns a deep-copied, JSON-serializable snapshot of every
// segment's progress, safe to call at any time including after Close.
func (p *ParallelScanPaginator) ScanState() (ParallelScanState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := make(ParallelScanState, p.totalSegments)
	for i := int32(0); i < p.totalSegments; i++ {
		seg := p.segments[i]
		if seg == nil {
			state[i] = SegmentState{Initialized: true}
			continue
		}
		_, isActive := p.active[i]
		lek := seg.LastEvaluatedKey()
		var item attrvalue.Item
		if len(lek) > 0 {
			var err error
			item, err = attrvalue.ItemFromSDK(lek)
			if err != nil {
				return nil, fmt.Errorf("paginate: segment %d scan state: %w", i, err)
			}
		}
		state[i] = SegmentState{
			Initialized:      p.started && !isActive,
			LastEvaluatedKey: item,
		}
	}
	return state, nil
}
