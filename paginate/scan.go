package paginate

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gurre/ddb-dam/awsx"
)

// ScanOption configures a ScanPaginator at construction time.
type ScanOption func(*ScanPaginator)

// WithScanFilter sets a filter expression applied to scanned items.
func WithScanFilter(expr string, names map[string]string, values map[string]types.AttributeValue) ScanOption {
	return func(p *ScanPaginator) {
		p.filterExpr = &expr
		p.mergeNames(names)
		p.mergeValues(values)
	}
}

// WithScanProjection restricts returned attributes.
func WithScanProjection(expr string, names map[string]string) ScanOption {
	return func(p *ScanPaginator) {
		p.projectionExpr = &expr
		p.mergeNames(names)
	}
}

// WithScanIndex directs the scan at a secondary index.
func WithScanIndex(name string) ScanOption {
	return func(p *ScanPaginator) { p.indexName = &name }
}

// WithScanConsistentRead requests a strongly consistent read.
func WithScanConsistentRead(consistent bool) ScanOption {
	return func(p *ScanPaginator) { p.consistentRead = consistent }
}

// WithScanSegment assigns this paginator one segment of a parallel scan.
// Used internally by ParallelScanPaginator; total must agree across every
// segment sharing the scan.
func WithScanSegment(segment, total int32) ScanOption {
	return func(p *ScanPaginator) {
		p.segment = &segment
		p.totalSegments = &total
	}
}

// WithScanPageSize sets the per-request Limit hint sent with every Scan
// call.
func WithScanPageSize(n int32) ScanOption {
	return func(p *ScanPaginator) { p.pageSize = n }
}

// WithScanSoftLimit caps the total item count returned across all pages.
func WithScanSoftLimit(n int32) ScanOption {
	return func(p *ScanPaginator) { p.softLimit = n }
}

// WithScanExclusiveStartKey resumes from a previously observed
// LastEvaluatedKey.
func WithScanExclusiveStartKey(key Key) ScanOption {
	return func(p *ScanPaginator) { p.exclusiveStartKey = key }
}

// ScanPaginator implements Paginator over DynamoDB's Scan operation,
// including single-segment participation in a parallel scan.
type ScanPaginator struct {
	client awsx.DynamoDBClient
	table  string

	filterExpr     *string
	projectionExpr *string
	names          map[string]string
	values         map[string]types.AttributeValue
	indexName      *string
	consistentRead bool
	segment        *int32
	totalSegments  *int32

	pageSize  int32
	softLimit int32

	mu                sync.Mutex
	inFlight          bool
	closed            bool
	exhausted         bool
	exclusiveStartKey Key
	count             int32
	scannedCount      int32
	consumedCapacity  *types.ConsumedCapacity
}

// NewScanPaginator builds a ScanPaginator against table.
func NewScanPaginator(client awsx.DynamoDBClient, table string, opts ...ScanOption) *ScanPaginator {
	p := &ScanPaginator{client: client, table: table}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ScanPaginator) mergeNames(names map[string]string) {
	if len(names) == 0 {
		return
	}
	if p.names == nil {
		p.names = make(map[string]string, len(names))
	}
	for k, v := range names {
		p.names[k] = v
	}
}

func (p *ScanPaginator) mergeValues(values map[string]types.AttributeValue) {
	if len(values) == 0 {
		return
	}
	if p.values == nil {
		p.values = make(map[string]types.AttributeValue, len(values))
	}
	for k, v := range values {
		p.values[k] = v
	}
}

// LastEvaluatedKey returns the most recently observed LastEvaluatedKey,
// nil once the segment is exhausted. Used by ParallelScanPaginator to
// build a ScanState snapshot.
func (p *ScanPaginator) LastEvaluatedKey() Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exclusiveStartKey
}

// Exhausted reports whether this segment has no more pages.
func (p *ScanPaginator) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted
}

// Next fetches the next page, reporting whether another page may follow.
func (p *ScanPaginator) Next(ctx context.Context) (Page, bool, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return Page{}, false, ErrConcurrentNext
	}
	if p.closed {
		p.mu.Unlock()
		return Page{}, false, fmt.Errorf("paginate: Next called on closed ScanPaginator")
	}
	if p.exhausted {
		p.mu.Unlock()
		return Page{}, false, nil
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	var reqLimit *int32
	if p.softLimit > 0 {
		remaining := p.softLimit - p.count
		if remaining <= 0 {
			p.exhausted = true
			return Page{}, false, nil
		}
		n := remaining
		if p.pageSize > 0 && p.pageSize < remaining {
			n = p.pageSize
		}
		reqLimit = &n
	} else if p.pageSize > 0 {
		n := p.pageSize
		reqLimit = &n
	}

	input := &dynamodb.ScanInput{
		TableName:                 &p.table,
		FilterExpression:          p.filterExpr,
		ProjectionExpression:      p.projectionExpr,
		ExpressionAttributeNames:  p.names,
		ExpressionAttributeValues: p.values,
		IndexName:                 p.indexName,
		ConsistentRead:            &p.consistentRead,
		Segment:                   p.segment,
		TotalSegments:             p.totalSegments,
		Limit:                     reqLimit,
		ExclusiveStartKey:         p.exclusiveStartKey,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}

	out, err := p.client.Scan(ctx, input)
	if err != nil {
		return Page{}, false, fmt.Errorf("paginate: Scan: %w", err)
	}

	p.count += out.Count
	p.scannedCount += out.ScannedCount
	merged, mergeErr := MergeConsumedCapacity(p.consumedCapacity, out.ConsumedCapacity)
	if mergeErr != nil {
		return Page{}, false, mergeErr
	}
	p.consumedCapacity = merged
	p.exclusiveStartKey = out.LastEvaluatedKey

	hasMore := len(out.LastEvaluatedKey) > 0
	if p.softLimit > 0 && p.count >= p.softLimit {
		hasMore = false
	}
	if !hasMore {
		p.exhausted = true
	}

	return Page{
		Items:            out.Items,
		LastEvaluatedKey: out.LastEvaluatedKey,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		ConsumedCapacity: merged,
	}, hasMore, nil
}

// Close marks the paginator unusable. Safe to call multiple times.
func (p *ScanPaginator) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
