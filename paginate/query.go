package paginate

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gurre/ddb-dam/awsx"
)

// QueryOption configures a QueryPaginator at construction time.
type QueryOption func(*QueryPaginator)

// WithQueryKeyCondition sets the required key condition expression and its
// placeholder maps, as produced by expression.Serialize.
func WithQueryKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue) QueryOption {
	return func(p *QueryPaginator) {
		p.keyConditionExpr = expr
		p.mergeNames(names)
		p.mergeValues(values)
	}
}

// WithQueryFilter sets a filter expression applied after the key condition.
func WithQueryFilter(expr string, names map[string]string, values map[string]types.AttributeValue) QueryOption {
	return func(p *QueryPaginator) {
		p.filterExpr = &expr
		p.mergeNames(names)
		p.mergeValues(values)
	}
}

// WithQueryProjection restricts returned attributes.
func WithQueryProjection(expr string, names map[string]string) QueryOption {
	return func(p *QueryPaginator) {
		p.projectionExpr = &expr
		p.mergeNames(names)
	}
}

// WithQueryIndex directs the query at a secondary index.
func WithQueryIndex(name string) QueryOption {
	return func(p *QueryPaginator) { p.indexName = &name }
}

// WithQueryConsistentRead requests a strongly consistent read.
func WithQueryConsistentRead(consistent bool) QueryOption {
	return func(p *QueryPaginator) { p.consistentRead = consistent }
}

// WithQueryScanIndexForward sets traversal direction; false reverses it.
func WithQueryScanIndexForward(forward bool) QueryOption {
	return func(p *QueryPaginator) { p.scanIndexForward = &forward }
}

// WithQueryPageSize sets the per-request Limit hint sent with every Query
// call.
func WithQueryPageSize(n int32) QueryOption {
	return func(p *QueryPaginator) { p.pageSize = n }
}

// WithQuerySoftLimit caps the total item count returned across all pages.
// Each page's request Limit is computed as min(pageSize, softLimit-count),
// the soft page-size behavior section 4.2 specifies.
func WithQuerySoftLimit(n int32) QueryOption {
	return func(p *QueryPaginator) { p.softLimit = n }
}

// WithQueryExclusiveStartKey resumes from a previously observed
// LastEvaluatedKey.
func WithQueryExclusiveStartKey(key Key) QueryOption {
	return func(p *QueryPaginator) { p.exclusiveStartKey = key }
}

// QueryPaginator implements Paginator over DynamoDB's Query operation. It
// is single-owner: concurrent Next calls are rejected with
// ErrConcurrentNext rather than racing shared state.
type QueryPaginator struct {
	client awsx.DynamoDBClient
	table  string

	keyConditionExpr string
	filterExpr       *string
	projectionExpr   *string
	names            map[string]string
	values           map[string]types.AttributeValue
	indexName        *string
	consistentRead   bool
	scanIndexForward *bool

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

// NewQueryPaginator builds a QueryPaginator against table.
func NewQueryPaginator(client awsx.DynamoDBClient, table string, opts ...QueryOption) *QueryPaginator {
	p := &QueryPaginator{client: client, table: table}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *QueryPaginator) mergeNames(names map[string]string) {
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

func (p *QueryPaginator) mergeValues(values map[string]types.AttributeValue) {
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

// Next fetches the next page, reporting whether another page may follow.
func (p *QueryPaginator) Next(ctx context.Context) (Page, bool, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return Page{}, false, ErrConcurrentNext
	}
	if p.closed {
		p.mu.Unlock()
		return Page{}, false, fmt.Errorf("paginate: Next called on closed QueryPaginator")
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

	input := &dynamodb.QueryInput{
		TableName:                 &p.table,
		KeyConditionExpression:    &p.keyConditionExpr,
		FilterExpression:          p.filterExpr,
		ProjectionExpression:      p.projectionExpr,
		ExpressionAttributeNames:  p.names,
		ExpressionAttributeValues: p.values,
		IndexName:                 p.indexName,
		ConsistentRead:            &p.consistentRead,
		ScanIndexForward:          p.scanIndexForward,
		Limit:                     reqLimit,
		ExclusiveStartKey:         p.exclusiveStartKey,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}

	out, err := p.client.Query(ctx, input)
	if err != nil {
		return Page{}, false, fmt.Errorf("paginate: Query: %w", err)
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
func (p *QueryPaginator) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
