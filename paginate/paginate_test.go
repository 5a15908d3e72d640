package paginate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient simulates Query and Scan over an in-memory, sorted item list,
// honoring ExclusiveStartKey/Limit/Segment/TotalSegments the way DynamoDB
// does, so pagination and parallel-scan fan-out can be exercised without a
// live table.
type fakeClient struct {
	mu    sync.Mutex
	items []map[string]types.AttributeValue // sorted by "id" numeric value
}

func idOf(item map[string]types.AttributeValue) int {
	n := item["id"].(*types.AttributeValueMemberN)
	var v int
	fmt.Sscanf(n.Value, "%d", &v)
	return v
}

func (f *fakeClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return f.page(in.ExclusiveStartKey, in.Limit, -1, 1)
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	segment, total := int32(0), int32(1)
	if in.Segment != nil {
		segment = *in.Segment
	}
	if in.TotalSegments != nil {
		total = *in.TotalSegments
	}
	out, err := f.page(in.ExclusiveStartKey, in.Limit, segment, total)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            out.Items,
		LastEvaluatedKey: out.LastEvaluatedKey,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		ConsumedCapacity: out.ConsumedCapacity,
	}, nil
}

func (f *fakeClient) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

// page shares the paging logic between Query and Scan: items whose id
// modulo total equals segment belong to that segment (segment == -1 means
// unsegmented, i.e. Query).
func (f *fakeClient) page(startKey map[string]types.AttributeValue, limit *int32, segment, total int32) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	startIdx := 0
	if startKey != nil {
		startAfter := idOf(startKey)
		for i, it := range f.items {
			if idOf(it) > startAfter {
				startIdx = i
				break
			}
			startIdx = i + 1
		}
	}

	var page []map[string]types.AttributeValue
	lastIdx := -1
	for i := startIdx; i < len(f.items); i++ {
		it := f.items[i]
		if segment >= 0 && idOf(it)%total != segment {
			continue
		}
		page = append(page, it)
		lastIdx = i
		if limit != nil && int32(len(page)) >= *limit {
			break
		}
	}

	var lastKey map[string]types.AttributeValue
	if lastIdx >= 0 && lastIdx < len(f.items)-1 {
		hasMoreInSegment := false
		for i := lastIdx + 1; i < len(f.items); i++ {
			if segment < 0 || idOf(f.items[i])%total == segment {
				hasMoreInSegment = true
				break
			}
		}
		if hasMoreInSegment {
			lastKey = map[string]types.AttributeValue{"id": f.items[lastIdx]["id"]}
		}
	}

	units := float64(len(page))
	return &dynamodb.QueryOutput{
		Items:            page,
		LastEvaluatedKey: lastKey,
		Count:            int32(len(page)),
		ScannedCount:     int32(len(page)),
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: &units, TableName: strPtr("widgets")},
	}, nil
}

func (f *fakeClient) BatchGetItem(context.Context, *dynamodb.BatchGetItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func strPtr(s string) *string { return &s }

func makeItems(n int) []map[string]types.AttributeValue {
	items := make([]map[string]types.AttributeValue, n)
	for i := 0; i < n; i++ {
		items[i] = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", i)},
		}
	}
	return items
}

func TestScanPaginatorPagesToExhaustion(t *testing.T) {
	client := &fakeClient{items: makeItems(10)}
	p := NewScanPaginator(client, "widgets", WithScanPageSize(3))
	ctx := context.Background()

	var total int
	for {
		page, hasMore, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		total += len(page.Items)
		if !hasMore {
			break
		}
	}
	if total != 10 {
		t.Fatalf("got %d items, want 10", total)
	}
}

func TestQueryPaginatorSoftLimit(t *testing.T) {
	client := &fakeClient{items: makeItems(50)}
	p := NewQueryPaginator(client, "widgets", WithQueryKeyCondition("#pk = :pk", map[string]string{"#pk": "pk"}, map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: "x"}}), WithQueryPageSize(10), WithQuerySoftLimit(23))
	ctx := context.Background()

	var total int32
	for {
		page, hasMore, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		total += int32(len(page.Items))
		if !hasMore {
			break
		}
	}
	if total != 23 {
		t.Fatalf("got %d items, want soft limit of 23", total)
	}
}

// slowQueryClient delays each Query call until release is closed, so a
// second, overlapping Next call can be observed racing the first.
type slowQueryClient struct {
	fakeClient
	entered chan struct{}
	release chan struct{}
}

func (s *slowQueryClient) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	close(s.entered)
	<-s.release
	return s.fakeClient.Query(ctx, in, optFns...)
}

func TestQueryPaginatorRejectsConcurrentNext(t *testing.T) {
	client := &slowQueryClient{
		fakeClient: fakeClient{items: makeItems(10)},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	p := NewQueryPaginator(client, "widgets", WithQueryKeyCondition("#pk = :pk", nil, nil), WithQueryPageSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Next(context.Background())
	}()

	<-client.entered // first call is now blocked inside Query
	_, _, err := p.Next(context.Background())
	if err != ErrConcurrentNext {
		t.Fatalf("got err %v, want ErrConcurrentNext", err)
	}
	close(client.release)
	<-done
}

func TestMergeConsumedCapacitySumsAcrossIndexes(t *testing.T) {
	a := 5.0
	b := 7.0
	first := &types.ConsumedCapacity{
		TableName:     strPtr("widgets"),
		CapacityUnits: &a,
		GlobalSecondaryIndexes: map[string]types.Capacity{
			"gsi1": {CapacityUnits: &a},
		},
	}
	second := &types.ConsumedCapacity{
		TableName:     strPtr("widgets"),
		CapacityUnits: &b,
		GlobalSecondaryIndexes: map[string]types.Capacity{
			"gsi1": {CapacityUnits: &b},
			"gsi2": {CapacityUnits: &a},
		},
	}
	merged, err := MergeConsumedCapacity(first, second)
	if err != nil {
		t.Fatalf("MergeConsumedCapacity: %v", err)
	}
	if *merged.CapacityUnits != 12 {
		t.Fatalf("got top-level %v, want 12", *merged.CapacityUnits)
	}
	if *merged.GlobalSecondaryIndexes["gsi1"].CapacityUnits != 12 {
		t.Fatalf("got gsi1 %v, want 12", *merged.GlobalSecondaryIndexes["gsi1"].CapacityUnits)
	}
	if *merged.GlobalSecondaryIndexes["gsi2"].CapacityUnits != 5 {
		t.Fatalf("got gsi2 %v, want 5", *merged.GlobalSecondaryIndexes["gsi2"].CapacityUnits)
	}
}

func TestMergeConsumedCapacityRejectsDifferentTables(t *testing.T) {
	a, b := 1.0, 1.0
	_, err := MergeConsumedCapacity(
		&types.ConsumedCapacity{TableName: strPtr("widgets"), CapacityUnits: &a},
		&types.ConsumedCapacity{TableName: strPtr("gadgets"), CapacityUnits: &b},
	)
	if err == nil {
		t.Fatal("expected error merging consumed capacity across different tables")
	}
}

func TestItemIteratorFlattensPages(t *testing.T) {
	client := &fakeClient{items: makeItems(7)}
	p := NewScanPaginator(client, "widgets", WithScanPageSize(3))
	it := NewItemIterator(p)
	ctx := context.Background()

	var got []int
	for {
		item, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, idOf(item))
	}
	if len(got) != 7 {
		t.Fatalf("got %d items, want 7", len(got))
	}
}

func TestItemIteratorPagesDetaches(t *testing.T) {
	client := &fakeClient{items: makeItems(5)}
	p := NewScanPaginator(client, "widgets", WithScanPageSize(2))
	it := NewItemIterator(p)
	ctx := context.Background()

	if _, _, err := it.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	detached := it.Pages()
	if detached != p {
		t.Fatal("Pages() did not return the underlying paginator")
	}
	if _, _, err := it.Next(ctx); err == nil {
		t.Fatal("expected error using ItemIterator after Pages() detached it")
	}
}

func TestParallelScanPaginatorCoversAllItemsAcrossSegments(t *testing.T) {
	client := &fakeClient{items: makeItems(40)}
	p, err := NewParallelScanPaginator(client, "widgets", 4, nil, WithScanPageSize(3))
	if err != nil {
		t.Fatalf("NewParallelScanPaginator: %v", err)
	}
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := map[int]bool{}
	for {
		page, hasMore, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, item := range page.Items {
			seen[idOf(item)] = true
		}
		if !hasMore {
			break
		}
	}
	if len(seen) != 40 {
		t.Fatalf("got %d distinct items, want 40", len(seen))
	}
}

func TestParallelScanPaginatorRejectsMismatchedResumeState(t *testing.T) {
	client := &fakeClient{items: makeItems(10)}
	_, err := NewParallelScanPaginator(client, "widgets", 4, ParallelScanState{{}, {}})
	if err == nil {
		t.Fatal("expected ConfigError for mismatched segment count")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestParallelScanPaginatorResumesFromScanState(t *testing.T) {
	client := &fakeClient{items: makeItems(20)}
	p, err := NewParallelScanPaginator(client, "widgets", 2, nil, WithScanPageSize(2))
	if err != nil {
		t.Fatalf("NewParallelScanPaginator: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := map[int]bool{}
	// Consume a handful of pages, then stop partway through.
	for i := 0; i < 3; i++ {
		page, _, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, item := range page.Items {
			seen[idOf(item)] = true
		}
	}
	state, err := p.ScanState()
	if err != nil {
		t.Fatalf("ScanState: %v", err)
	}
	p.Close()

	resumed, err := NewParallelScanPaginator(client, "widgets", 2, state, WithScanPageSize(2))
	if err != nil {
		t.Fatalf("NewParallelScanPaginator (resume): %v", err)
	}
	defer resumed.Close()
	for {
		page, hasMore, err := resumed.Next(ctx)
		if err != nil {
			t.Fatalf("Next (resume): %v", err)
		}
		for _, item := range page.Items {
			seen[idOf(item)] = true
		}
		if !hasMore {
			break
		}
	}
	if len(seen) != 20 {
		t.Fatalf("got %d distinct items across original + resumed run, want 20", len(seen))
	}
}
