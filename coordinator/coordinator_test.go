package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gurre/ddb-dam/checkpoint"
	"github.com/gurre/ddb-dam/config"
)

type fakeClient struct {
	mu      sync.Mutex
	items   []map[string]types.AttributeValue
	written []map[string]types.AttributeValue
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.ExclusiveStartKey != nil {
		return &dynamodb.ScanOutput{}, nil
	}
	items := f.items
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			if r.PutRequest != nil {
				f.written = append(f.written, r.PutRequest.Item)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *fakeClient) BatchGetItem(context.Context, *dynamodb.BatchGetItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
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

func numItem(n int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: fmt.Sprintf("item-%d", n)},
	}
}

func TestCoordinatorCopiesAllScannedItemsToDest(t *testing.T) {
	items := make([]map[string]types.AttributeValue, 5)
	for i := range items {
		items[i] = numItem(i)
	}
	client := &fakeClient{items: items}
	store := checkpoint.NewMemoryStore()

	cfg := &config.Config{
		SourceTable:     "source",
		DestTable:       "dest",
		Region:          "us-west-2",
		TotalSegments:   1,
		BatchSize:       10,
		CheckpointURI:   "s3://test-bucket/checkpoint.json",
		ShutdownTimeout: time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate config: %v", err)
	}

	coord := NewCoordinator(cfg, client, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := coord.Run(ctx); err != nil {
		t.Fatalf("coordinator failed: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.written) != len(items) {
		t.Fatalf("expected %d items written, got %d", len(items), len(client.written))
	}
}

func TestCoordinatorDryRunSkipsWrites(t *testing.T) {
	items := []map[string]types.AttributeValue{numItem(0), numItem(1)}
	client := &fakeClient{items: items}
	store := checkpoint.NewMemoryStore()

	cfg := &config.Config{
		SourceTable:     "source",
		DestTable:       "dest",
		Region:          "us-west-2",
		TotalSegments:   1,
		BatchSize:       10,
		CheckpointURI:   "s3://test-bucket/checkpoint.json",
		DryRun:          true,
		ShutdownTimeout: time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate config: %v", err)
	}

	coord := NewCoordinator(cfg, client, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := coord.Run(ctx); err != nil {
		t.Fatalf("coordinator failed: %v", err)
	}

	if len(client.written) != 0 {
		t.Fatalf("expected no writes in dry run, got %d", len(client.written))
	}
}
