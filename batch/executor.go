package batch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gurre/ddb-dam/awsx"
)

// itemsEqual compares two attribute maps by value. DynamoDB attribute value
// unions come back through the SDK as concrete *types.AttributeValueMemberX
// pointers, so a direct reflect.DeepEqual over the map correctly compares
// structural content rather than pointer identity.
func itemsEqual(a, b map[string]types.AttributeValue) bool {
	return reflect.DeepEqual(a, b)
}

// requestExecutor issues one physical batch request for a drained group of
// elements and reports which elements succeeded and which came back
// unprocessed, grouped by table. It is the seam between the engine's
// table-agnostic scheduling loop and the two distinct DynamoDB APIs (3.1
// groups Get under BatchGetItem, Put/Delete under BatchWriteItem).
type requestExecutor interface {
	maxBatchSize() int
	execute(ctx context.Context, elems []Element) (successes []Result, unprocessed map[string][]Element, err error)
}

type getExecutor struct {
	client    awsx.DynamoDBClient
	tableOpts map[string]ReadOptions
}

func (g *getExecutor) maxBatchSize() int { return 100 }

func (g *getExecutor) execute(ctx context.Context, elems []Element) ([]Result, map[string][]Element, error) {
	requestItems := make(map[string]types.KeysAndAttributes, len(elems))
	for _, el := range elems {
		kaa, ok := requestItems[el.Table]
		if !ok {
			opts := g.tableOpts[el.Table]
			kaa = types.KeysAndAttributes{
				ConsistentRead: &opts.ConsistentRead,
			}
			if opts.ProjectionExpression != "" {
				kaa.ProjectionExpression = &opts.ProjectionExpression
			}
			if len(opts.ExpressionAttributeNames) > 0 {
				kaa.ExpressionAttributeNames = opts.ExpressionAttributeNames
			}
		}
		kaa.Keys = append(kaa.Keys, el.Key)
		requestItems[el.Table] = kaa
	}

	out, err := g.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: requestItems,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("batch: BatchGetItem: %w", err)
	}

	var successes []Result
	for table, items := range out.Responses {
		for _, item := range items {
			successes = append(successes, Result{Table: table, Kind: KindGet, Item: item})
		}
	}

	unprocessed := make(map[string][]Element, len(out.UnprocessedKeys))
	for table, kaa := range out.UnprocessedKeys {
		for _, key := range kaa.Keys {
			unprocessed[table] = append(unprocessed[table], Get(table, key))
		}
	}
	return successes, unprocessed, nil
}

type writeExecutor struct {
	client awsx.DynamoDBClient
}

func (w *writeExecutor) maxBatchSize() int { return 25 }

func (w *writeExecutor) execute(ctx context.Context, elems []Element) ([]Result, map[string][]Element, error) {
	requestItems := make(map[string][]types.WriteRequest, len(elems))
	for _, el := range elems {
		var wr types.WriteRequest
		switch el.Kind {
		case KindPut:
			wr = types.WriteRequest{PutRequest: &types.PutRequest{Item: el.Item}}
		case KindDelete:
			wr = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: el.Key}}
		default:
			return nil, nil, fmt.Errorf("batch: element for table %q is not a write (kind %s)", el.Table, el.Kind)
		}
		requestItems[el.Table] = append(requestItems[el.Table], wr)
	}

	out, err := w.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: requestItems,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("batch: BatchWriteItem: %w", err)
	}

	// Every element not reported back in UnprocessedItems was acknowledged.
	// BatchWriteItem identifies unprocessed requests by content, not
	// position, and duplicate keys are explicitly not deduplicated (section
	// 4.1), so match each unprocessed WriteRequest against the first
	// not-yet-matched submitted element with identical content, in
	// submission order, and treat everything else as acknowledged — tagging
	// every acknowledged write with its kind instead of dropping deletes
	// (section 4.1's reversal of the original's silently-discarded delete
	// acknowledgements).
	unprocessed := make(map[string][]Element, len(out.UnprocessedItems))
	matched := make([]bool, len(elems))
	for table, reqs := range out.UnprocessedItems {
		for _, wr := range reqs {
			idx := findUnmatched(elems, matched, table, wr)
			if idx >= 0 {
				matched[idx] = true
			}
			switch {
			case wr.PutRequest != nil:
				unprocessed[table] = append(unprocessed[table], Put(table, wr.PutRequest.Item))
			case wr.DeleteRequest != nil:
				unprocessed[table] = append(unprocessed[table], Delete(table, wr.DeleteRequest.Key))
			}
		}
	}

	var successes []Result
	for i, el := range elems {
		if matched[i] {
			continue
		}
		successes = append(successes, Result{Table: el.Table, Kind: el.Kind, Item: el.Item, Key: el.Key})
	}
	return successes, unprocessed, nil
}

// findUnmatched returns the index of the first not-yet-matched element of
// table whose content equals wr, or -1 if none remains.
func findUnmatched(elems []Element, matched []bool, table string, wr types.WriteRequest) int {
	for i, el := range elems {
		if matched[i] || el.Table != table {
			continue
		}
		switch {
		case wr.PutRequest != nil && el.Kind == KindPut && itemsEqual(el.Item, wr.PutRequest.Item):
			return i
		case wr.DeleteRequest != nil && el.Kind == KindDelete && itemsEqual(el.Key, wr.DeleteRequest.Key):
			return i
		}
	}
	return -1
}
