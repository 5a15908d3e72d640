package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/gurre/ddb-dam/awsx"
	"github.com/gurre/ddb-dam/itemimage"
)

// ErrClosed is the error value for a closed writer. No Writer method
// returns it: Close only cancels the engine, so Run's channel closes and
// ApplyUpdate still issues its UpdateItem call after Close.
var ErrClosed = errors.New("batch: writer closed")

// Writer replays a stream of itemimage.Operation against a table: Put and
// Delete feed the batch Engine (so they get its per-table backoff and
// unprocessed-item retry), while Update has no batch API and is issued one
// UpdateItem call at a time with its own backoff loop, matching how
// DynamoDB actually exposes these operations. All three acknowledgements,
// including Update's, surface on Run's returned Result channel.
type Writer struct {
	client    awsx.DynamoDBClient
	table     string
	batchSize int

	source chan Element
	engine *Engine
	closed bool
}

// NewWriter builds a Writer over table. batchSize is stored on the Writer
// but does not change request sizes: the underlying Engine always sends up
// to 25 Put/Delete elements per BatchWriteItem request (DynamoDB's limit).
func NewWriter(client awsx.DynamoDBClient, table string, batchSize int) *Writer {
	source := make(chan Element)
	w := &Writer{
		client:    client,
		table:     table,
		batchSize: batchSize,
		source:    source,
	}
	w.engine = NewEngine(client, ModeWrite, source)
	return w
}

// Run starts draining ops and applying each Operation to table, and
// returns the single Result channel for every acknowledgement: Put and
// Delete surface as they come back off the batch engine, and Update
// surfaces a KindUpdate Result (with Err set on failure) as soon as its
// synchronous UpdateItem call in the feed goroutine returns. The channel
// closes once ops is drained (or ctx is cancelled) and every in-flight
// Put, Delete, and Update has been accounted for.
func (w *Writer) Run(ctx context.Context, ops <-chan itemimage.Operation) <-chan Result {
	out := make(chan Result)
	batchResults := w.engine.Iterate(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(w.source)
		for {
			select {
			case op, ok := <-ops:
				if !ok {
					return
				}
				switch op.Type {
				case itemimage.OpPut:
					select {
					case w.source <- Put(w.table, op.NewImage):
					case <-ctx.Done():
						return
					}
				case itemimage.OpDelete:
					select {
					case w.source <- Delete(w.table, op.Keys):
					case <-ctx.Done():
						return
					}
				case itemimage.OpUpdate:
					err := w.ApplyUpdate(ctx, op)
					r := Result{Table: w.table, Kind: KindUpdate, Key: op.Keys, Err: err}
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for r := range batchResults {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Close stops the underlying engine.
func (w *Writer) Close() {
	w.engine.Close()
}

// isThrottlingError reports whether err is a DynamoDB throughput throttling
// error: ProvisionedThroughputExceededException or RequestLimitExceeded,
// both recoverable by waiting for capacity to refill.
func isThrottlingError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded":
		return true
	default:
		return false
	}
}

func backoffWait(ctx context.Context, attempt int) bool {
	base := 100 * time.Millisecond
	maxDelay := 30 * time.Second

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	delay += time.Duration(rand.Int64N(int64(delay)))

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// ApplyUpdate issues a single UpdateItem call for op, building a SET/REMOVE
// update expression from the difference between OldImage and NewImage, with
// retry-with-backoff on throttling.
func (w *Writer) ApplyUpdate(ctx context.Context, op itemimage.Operation) error {
	setExpr := make([]string, 0, len(op.NewImage))
	removeExpr := make([]string, 0, len(op.OldImage))
	values := make(map[string]types.AttributeValue, len(op.NewImage))
	names := make(map[string]string, len(op.NewImage)+len(op.OldImage))
	modifiedAttrs := make(map[string]bool, len(op.NewImage))

	for k, v := range op.NewImage {
		if _, isKey := op.Keys[k]; isKey {
			continue
		}
		setExpr = append(setExpr, fmt.Sprintf("#%s = :%s", k, k))
		values[":"+k] = v
		names["#"+k] = k
		modifiedAttrs[k] = true
	}

	for k := range op.OldImage {
		if _, isKey := op.Keys[k]; isKey {
			continue
		}
		if !modifiedAttrs[k] {
			removeExpr = append(removeExpr, fmt.Sprintf("#%s", k))
			names["#"+k] = k
		}
	}

	if len(setExpr) == 0 && len(removeExpr) == 0 {
		return nil
	}

	var updateExpr string
	if len(setExpr) > 0 {
		updateExpr = "SET " + strings.Join(setExpr, ", ")
	}
	if len(removeExpr) > 0 {
		if updateExpr != "" {
			updateExpr += " "
		}
		updateExpr += "REMOVE " + strings.Join(removeExpr, ", ")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                &w.table,
		Key:                      op.Keys,
		UpdateExpression:         &updateExpr,
		ExpressionAttributeNames: names,
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}

	const maxRetries = 5
	attempt := 0
	for {
		_, err := w.client.UpdateItem(ctx, input)
		if err != nil {
			if isThrottlingError(err) {
				if !backoffWait(ctx, attempt) {
					return ctx.Err()
				}
				attempt++
				continue
			}
			if attempt < maxRetries {
				if !backoffWait(ctx, attempt) {
					return ctx.Err()
				}
				attempt++
				continue
			}
			return fmt.Errorf("failed to update item after %d retries: %w", maxRetries, err)
		}
		return nil
	}
}
