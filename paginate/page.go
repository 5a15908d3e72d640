// Package paginate implements the paginator/iterator family described in
// section 4.2 (component H) of the design specification: single-owner,
// cooperative pull-iterators over DynamoDB Query and Scan, including the
// parallel-scan fan-in and its resumable segment state.
package paginate

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key is a primary-key attribute map.
type Key = map[string]types.AttributeValue

// Item is an item attribute map.
type Item = map[string]types.AttributeValue

// ErrConcurrentNext is returned by Next when a previous call on the same
// Paginator or ItemIterator has not yet returned — the Go rendering of the
// single-threaded cooperative model section 5 describes: suspicious
// concurrent use is rejected rather than silently corrupting state.
var ErrConcurrentNext = errors.New("paginate: concurrent Next call")

// ConfigError reports a construction-time misconfiguration, such as a
// resume state whose segment count does not match TotalSegments.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "paginate: " + e.Msg }

// Page is one page of Query or Scan results.
type Page struct {
	Items            []Item
	LastEvaluatedKey Key
	Count            int32
	ScannedCount     int32
	ConsumedCapacity *types.ConsumedCapacity
}

// Paginator is the pull-iterator interface both QueryPaginator and
// ScanPaginator implement. Next reports has-more as a separate bool rather
// than folding it into a sentinel error, since an empty final page with
// ConsumedCapacity still needs to reach the caller.
type Paginator interface {
	Next(ctx context.Context) (Page, bool, error)
	Close()
}
