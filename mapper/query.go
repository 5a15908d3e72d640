package mapper

import (
	"context"
	"fmt"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/expression"
	"github.com/gurre/ddb-dam/paginate"
	"github.com/gurre/ddb-dam/schema"
)

// ItemCursor flattens a paginate.Paginator to one decoded application
// record at a time, the Mapper-level counterpart of paginate.ItemIterator.
type ItemCursor struct {
	s    schema.Schema
	opts schema.Options
	it   *paginate.ItemIterator
}

// Next decodes the next item, or ok=false once exhausted.
func (c *ItemCursor) Next(ctx context.Context) (map[string]any, bool, error) {
	raw, ok, err := c.it.Next(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	item, err := attrvalue.ItemFromSDK(raw)
	if err != nil {
		return nil, false, err
	}
	decoded, err := schema.Unmarshal(c.s, item, c.opts)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// Pages detaches the page-at-a-time Paginator underlying this cursor.
func (c *ItemCursor) Pages() paginate.Paginator { return c.it.Pages() }

// Close stops the cursor.
func (c *ItemCursor) Close() { c.it.Close() }

// Query runs a Query against the table (or an index, via paginate options)
// using cond as the key condition, returning a decoded item cursor.
func (m *Mapper) Query(ctx context.Context, cond expression.Condition, opts ...paginate.QueryOption) (*ItemCursor, error) {
	expr, names, values, err := expression.Serialize(cond)
	if err != nil {
		return nil, fmt.Errorf("mapper: query key condition: %w", err)
	}
	allOpts := append([]paginate.QueryOption{paginate.WithQueryKeyCondition(expr, names, values)}, opts...)
	p := paginate.NewQueryPaginator(m.client, m.table, allOpts...)
	return &ItemCursor{s: m.schema, opts: m.opts, it: paginate.NewItemIterator(p)}, nil
}

// Scan runs a Scan against the table, returning a decoded item cursor.
func (m *Mapper) Scan(ctx context.Context, opts ...paginate.ScanOption) *ItemCursor {
	p := paginate.NewScanPaginator(m.client, m.table, opts...)
	return &ItemCursor{s: m.schema, opts: m.opts, it: paginate.NewItemIterator(p)}
}

// ParallelScanCursor is the parallel-scan counterpart of ItemCursor.
type ParallelScanCursor struct {
	s    schema.Schema
	opts schema.Options
	p    *paginate.ParallelScanPaginator
}

// Next decodes the next page's items. Callers needing per-segment progress
// should use ScanState between calls.
func (c *ParallelScanCursor) Next(ctx context.Context) ([]map[string]any, bool, error) {
	page, hasMore, err := c.p.Next(ctx)
	if err != nil {
		return nil, false, err
	}
	out := make([]map[string]any, 0, len(page.Items))
	for _, raw := range page.Items {
		item, err := attrvalue.ItemFromSDK(raw)
		if err != nil {
			return nil, false, err
		}
		decoded, err := schema.Unmarshal(c.s, item, c.opts)
		if err != nil {
			return nil, false, err
		}
		out = append(out, decoded)
	}
	return out, hasMore, nil
}

// ScanState returns a resumable snapshot of every segment.
func (c *ParallelScanCursor) ScanState() (paginate.ParallelScanState, error) { return c.p.ScanState() }

// Close stops every segment.
func (c *ParallelScanCursor) Close() { c.p.Close() }

// ParallelScan runs a parallel Scan across totalSegments segments,
// optionally resuming from a prior ScanState.
func (m *Mapper) ParallelScan(totalSegments int32, state paginate.ParallelScanState, opts ...paginate.ScanOption) (*ParallelScanCursor, error) {
	p, err := paginate.NewParallelScanPaginator(m.client, m.table, totalSegments, state, opts...)
	if err != nil {
		return nil, err
	}
	return &ParallelScanCursor{s: m.schema, opts: m.opts, p: p}, nil
}
