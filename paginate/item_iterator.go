package paginate

import (
	"context"
	"fmt"
	"sync"
)

// ItemIterator wraps a Paginator and flattens its pages to one item at a
// time, the one-item-at-a-time pull surface section 4.2 names alongside
// the page-at-a-time Paginator interface.
type ItemIterator struct {
	inner Paginator

	mu        sync.Mutex
	inFlight  bool
	detached  bool
	closed    bool
	buf       []Item
	bufIdx    int
	hasMore   bool
	started   bool
	resumable Key
}

// NewItemIterator wraps p.
func NewItemIterator(p Paginator) *ItemIterator {
	return &ItemIterator{inner: p, hasMore: true}
}

// Next returns the next item, or ok=false once the underlying paginator is
// exhausted.
func (it *ItemIterator) Next(ctx context.Context) (item Item, ok bool, err error) {
	it.mu.Lock()
	if it.inFlight {
		it.mu.Unlock()
		return nil, false, ErrConcurrentNext
	}
	if it.detached {
		it.mu.Unlock()
		return nil, false, fmt.Errorf("paginate: ItemIterator used after Pages() detached it")
	}
	if it.closed {
		it.mu.Unlock()
		return nil, false, fmt.Errorf("paginate: Next called on closed ItemIterator")
	}
	it.inFlight = true
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.inFlight = false
		it.mu.Unlock()
	}()

	for {
		if it.bufIdx < len(it.buf) {
			item = it.buf[it.bufIdx]
			it.bufIdx++
			return item, true, nil
		}
		if !it.hasMore && it.started {
			return nil, false, nil
		}
		page, hasMore, err := it.inner.Next(ctx)
		it.started = true
		if err != nil {
			return nil, false, err
		}
		it.buf = page.Items
		it.bufIdx = 0
		it.hasMore = hasMore
		it.resumable = page.LastEvaluatedKey
		if len(it.buf) == 0 && !hasMore {
			return nil, false, nil
		}
	}
}

// Pages detaches the item-level view and returns the underlying Paginator
// for page-at-a-time use. The ItemIterator is poisoned after this call:
// any buffered-but-not-yet-yielded items from the last fetched page are
// discarded, since the caller is switching to page granularity and owns
// the paginator's cursor from this point on.
func (it *ItemIterator) Pages() Paginator {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.detached = true
	return it.inner
}

// Close stops the iterator and closes the underlying Paginator. Resumable
// keeps the LastEvaluatedKey recorded by the last Next call that fetched a
// page.
func (it *ItemIterator) Close() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return
	}
	it.closed = true
	it.inner.Close()
}

// Resumable returns the LastEvaluatedKey observed as of the most recent
// Next call, suitable for a later ExclusiveStartKey.
func (it *ItemIterator) Resumable() Key {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.resumable
}
