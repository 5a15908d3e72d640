// Package batch implements the batch operation engine described in section
// 4.1 (component G) of the design specification — the core of this layer:
// a streaming pull-iterator that partitions a (possibly unbounded, possibly
// asynchronous) sequence of read or write intents into size-bounded
// DynamoDB batch requests, issues them, and retries unprocessed elements
// with per-table exponential backoff.
package batch

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key is a primary-key attribute map, the wire Key shape from section 3.
type Key = map[string]types.AttributeValue

// Item is an item attribute map, the wire Item shape from section 3.
type Item = map[string]types.AttributeValue

// ElementKind discriminates what an Element or Result represents.
type ElementKind int

const (
	// KindGet is a read intent: (tableName, key).
	KindGet ElementKind = iota
	// KindPut is a write intent carrying a full item.
	KindPut
	// KindDelete is a write intent carrying only a key.
	KindDelete
	// KindUpdate tags a Result from a single UpdateItem call issued outside
	// the batch engine (DynamoDB has no BatchUpdateItem). Never appears on
	// an Element; only Writer.Run produces Results with this Kind.
	KindUpdate
)

func (k ElementKind) String() string {
	switch k {
	case KindGet:
		return "Get"
	case KindPut:
		return "Put"
	case KindDelete:
		return "Delete"
	case KindUpdate:
		return "Update"
	default:
		return "Unknown"
	}
}

// Element is a batch element as defined in section 3: either (tableName,
// key) for reads, or (tableName, writeRequest) for writes, where
// writeRequest is Put(item) or Delete(key).
type Element struct {
	Table string
	Kind  ElementKind
	Key   Key  // populated for KindGet and KindDelete
	Item  Item // populated for KindPut
}

// Get builds a read Element.
func Get(table string, key Key) Element {
	return Element{Table: table, Kind: KindGet, Key: key}
}

// Put builds a write Element carrying a full item.
func Put(table string, item Item) Element {
	return Element{Table: table, Kind: KindPut, Item: item}
}

// Delete builds a write Element carrying only a key.
func Delete(table string, key Key) Element {
	return Element{Table: table, Kind: KindDelete, Key: key}
}

// Result is a processed batch element flowing out of Engine.Iterate (or
// Writer.Run): a successful read's returned item, a write's
// acknowledgement, or a KindUpdate result reporting whether a single
// UpdateItem call succeeded. Every acknowledged write (put or delete) is
// yielded, resolving the second open question in the design notes in
// favor of visibility over the original's silent drop of acknowledged
// deletes; KindUpdate results carry the same guarantee for updates.
type Result struct {
	Table string
	Kind  ElementKind
	Item  Item // the read item, or the put's echoed item
	Key   Key  // the delete's echoed key
	Err   error
}
