// Package schema implements the schema-driven marshaller described in
// section 4.4 (component E) of the design specification: the same
// marshal/unmarshal contract as the untyped marshaller, but directed by a
// declared schema of section 3's Schema node shapes.
package schema

import (
	"fmt"

	"github.com/gurre/ddb-dam/attrvalue"
)

// KeyRole identifies a node's role in a primary or index key, per section 3.
type KeyRole int

const (
	KeyRoleNone KeyRole = iota
	KeyRolePartition
	KeyRoleSort
)

// IndexKeyConfig describes a node's role within a named secondary index.
type IndexKeyConfig struct {
	IndexName string
	Role      KeyRole
}

// KeyConfig captures a node's primary-key role plus any index roles, as
// named in section 3 ("Binary, String, Number, Date, Custom may carry key
// configuration").
type KeyConfig struct {
	PrimaryRole KeyRole
	Indexes     []IndexKeyConfig
}

// IsKey reports whether the node is marked as any kind of key.
func (k KeyConfig) IsKey() bool {
	if k.PrimaryRole != KeyRoleNone {
		return true
	}
	return len(k.Indexes) > 0
}

// DefaultProvider supplies a value when the input for a field is absent.
type DefaultProvider func() (any, error)

// Tag identifies which concrete Node a schema entry is.
type Tag int

const (
	TagBinary Tag = iota
	TagBoolean
	TagDate
	TagNull
	TagNumber
	TagString
	TagList
	TagMap
	TagSet
	TagTuple
	TagDocument
	TagCollection
	TagHash
	TagCustom
)

// SetMemberType enumerates the three legal primitive member types for a Set
// node, per the invariant in section 3 ("Set.memberType must be one of the
// three legal primitives").
type SetMemberType int

const (
	SetMemberBinary SetMemberType = iota
	SetMemberNumber
	SetMemberString
)

// Marshaller is implemented by custom (escape-hatch) schema nodes — the
// user-supplied bidirectional marshal/unmarshal named in section 3's Custom
// tag.
type Marshaller interface {
	MarshalAttribute(v any) (attrvalue.Value, error)
	UnmarshalAttribute(av attrvalue.Value) (any, error)
}

// Node is the tagged variant describing how one field is marshalled,
// exactly as specified in section 3. Each concrete type below implements
// Node via its Tag() method; the marshaller dispatches on the tag rather
// than using reflection-based duck typing (see design notes).
type Node interface {
	Tag() Tag
	// field-level metadata shared by every node kind.
	base() *Base
}

// Base holds the metadata any scalar node may carry: a wire-name override
// and a default-value supplier, plus, for key-legal types, key configuration.
type Base struct {
	AttributeName   string
	DefaultProvider DefaultProvider
	Key             KeyConfig
}

// base has a value receiver, not a pointer one, so that node kinds embed
// Base by value (StringNode, NumberNode, ...) still satisfy Node: a
// pointer-receiver method here would only promote to *StringNode, not the
// StringNode value literals schema.Schema maps are built from throughout
// this codebase.
func (b Base) base() *Base { return &b }

// AttrName returns the wire attribute name, falling back to fallback when no
// override was declared.
func (b *Base) AttrName(fallback string) string {
	if b.AttributeName != "" {
		return b.AttributeName
	}
	return fallback
}

// Binary is a scalar byte-buffer node. Key-legal.
type Binary struct{ Base }

func (Binary) Tag() Tag { return TagBinary }

// Boolean is a scalar boolean node. Not key-legal.
type Boolean struct{ Base }

func (Boolean) Tag() Tag { return TagBoolean }

// Date is a scalar node storing seconds-since-epoch as a Number, rounded to
// whole seconds per section 4.4. Key-legal.
type Date struct{ Base }

func (Date) Tag() Tag { return TagDate }

// Null is a scalar node that always marshals to NULL.
type Null struct{ Base }

func (Null) Tag() Tag { return TagNull }

// NumberNode is a scalar arbitrary-precision number node. Key-legal; may
// carry VersionAttribute for optimistic concurrency (section 3/6).
type NumberNode struct {
	Base
	VersionAttribute bool
}

func (NumberNode) Tag() Tag { return TagNumber }

// StringNode is a scalar string node. Key-legal.
type StringNode struct{ Base }

func (StringNode) Tag() Tag { return TagString }

// List is a homogeneous ordered container.
type List struct {
	Base
	MemberType Node
}

func (List) Tag() Tag { return TagList }

// MapNode is a homogeneous string-keyed container.
type MapNode struct {
	Base
	MemberType Node
}

func (MapNode) Tag() Tag { return TagMap }

// SetNode is a homogeneous set container restricted to the three legal
// primitive member types per section 3's invariant.
type SetNode struct {
	Base
	MemberType SetMemberType
}

func (SetNode) Tag() Tag { return TagSet }

// Tuple is a heterogeneous, fixed-arity ordered container.
type Tuple struct {
	Base
	Members []Node
}

func (Tuple) Tag() Tag { return TagTuple }

// ValueConstructor builds the final application value for a Document node
// from its unmarshalled fields, an optional hook named in section 3.
type ValueConstructor func(fields map[string]any) (any, error)

// Document is a heterogeneous, nested-schema container.
type Document struct {
	Base
	Members          map[string]Node
	ValueConstructor ValueConstructor
}

func (Document) Tag() Tag { return TagDocument }

// Collection is an untyped, ordered, opaque container (passthrough of a
// []any-shaped value).
type Collection struct{ Base }

func (Collection) Tag() Tag { return TagCollection }

// Hash is an untyped, string-keyed, opaque container (passthrough of a
// map[string]any-shaped value).
type Hash struct{ Base }

func (Hash) Tag() Tag { return TagHash }

// Custom is the escape hatch: a user-supplied bidirectional marshaller.
type Custom struct {
	Base
	Marshaller Marshaller
}

func (Custom) Tag() Tag { return TagCustom }

// keyLegal reports whether a tag may be marked as a key, per the invariant
// "any node marked as a key must be of a key-legal type (Binary/String/
// Number/Date/Custom)".
func keyLegal(t Tag) bool {
	switch t {
	case TagBinary, TagString, TagNumber, TagDate, TagCustom:
		return true
	default:
		return false
	}
}

// SchemaError reports a structural problem detected at schema-construction
// or marshal time, per section 7's "Schema errors" category.
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Msg)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Msg)
}

// Validate walks a node tree and enforces the invariants from section 3:
// Set.memberType legality (structural by Go type, always satisfied), key
// legality, Document member validity, and Tuple arity fixedness (structural).
func Validate(n Node) error {
	return validate(n, "$")
}

func validate(n Node, path string) error {
	if n == nil {
		return &SchemaError{Path: path, Msg: "nil node"}
	}
	if b := n.base(); b != nil && b.Key.IsKey() && !keyLegal(n.Tag()) {
		return &SchemaError{Path: path, Msg: "key configuration on non-key-legal type"}
	}
	switch t := n.(type) {
	case List:
		return validate(t.MemberType, path+".[]")
	case MapNode:
		return validate(t.MemberType, path+".{}")
	case Tuple:
		for i, m := range t.Members {
			if err := validate(m, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case Document:
		for k, m := range t.Members {
			if err := validate(m, path+"."+k); err != nil {
				return err
			}
		}
	case Custom:
		if t.Marshaller == nil {
			return &SchemaError{Path: path, Msg: "custom node missing marshaller"}
		}
	}
	return nil
}

// Document is also a valid top-level Schema: "Schema node — a tagged variant
// describing how one field is marshalled" (section 3) applies recursively,
// so the type Schema is simply an alias for the Document's member map for
// callers building a whole-record schema.
type Schema = map[string]Node
