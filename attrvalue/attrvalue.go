// Package attrvalue implements the attribute-value model described in
// section 3 of the design specification: a tagged union mirroring
// DynamoDB's wire shape, plus the conversions to and from the AWS SDK's
// own types.AttributeValue.
package attrvalue

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/ddb-dam/binaryset"
	"github.com/gurre/ddb-dam/decimal"
)

// Kind discriminates which field of a Value is populated.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBinary
	KindBool
	KindNull
	KindList
	KindMap
	KindStringSet
	KindNumberSet
	KindBinarySet
)

// Value is a tagged union with exactly one populated field, selected by Kind.
// It mirrors the wire model in section 6: S, N, B, SS, NS, BS, BOOL, NULL,
// L, M.
type Value struct {
	Kind Kind

	S    string
	N    decimal.Number
	B    []byte
	Bool bool
	// Null carries no payload; Kind == KindNull is sufficient.
	L  []Value
	M  Item
	SS []string
	NS []decimal.Number
	BS [][]byte
}

// Item is a string-keyed mapping from attribute name to attribute value,
// the "Item" of section 3.
type Item map[string]Value

// String builds a KindString Value.
func String(s string) Value { return Value{Kind: KindString, S: s} }

// Number builds a KindNumber Value from a decimal.Number.
func Number(n decimal.Number) Value { return Value{Kind: KindNumber, N: n} }

// Int builds a KindNumber Value from an int64.
func Int(v int64) Value { return Value{Kind: KindNumber, N: decimal.NewFromInt(v)} }

// Binary builds a KindBinary Value.
func Binary(b []byte) Value { return Value{Kind: KindBinary, B: b} }

// Bool builds a KindBool Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Null builds a KindNull Value.
func Null() Value { return Value{Kind: KindNull} }

// List builds a KindList Value.
func List(vs []Value) Value { return Value{Kind: KindList, L: vs} }

// Map builds a KindMap Value.
func Map(m Item) Value { return Value{Kind: KindMap, M: m} }

// StringSet builds a KindStringSet Value. The caller must ensure no
// duplicates or empty strings, per the set invariant in section 3.
func StringSet(ss []string) Value { return Value{Kind: KindStringSet, SS: ss} }

// NumberSet builds a KindNumberSet Value.
func NumberSet(ns []decimal.Number) Value { return Value{Kind: KindNumberSet, NS: ns} }

// BinarySet builds a KindBinarySet Value from a binaryset.Set, which already
// enforces byte-equality de-duplication and the no-empty-member rule.
func BinarySet(s *binaryset.Set) Value { return Value{Kind: KindBinarySet, BS: s.Slice()} }

// ToSDK converts a Value into the AWS SDK's types.AttributeValue.
func ToSDK(v Value) (types.AttributeValue, error) {
	switch v.Kind {
	case KindString:
		return &types.AttributeValueMemberS{Value: v.S}, nil
	case KindNumber:
		if !v.N.Valid() {
			return nil, fmt.Errorf("attrvalue: invalid number %q", v.N)
		}
		return &types.AttributeValueMemberN{Value: string(v.N)}, nil
	case KindBinary:
		return &types.AttributeValueMemberB{Value: v.B}, nil
	case KindBool:
		return &types.AttributeValueMemberBOOL{Value: v.Bool}, nil
	case KindNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case KindList:
		out := make([]types.AttributeValue, len(v.L))
		for i, e := range v.L {
			sv, err := ToSDK(e)
			if err != nil {
				return nil, fmt.Errorf("attrvalue: list index %d: %w", i, err)
			}
			out[i] = sv
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case KindMap:
		out := make(map[string]types.AttributeValue, len(v.M))
		for k, e := range v.M {
			sv, err := ToSDK(e)
			if err != nil {
				return nil, fmt.Errorf("attrvalue: map key %q: %w", k, err)
			}
			out[k] = sv
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	case KindStringSet:
		if err := checkNonEmptyUnique(v.SS); err != nil {
			return nil, fmt.Errorf("attrvalue: string set: %w", err)
		}
		return &types.AttributeValueMemberSS{Value: v.SS}, nil
	case KindNumberSet:
		strs := make([]string, len(v.NS))
		seen := make(map[string]struct{}, len(v.NS))
		for i, n := range v.NS {
			if n == "" {
				return nil, fmt.Errorf("attrvalue: number set: empty member")
			}
			if _, dup := seen[string(n)]; dup {
				return nil, fmt.Errorf("attrvalue: number set: duplicate member %q", n)
			}
			seen[string(n)] = struct{}{}
			strs[i] = string(n)
		}
		return &types.AttributeValueMemberNS{Value: strs}, nil
	case KindBinarySet:
		if len(v.BS) == 0 {
			return nil, fmt.Errorf("attrvalue: binary set: empty set")
		}
		return &types.AttributeValueMemberBS{Value: v.BS}, nil
	default:
		return nil, fmt.Errorf("attrvalue: unknown kind %d", v.Kind)
	}
}

func checkNonEmptyUnique(ss []string) error {
	seen := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		if s == "" {
			return fmt.Errorf("empty member")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate member %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// FromSDK converts an AWS SDK types.AttributeValue into a Value.
func FromSDK(av types.AttributeValue) (Value, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return String(t.Value), nil
	case *types.AttributeValueMemberN:
		return Number(decimal.Number(t.Value)), nil
	case *types.AttributeValueMemberB:
		return Binary(t.Value), nil
	case *types.AttributeValueMemberBOOL:
		return Bool(t.Value), nil
	case *types.AttributeValueMemberNULL:
		return Null(), nil
	case *types.AttributeValueMemberL:
		out := make([]Value, len(t.Value))
		for i, e := range t.Value {
			v, err := FromSDK(e)
			if err != nil {
				return Value{}, fmt.Errorf("attrvalue: list index %d: %w", i, err)
			}
			out[i] = v
		}
		return List(out), nil
	case *types.AttributeValueMemberM:
		out := make(Item, len(t.Value))
		for k, e := range t.Value {
			v, err := FromSDK(e)
			if err != nil {
				return Value{}, fmt.Errorf("attrvalue: map key %q: %w", k, err)
			}
			out[k] = v
		}
		return Map(out), nil
	case *types.AttributeValueMemberSS:
		return StringSet(t.Value), nil
	case *types.AttributeValueMemberNS:
		ns := make([]decimal.Number, len(t.Value))
		for i, n := range t.Value {
			ns[i] = decimal.Number(n)
		}
		return NumberSet(ns), nil
	case *types.AttributeValueMemberBS:
		return Value{Kind: KindBinarySet, BS: t.Value}, nil
	default:
		return Value{}, fmt.Errorf("attrvalue: unsupported SDK type %T", av)
	}
}

// ItemToSDK converts an Item into the SDK's map[string]types.AttributeValue.
func ItemToSDK(item Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		sv, err := ToSDK(v)
		if err != nil {
			return nil, fmt.Errorf("attrvalue: key %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

// ItemFromSDK converts an SDK map[string]types.AttributeValue into an Item.
func ItemFromSDK(m map[string]types.AttributeValue) (Item, error) {
	out := make(Item, len(m))
	for k, av := range m {
		v, err := FromSDK(av)
		if err != nil {
			return nil, fmt.Errorf("attrvalue: key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Equal compares two Values for deep equality, using byte-sequence equality
// for binary payloads and sets, per the set invariant in section 3.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindNumber:
		return a.N == b.N
	case KindBinary:
		return string(a.B) == string(b.B)
	case KindBool:
		return a.Bool == b.Bool
	case KindNull:
		return true
	case KindList:
		if len(a.L) != len(b.L) {
			return false
		}
		for i := range a.L {
			if !Equal(a.L[i], b.L[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.M) != len(b.M) {
			return false
		}
		for k, av := range a.M {
			bv, ok := b.M[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindStringSet:
		return equalSet(a.SS, b.SS)
	case KindNumberSet:
		as := make([]string, len(a.NS))
		for i, n := range a.NS {
			as[i] = string(n)
		}
		bs := make([]string, len(b.NS))
		for i, n := range b.NS {
			bs[i] = string(n)
		}
		return equalSet(as, bs)
	case KindBinarySet:
		as := make([]string, len(a.BS))
		for i, n := range a.BS {
			as[i] = string(n)
		}
		bs := make([]string, len(b.BS))
		for i, n := range b.BS {
			bs[i] = string(n)
		}
		return equalSet(as, bs)
	default:
		return false
	}
}

func equalSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
