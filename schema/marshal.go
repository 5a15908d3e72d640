package schema

import (
	"fmt"
	"time"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/binaryset"
	"github.com/gurre/ddb-dam/decimal"
	"github.com/gurre/ddb-dam/marshal"
)

// Options is the schema-driven marshaller's policy set, identical in shape
// to the untyped marshaller's (section 4.4 applies to both).
type Options = marshal.Options

// Marshal runs a schema-directed marshal of input (keyed by schema field
// name) into an attrvalue.Item (keyed by wire attribute name), per section
// 4.4: "for each schema field, run the field's marshall rule on input[key]
// (or defaultProvider() if absent)".
func Marshal(s Schema, input map[string]any, opts Options) (attrvalue.Item, error) {
	out := make(attrvalue.Item, len(s))
	for field, node := range s {
		raw, present := input[field]
		if !present {
			dp := node.base().DefaultProvider
			if dp == nil {
				continue
			}
			v, err := dp()
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: default provider: %w", field, err)
			}
			raw = v
		}
		val, err := marshalNode(node, raw, opts, field)
		if err != nil {
			if err == errOmitField {
				continue
			}
			return nil, err
		}
		out[node.base().AttrName(field)] = val
	}
	return out, nil
}

// MarshalPartial runs a schema-directed marshal over only the fields
// input actually carries, skipping defaultProvider entirely: an absent
// field here means "leave it alone" or "remove it", never "fill in the
// default". Key fields are never part of the result — callers that need
// an update's partial record diffed against its schema (section 6's
// absent-property semantics) use absentWire, the wire names of every
// non-key schema field input did not supply.
func MarshalPartial(s Schema, input map[string]any, opts Options) (present attrvalue.Item, absentWire []string, err error) {
	present = make(attrvalue.Item, len(input))
	for field, node := range s {
		if node.base().Key.PrimaryRole != KeyRoleNone {
			continue
		}
		wireName := node.base().AttrName(field)
		raw, ok := input[field]
		if !ok {
			absentWire = append(absentWire, wireName)
			continue
		}
		val, err := marshalNode(node, raw, opts, field)
		if err != nil {
			if err == errOmitField {
				continue
			}
			return nil, nil, err
		}
		present[wireName] = val
	}
	return present, absentWire, nil
}

var errOmitField = fmt.Errorf("schema: omit field")

func marshalNode(n Node, v any, opts Options, path string) (attrvalue.Value, error) {
	switch t := n.(type) {
	case Binary:
		b, ok := v.([]byte)
		if !ok {
			return schemaInvalid(opts, path, "expected []byte")
		}
		if len(b) == 0 {
			return emptyPolicy(opts, attrvalue.Binary(nil))
		}
		return attrvalue.Binary(b), nil
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return schemaInvalid(opts, path, "expected bool")
		}
		return attrvalue.Bool(b), nil
	case Date:
		d, ok := v.(time.Time)
		if !ok {
			return schemaInvalid(opts, path, "expected time.Time")
		}
		return attrvalue.Number(decimal.NewFromInt(d.Unix())), nil
	case Null:
		return attrvalue.Null(), nil
	case NumberNode:
		n, err := coerceNumber(v)
		if err != nil {
			return schemaInvalid(opts, path, err.Error())
		}
		return attrvalue.Number(n), nil
	case StringNode:
		str, ok := v.(string)
		if !ok {
			return schemaInvalid(opts, path, "expected string")
		}
		if str == "" {
			return emptyPolicy(opts, attrvalue.String(""))
		}
		return attrvalue.String(str), nil
	case List:
		items, ok := v.([]any)
		if !ok {
			return schemaInvalid(opts, path, "expected []any")
		}
		out := make([]attrvalue.Value, 0, len(items))
		for i, e := range items {
			ev, err := marshalNode(t.MemberType, e, opts, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				if err == errOmitField {
					continue
				}
				return attrvalue.Value{}, err
			}
			out = append(out, ev)
		}
		return attrvalue.List(out), nil
	case MapNode:
		m, ok := v.(map[string]any)
		if !ok {
			return schemaInvalid(opts, path, "expected map[string]any")
		}
		out := make(attrvalue.Item, len(m))
		for k, e := range m {
			ev, err := marshalNode(t.MemberType, e, opts, path+"."+k)
			if err != nil {
				if err == errOmitField {
					continue
				}
				return attrvalue.Value{}, err
			}
			out[k] = ev
		}
		return attrvalue.Map(out), nil
	case SetNode:
		return marshalSet(t, v, opts, path)
	case Tuple:
		items, ok := v.([]any)
		if !ok {
			return schemaInvalid(opts, path, "expected []any")
		}
		if len(items) != len(t.Members) {
			return attrvalue.Value{}, &SchemaError{Path: path, Msg: fmt.Sprintf("tuple arity mismatch: want %d, got %d", len(t.Members), len(items))}
		}
		out := make([]attrvalue.Value, len(items))
		for i, e := range items {
			ev, err := marshalNode(t.Members[i], e, opts, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return attrvalue.Value{}, err
			}
			out[i] = ev
		}
		return attrvalue.List(out), nil
	case Document:
		m, ok := v.(map[string]any)
		if !ok {
			return schemaInvalid(opts, path, "expected map[string]any")
		}
		inner, err := Marshal(t.Members, m, opts)
		if err != nil {
			return attrvalue.Value{}, err
		}
		return attrvalue.Map(inner), nil
	case Collection, Hash:
		return marshal.Marshal(v, opts)
	case Custom:
		if t.Marshaller == nil {
			return attrvalue.Value{}, &SchemaError{Path: path, Msg: "custom node missing marshaller"}
		}
		return t.Marshaller.MarshalAttribute(v)
	default:
		return attrvalue.Value{}, &SchemaError{Path: path, Msg: fmt.Sprintf("unknown node tag %T", n)}
	}
}

func marshalSet(t SetNode, v any, opts Options, path string) (attrvalue.Value, error) {
	switch t.MemberType {
	case SetMemberString:
		ss, ok := v.([]string)
		if !ok {
			return schemaInvalid(opts, path, "expected []string")
		}
		if len(ss) == 0 {
			return emptyPolicy(opts, attrvalue.StringSet(nil))
		}
		return attrvalue.StringSet(ss), nil
	case SetMemberNumber:
		switch ns := v.(type) {
		case []decimal.Number:
			if len(ns) == 0 {
				return emptyPolicy(opts, attrvalue.NumberSet(nil))
			}
			return attrvalue.NumberSet(ns), nil
		case []string:
			out := make([]decimal.Number, len(ns))
			for i, s := range ns {
				out[i] = decimal.Number(s)
			}
			if len(out) == 0 {
				return emptyPolicy(opts, attrvalue.NumberSet(nil))
			}
			return attrvalue.NumberSet(out), nil
		default:
			return schemaInvalid(opts, path, "expected []decimal.Number")
		}
	case SetMemberBinary:
		s, ok := v.(*binaryset.Set)
		if !ok {
			return schemaInvalid(opts, path, "expected *binaryset.Set")
		}
		if s.Len() == 0 {
			return emptyPolicy(opts, attrvalue.Value{Kind: attrvalue.KindBinarySet})
		}
		return attrvalue.BinarySet(s), nil
	default:
		return attrvalue.Value{}, &SchemaError{Path: path, Msg: "invalid set member type"}
	}
}

func coerceNumber(v any) (decimal.Number, error) {
	switch t := v.(type) {
	case decimal.Number:
		return t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return "", fmt.Errorf("expected number, got %T", v)
	}
}

func schemaInvalid(opts Options, path, msg string) (attrvalue.Value, error) {
	if opts.OnInvalid == marshal.InvalidOmit {
		return attrvalue.Value{}, errOmitField
	}
	return attrvalue.Value{}, &marshal.ValueError{Path: path, Msg: msg}
}

func emptyPolicy(opts Options, zero attrvalue.Value) (attrvalue.Value, error) {
	switch opts.OnEmpty {
	case marshal.EmptyOmit:
		return attrvalue.Value{}, errOmitField
	case marshal.EmptyNullify:
		return attrvalue.Null(), nil
	default:
		return zero, nil
	}
}

// Unmarshal is the strict inverse of Marshal: for each schema field, locate
// its wire attribute in item and decode it per the field's node.
func Unmarshal(s Schema, item attrvalue.Item, opts Options) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for field, node := range s {
		wireName := node.base().AttrName(field)
		val, present := item[wireName]
		if !present {
			continue
		}
		uv, err := unmarshalNode(node, val, opts, field)
		if err != nil {
			return nil, err
		}
		out[field] = uv
	}
	return out, nil
}

func unmarshalNode(n Node, v attrvalue.Value, opts Options, path string) (any, error) {
	switch t := n.(type) {
	case Binary:
		return v.B, nil
	case Boolean:
		return v.Bool, nil
	case Date:
		sec, err := v.N.Int64()
		if err != nil {
			return nil, fmt.Errorf("schema: field %q: %w", path, err)
		}
		return time.Unix(sec, 0).UTC(), nil
	case Null:
		return nil, nil
	case NumberNode:
		if opts.UnwrapNumbers {
			return v.N.Float64()
		}
		return v.N, nil
	case StringNode:
		return v.S, nil
	case List:
		out := make([]any, len(v.L))
		for i, e := range v.L {
			uv, err := unmarshalNode(t.MemberType, e, opts, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = uv
		}
		return out, nil
	case MapNode:
		out := make(map[string]any, len(v.M))
		for k, e := range v.M {
			uv, err := unmarshalNode(t.MemberType, e, opts, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = uv
		}
		return out, nil
	case SetNode:
		switch t.MemberType {
		case SetMemberString:
			return v.SS, nil
		case SetMemberNumber:
			return v.NS, nil
		case SetMemberBinary:
			return binaryset.FromSlice(v.BS), nil
		}
		return nil, &SchemaError{Path: path, Msg: "invalid set member type"}
	case Tuple:
		out := make([]any, len(v.L))
		for i, e := range v.L {
			if i >= len(t.Members) {
				return nil, &SchemaError{Path: path, Msg: "tuple arity mismatch on unmarshal"}
			}
			uv, err := unmarshalNode(t.Members[i], e, opts, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = uv
		}
		return out, nil
	case Document:
		inner, err := Unmarshal(t.Members, v.M, opts)
		if err != nil {
			return nil, err
		}
		if t.ValueConstructor != nil {
			return t.ValueConstructor(inner)
		}
		return inner, nil
	case Collection, Hash:
		return marshal.Unmarshal(v, opts)
	case Custom:
		if t.Marshaller == nil {
			return nil, &SchemaError{Path: path, Msg: "custom node missing marshaller"}
		}
		return t.Marshaller.UnmarshalAttribute(v)
	default:
		return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("unknown node tag %T", n)}
	}
}
