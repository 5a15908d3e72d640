// Package marshal implements the untyped (schemaless) marshaller described
// in section 4.4 (component D) of the design specification: a reversible
// mapping between Go values and attrvalue.Item, inferring the wire tag from
// the value's static Go type rather than duck-typing a dynamic language's
// runtime shape (see design notes: "the schemaless path accepts an explicit
// tagged input, and users pass concrete container types").
package marshal

import (
	"fmt"
	"math"
	"time"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/binaryset"
	"github.com/gurre/ddb-dam/decimal"
)

// EmptyPolicy controls how empty strings, zero-length buffers, and empty
// sets are treated, per section 4.4.
type EmptyPolicy int

const (
	EmptyLeave EmptyPolicy = iota
	EmptyOmit
	EmptyNullify
)

// InvalidPolicy controls how values that cannot be mapped are treated, per
// section 4.4.
type InvalidPolicy int

const (
	InvalidThrow InvalidPolicy = iota
	InvalidOmit
)

// Options carries the marshaller's configurable policies from section 4.4.
type Options struct {
	OnEmpty       EmptyPolicy
	OnInvalid     InvalidPolicy
	UnwrapNumbers bool
}

// ValueError reports a value that could not be mapped to or from the wire
// model, per section 7's "Value errors" category.
type ValueError struct {
	Path string
	Msg  string
}

func (e *ValueError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("marshal: %s", e.Msg)
	}
	return fmt.Sprintf("marshal: %s: %s", e.Path, e.Msg)
}

// sentinel signalling "omit this field" rather than a failure. MarshalItem
// and the container cases drop the field when they see it; the top-level
// Marshal returns it to its caller together with a Null value.
type omitSignal struct{}

func (omitSignal) Error() string { return "marshal: omit" }

var errOmit error = omitSignal{}

// Marshal infers an attrvalue.Value from v's runtime Go type.
func Marshal(v any, opts Options) (attrvalue.Value, error) {
	val, err := marshalAny(v, opts, "$")
	if err != nil {
		if err == errOmit {
			return attrvalue.Null(), err
		}
		return attrvalue.Value{}, err
	}
	return val, nil
}

// MarshalItem marshals every entry of m into an attrvalue.Item, applying
// OnEmpty/OnInvalid per field.
func MarshalItem(m map[string]any, opts Options) (attrvalue.Item, error) {
	out := make(attrvalue.Item, len(m))
	for k, v := range m {
		val, err := marshalAny(v, opts, k)
		if err != nil {
			if err == errOmit {
				continue
			}
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func marshalAny(v any, opts Options, path string) (attrvalue.Value, error) {
	switch t := v.(type) {
	case nil:
		return attrvalue.Null(), nil
	case attrvalue.Value:
		return t, nil
	case string:
		if t == "" {
			return handleEmpty(opts, path, attrvalue.String(""))
		}
		return attrvalue.String(t), nil
	case bool:
		return attrvalue.Bool(t), nil
	case []byte:
		if len(t) == 0 {
			return handleEmpty(opts, path, attrvalue.Binary(nil))
		}
		return attrvalue.Binary(t), nil
	case decimal.Number:
		return attrvalue.Number(t), nil
	case int:
		return attrvalue.Int(int64(t)), nil
	case int32:
		return attrvalue.Int(int64(t)), nil
	case int64:
		return attrvalue.Int(t), nil
	case float32:
		return attrvalue.Number(decimal.NewFromFloat(float64(t))), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return invalid(opts, path, "non-finite float")
		}
		return attrvalue.Number(decimal.NewFromFloat(t)), nil
	case time.Time:
		return attrvalue.Number(decimal.NewFromInt(t.Unix())), nil
	case *binaryset.Set:
		if t.Len() == 0 {
			return handleEmpty(opts, path, attrvalue.Value{Kind: attrvalue.KindBinarySet})
		}
		return attrvalue.BinarySet(t), nil
	case []string:
		if len(t) == 0 {
			return handleEmpty(opts, path, attrvalue.StringSet(nil))
		}
		return attrvalue.StringSet(t), nil
	case []decimal.Number:
		if len(t) == 0 {
			return handleEmpty(opts, path, attrvalue.NumberSet(nil))
		}
		return attrvalue.NumberSet(t), nil
	case []any:
		out := make([]attrvalue.Value, 0, len(t))
		for i, e := range t {
			ev, err := marshalAny(e, opts, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				if err == errOmit {
					continue
				}
				return attrvalue.Value{}, err
			}
			out = append(out, ev)
		}
		return attrvalue.List(out), nil
	case map[string]any:
		out := make(attrvalue.Item, len(t))
		for k, e := range t {
			ev, err := marshalAny(e, opts, path+"."+k)
			if err != nil {
				if err == errOmit {
					continue
				}
				return attrvalue.Value{}, err
			}
			out[k] = ev
		}
		return attrvalue.Map(out), nil
	default:
		return invalid(opts, path, fmt.Sprintf("unsupported type %T", v))
	}
}

func handleEmpty(opts Options, path string, zero attrvalue.Value) (attrvalue.Value, error) {
	switch opts.OnEmpty {
	case EmptyOmit:
		return attrvalue.Value{}, errOmit
	case EmptyNullify:
		return attrvalue.Null(), nil
	default:
		return zero, nil
	}
}

func invalid(opts Options, path, msg string) (attrvalue.Value, error) {
	if opts.OnInvalid == InvalidOmit {
		return attrvalue.Value{}, errOmit
	}
	return attrvalue.Value{}, &ValueError{Path: path, Msg: msg}
}

// Unmarshal is the strict inverse of Marshal.
func Unmarshal(v attrvalue.Value, opts Options) (any, error) {
	switch v.Kind {
	case attrvalue.KindString:
		return v.S, nil
	case attrvalue.KindNumber:
		if opts.UnwrapNumbers {
			f, err := v.N.Float64()
			if err != nil {
				return nil, &ValueError{Msg: err.Error()}
			}
			return f, nil
		}
		return v.N, nil
	case attrvalue.KindBinary:
		return v.B, nil
	case attrvalue.KindBool:
		return v.Bool, nil
	case attrvalue.KindNull:
		return nil, nil
	case attrvalue.KindList:
		out := make([]any, len(v.L))
		for i, e := range v.L {
			uv, err := Unmarshal(e, opts)
			if err != nil {
				return nil, err
			}
			out[i] = uv
		}
		return out, nil
	case attrvalue.KindMap:
		out := make(map[string]any, len(v.M))
		for k, e := range v.M {
			uv, err := Unmarshal(e, opts)
			if err != nil {
				return nil, err
			}
			out[k] = uv
		}
		return out, nil
	case attrvalue.KindStringSet:
		return v.SS, nil
	case attrvalue.KindNumberSet:
		if opts.UnwrapNumbers {
			out := make([]float64, len(v.NS))
			for i, n := range v.NS {
				f, err := n.Float64()
				if err != nil {
					return nil, &ValueError{Msg: err.Error()}
				}
				out[i] = f
			}
			return out, nil
		}
		return v.NS, nil
	case attrvalue.KindBinarySet:
		return binaryset.FromSlice(v.BS), nil
	default:
		return nil, &ValueError{Msg: fmt.Sprintf("unknown kind %d", v.Kind)}
	}
}

// UnmarshalItem is the strict inverse of MarshalItem.
func UnmarshalItem(item attrvalue.Item, opts Options) (map[string]any, error) {
	out := make(map[string]any, len(item))
	for k, v := range item {
		uv, err := Unmarshal(v, opts)
		if err != nil {
			return nil, fmt.Errorf("marshal: key %q: %w", k, err)
		}
		out[k] = uv
	}
	return out, nil
}
