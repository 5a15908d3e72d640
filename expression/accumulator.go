// Package expression implements the expression-attribute accumulator and
// attribute-path parser described in section 4.3 (component F, boundary
// only) of the design specification: a write-only accumulator that converts
// an attribute path and a user value into substitution placeholders, backed
// by the AWS SDK's own expression-building package for condition/update/
// projection serialization where its grammar matches.
package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Accumulator holds the names and values maps assembled across one or more
// calls, each gaining a new placeholder drawn from a single monotonically
// increasing counter shared across names and values, per section 4.3.
//
// Example:
//
//	acc := expression.NewAccumulator()
//	name, _ := acc.AddName("foo")  // "#attr0"
//	val := acc.AddValue(oneAV)     // ":val1"
//	again, _ := acc.AddName("foo") // "#attr0" again — same path, same placeholder
type Accumulator struct {
	counter int
	names   map[string]string // placeholder -> resolved attribute name
	byPath  map[string]string // path -> placeholder, for idempotent naming
	values  map[string]types.AttributeValue
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		names:  make(map[string]string),
		byPath: make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// AddName registers path (section 6's attribute-path grammar) and returns
// its placeholder. The same path always returns the same placeholder,
// satisfying the idempotent-naming property in section 8.
func (a *Accumulator) AddName(path string) (string, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return "", fmt.Errorf("expression: %w", err)
	}
	canonical := strings.Join(segments, "\x00")
	if ph, ok := a.byPath[canonical]; ok {
		return ph, nil
	}
	// Each segment gets its own #attrN token; list indices are emitted
	// literally since DynamoDB does not allow substituting them.
	var parts []string
	for _, seg := range segments {
		if isIndex(seg) {
			parts = append(parts, "["+seg+"]")
			continue
		}
		ph := fmt.Sprintf("#attr%d", a.counter)
		a.counter++
		a.names[ph] = seg
		parts = append(parts, ph)
	}
	full := joinPath(parts)
	a.byPath[canonical] = full
	return full, nil
}

// AddValue registers v and returns its placeholder. Values are never
// deduplicated, per section 4.3.
func (a *Accumulator) AddValue(v types.AttributeValue) string {
	ph := fmt.Sprintf(":val%d", a.counter)
	a.counter++
	a.values[ph] = v
	return ph
}

// Names returns the accumulated ExpressionAttributeNames map.
func (a *Accumulator) Names() map[string]string {
	return a.names
}

// Values returns the accumulated ExpressionAttributeValues map.
func (a *Accumulator) Values() map[string]types.AttributeValue {
	return a.values
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func joinPath(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if strings.HasPrefix(p, "[") {
			b.WriteString(p)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

// ParsePath parses an attribute path per section 6's grammar:
//
//	segment(.segment|[digits])*
//
// where segment is an identifier and backslash escapes '.', '[', and '\'
// inside a segment. A list index must match \d+; any other character
// inside brackets, or a bare identifier immediately after a list index
// without a separator, is an error.
func ParsePath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty attribute path")
	}
	var segments []string
	var cur strings.Builder
	i := 0
	afterIndex := false
	for i < len(path) {
		c := path[i]
		switch c {
		case '\\':
			if i+1 >= len(path) {
				return nil, fmt.Errorf("dangling escape at position %d", i)
			}
			next := path[i+1]
			if next != '.' && next != '[' && next != '\\' {
				return nil, fmt.Errorf("invalid escape '\\%c' at position %d", next, i)
			}
			cur.WriteByte(next)
			i += 2
			afterIndex = false
		case '.':
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			} else if !afterIndex {
				return nil, fmt.Errorf("empty segment before '.' at position %d", i)
			}
			i++
			afterIndex = false
		case '[':
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated '[' at position %d", i)
			}
			digits := path[i+1 : i+end]
			if digits == "" || !isIndex(digits) {
				return nil, fmt.Errorf("invalid list index %q at position %d", digits, i)
			}
			if _, err := strconv.Atoi(digits); err != nil {
				return nil, fmt.Errorf("invalid list index %q: %w", digits, err)
			}
			segments = append(segments, digits)
			i += end + 1
			afterIndex = true
		default:
			if afterIndex {
				return nil, fmt.Errorf("identifier directly after list index without separator at position %d", i)
			}
			cur.WriteByte(c)
			i++
		}
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	} else if afterIndex {
		// trailing index is fine, nothing left to flush
	} else {
		return nil, fmt.Errorf("empty segment at end of path")
	}
	return segments, nil
}
