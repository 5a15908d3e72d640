// Package decimal implements the arbitrary-precision number model described
// in section 3 of the design specification: a lossless decimal string with
// numeric coercion.
package decimal

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Number is a DynamoDB-compatible decimal string. It never loses precision
// on its own; precision is only lost when a caller asks for a native numeric
// type via Int64 or Float64.
//
// Example:
//
//	n := decimal.NewFromInt(9007199254740993)
//	f, _ := n.Float64() // lossy: nearest representable float64
//	i, _ := n.Int64()   // exact
type Number string

// Zero is the canonical zero value.
const Zero Number = "0"

// NewFromInt creates a Number from an int64.
func NewFromInt(v int64) Number {
	return Number(strconv.FormatInt(v, 10))
}

// NewFromFloat creates a Number from a float64 using the shortest
// round-trippable decimal representation.
func NewFromFloat(v float64) Number {
	return Number(strconv.FormatFloat(v, 'f', -1, 64))
}

// Valid reports whether n parses as a DynamoDB-legal number string.
func (n Number) Valid() bool {
	if n == "" {
		return false
	}
	_, ok := new(big.Float).SetString(string(n))
	return ok
}

// Int64 coerces n to an int64. Returns an error if n is not integral or
// overflows int64.
func (n Number) Int64() (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decimal: %q is not a valid int64: %w", n, err)
	}
	return v, nil
}

// Float64 coerces n to a float64. This may lose precision for integers
// beyond the 2^53 safe-integer range; it is the "convenience loss-of-
// precision toggle" named in the design notes.
func (n Number) Float64() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		return 0, fmt.Errorf("decimal: %q is not a valid float64: %w", n, err)
	}
	return v, nil
}

// Big returns n as a *big.Float for callers that need full precision
// arithmetic without committing to native float loss.
func (n Number) Big() (*big.Float, error) {
	f, ok := new(big.Float).SetString(string(n))
	if !ok {
		return nil, fmt.Errorf("decimal: %q is not a valid number", n)
	}
	return f, nil
}

// Add returns the sum of n and delta, evaluated in arbitrary precision.
// Used by the schema-driven marshaller to increment version attributes
// (section 6) without the float-precision loss a native accumulator would
// introduce. When n is integral the addition is done with big.Int to stay
// exact; otherwise it falls back to big.Float.
func (n Number) Add(delta int64) (Number, error) {
	if base, ok := new(big.Int).SetString(strings.TrimSpace(string(n)), 10); ok {
		sum := new(big.Int).Add(base, big.NewInt(delta))
		return Number(sum.String()), nil
	}
	base, err := n.Big()
	if err != nil {
		return "", err
	}
	sum := new(big.Float).Add(base, big.NewFloat(float64(delta)))
	return Number(sum.Text('f', -1)), nil
}

// String implements fmt.Stringer.
func (n Number) String() string {
	return string(n)
}
