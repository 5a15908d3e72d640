package expression

import (
	awsexpr "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

// FromSDKExpression folds an already-built AWS SDK expression (condition,
// update, key condition, projection, or any combination thereof — the SDK's
// own Builder composes these) into acc, so that a query/scan/update call
// mixing SDK-built clauses with Accumulator-built ones still shares one
// placeholder counter and one names/values map.
//
// The upstream expression.Expression type does not expose placeholder
// identity the way section 4.3 requires (same path -> same placeholder
// across independent calls), so this adapter only imports its already-
// resolved names/values — it does not attempt to re-derive idempotent
// naming for paths that round-trip through the SDK builder a second time.
func FromSDKExpression(acc *Accumulator, expr awsexpr.Expression) {
	for ph, name := range expr.Names() {
		acc.names[ph] = name
		if acc.counter <= placeholderIndex(ph) {
			acc.counter = placeholderIndex(ph) + 1
		}
	}
	for ph, val := range expr.Values() {
		acc.values[ph] = val
		if acc.counter <= placeholderIndex(ph) {
			acc.counter = placeholderIndex(ph) + 1
		}
	}
}

// placeholderIndex extracts the numeric suffix from a #attrN or :valN
// placeholder, returning -1 if it doesn't parse (so the counter is left
// untouched).
func placeholderIndex(ph string) int {
	i := len(ph)
	for i > 0 && ph[i-1] >= '0' && ph[i-1] <= '9' {
		i--
	}
	if i == len(ph) {
		return -1
	}
	n := 0
	for _, c := range ph[i:] {
		n = n*10 + int(c-'0')
	}
	return n
}
