package expression

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a node in the boolean condition-expression tree from section
// 4.3. Serialize walks the tree, calling into an Accumulator for every
// attribute path and literal value it touches.
type Condition interface {
	Serialize(acc *Accumulator) (string, error)
}

type comparison struct {
	path string
	op   string
	val  types.AttributeValue
}

func (c comparison) Serialize(acc *Accumulator) (string, error) {
	name, err := acc.AddName(c.path)
	if err != nil {
		return "", err
	}
	val := acc.AddValue(c.val)
	return fmt.Sprintf("%s %s %s", name, c.op, val), nil
}

// EQ builds a path = value condition.
func EQ(path string, val types.AttributeValue) Condition { return comparison{path, "=", val} }

// NE builds a path <> value condition.
func NE(path string, val types.AttributeValue) Condition { return comparison{path, "<>", val} }

// LT builds a path < value condition.
func LT(path string, val types.AttributeValue) Condition { return comparison{path, "<", val} }

// LTE builds a path <= value condition.
func LTE(path string, val types.AttributeValue) Condition { return comparison{path, "<=", val} }

// GT builds a path > value condition.
func GT(path string, val types.AttributeValue) Condition { return comparison{path, ">", val} }

// GTE builds a path >= value condition.
func GTE(path string, val types.AttributeValue) Condition { return comparison{path, ">=", val} }

type boolGroup struct {
	op         string
	conditions []Condition
}

func (g boolGroup) Serialize(acc *Accumulator) (string, error) {
	parts := make([]string, len(g.conditions))
	for i, c := range g.conditions {
		s, err := c.Serialize(acc)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " "+g.op+" "), nil
}

// And combines conditions with AND.
func And(conditions ...Condition) Condition { return boolGroup{"AND", conditions} }

// Or combines conditions with OR.
func Or(conditions ...Condition) Condition { return boolGroup{"OR", conditions} }

type notCondition struct{ inner Condition }

func (n notCondition) Serialize(acc *Accumulator) (string, error) {
	s, err := n.inner.Serialize(acc)
	if err != nil {
		return "", err
	}
	return "NOT (" + s + ")", nil
}

// Not negates a condition.
func Not(c Condition) Condition { return notCondition{c} }

type functionCondition struct {
	name string
	path string
	args []types.AttributeValue
}

func (f functionCondition) Serialize(acc *Accumulator) (string, error) {
	name, err := acc.AddName(f.path)
	if err != nil {
		return "", err
	}
	parts := []string{name}
	for _, a := range f.args {
		parts = append(parts, acc.AddValue(a))
	}
	return fmt.Sprintf("%s(%s)", f.name, strings.Join(parts, ", ")), nil
}

// AttributeExists builds attribute_exists(path).
func AttributeExists(path string) Condition { return functionCondition{"attribute_exists", path, nil} }

// AttributeNotExists builds attribute_not_exists(path) — the condition the
// data mapper facade attaches to a first Put of a version-attribute record,
// per section 6.
func AttributeNotExists(path string) Condition {
	return functionCondition{"attribute_not_exists", path, nil}
}

// BeginsWith builds begins_with(path, value).
func BeginsWith(path string, prefix types.AttributeValue) Condition {
	return functionCondition{"begins_with", path, []types.AttributeValue{prefix}}
}

// Contains builds contains(path, value).
func Contains(path string, val types.AttributeValue) Condition {
	return functionCondition{"contains", path, []types.AttributeValue{val}}
}

// Serialize renders a Condition tree to its wire string plus the accumulated
// names/values maps, matching the worked example in section 8.
func Serialize(c Condition) (expr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	acc := NewAccumulator()
	expr, err = c.Serialize(acc)
	if err != nil {
		return "", nil, nil, err
	}
	return expr, acc.Names(), acc.Values(), nil
}
