package expression

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpdateClause is one SET/REMOVE/ADD/DELETE entry in an update expression.
type UpdateClause interface {
	serialize(acc *Accumulator) (clause string, err error)
	verb() string
}

type setClause struct {
	path string
	val  types.AttributeValue
}

func (s setClause) verb() string { return "SET" }
func (s setClause) serialize(acc *Accumulator) (string, error) {
	name, err := acc.AddName(s.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", name, acc.AddValue(s.val)), nil
}

// Set builds a SET path = value clause.
func Set(path string, val types.AttributeValue) UpdateClause { return setClause{path, val} }

type addClause struct {
	path string
	val  types.AttributeValue
}

func (a addClause) verb() string { return "ADD" }
func (a addClause) serialize(acc *Accumulator) (string, error) {
	name, err := acc.AddName(a.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", name, acc.AddValue(a.val)), nil
}

// Add builds an ADD path value clause, used for version-attribute increments
// (section 6) and numeric/set accumulation.
func Add(path string, val types.AttributeValue) UpdateClause { return addClause{path, val} }

type removeClause struct{ path string }

func (r removeClause) verb() string { return "REMOVE" }
func (r removeClause) serialize(acc *Accumulator) (string, error) {
	return acc.AddName(r.path)
}

// Remove builds a REMOVE path clause.
func Remove(path string) UpdateClause { return removeClause{path} }

type deleteClause struct {
	path string
	val  types.AttributeValue
}

func (d deleteClause) verb() string { return "DELETE" }
func (d deleteClause) serialize(acc *Accumulator) (string, error) {
	name, err := acc.AddName(d.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", name, acc.AddValue(d.val)), nil
}

// DeleteMember builds a DELETE path value clause for removing a specific
// element from a set attribute.
func DeleteMember(path string, val types.AttributeValue) UpdateClause {
	return deleteClause{path, val}
}

// SerializeUpdate renders a mixed list of update clauses into one
// UpdateExpression string, grouping by verb in the fixed order SET, REMOVE,
// ADD, DELETE as DynamoDB requires each verb keyword to appear at most once.
func SerializeUpdate(clauses []UpdateClause) (expr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	acc := NewAccumulator()
	groups := map[string][]string{}
	order := []string{"SET", "REMOVE", "ADD", "DELETE"}
	for _, c := range clauses {
		s, err := c.serialize(acc)
		if err != nil {
			return "", nil, nil, err
		}
		groups[c.verb()] = append(groups[c.verb()], s)
	}
	var parts []string
	for _, verb := range order {
		if len(groups[verb]) == 0 {
			continue
		}
		parts = append(parts, verb+" "+strings.Join(groups[verb], ", "))
	}
	return strings.Join(parts, " "), acc.Names(), acc.Values(), nil
}

// SerializeUpdateWithCondition renders an update expression and a condition
// expression sharing one Accumulator, so a path referenced by both (e.g. a
// version attribute checked by the condition and bumped by the update)
// resolves to the same placeholder instead of colliding under two
// independently-started counters. Used by the data mapper facade's
// version-attribute Update path (section 6).
func SerializeUpdateWithCondition(clauses []UpdateClause, cond Condition) (updateExpr, conditionExpr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	acc := NewAccumulator()
	groups := map[string][]string{}
	order := []string{"SET", "REMOVE", "ADD", "DELETE"}
	for _, c := range clauses {
		s, err := c.serialize(acc)
		if err != nil {
			return "", "", nil, nil, err
		}
		groups[c.verb()] = append(groups[c.verb()], s)
	}
	var parts []string
	for _, verb := range order {
		if len(groups[verb]) == 0 {
			continue
		}
		parts = append(parts, verb+" "+strings.Join(groups[verb], ", "))
	}
	updateExpr = strings.Join(parts, " ")

	if cond != nil {
		conditionExpr, err = cond.Serialize(acc)
		if err != nil {
			return "", "", nil, nil, err
		}
	}
	return updateExpr, conditionExpr, acc.Names(), acc.Values(), nil
}

// SerializeProjection renders a list of attribute paths into a
// ProjectionExpression string and its ExpressionAttributeNames map, per the
// projection-expression boundary named in section 4.3.
func SerializeProjection(paths []string) (expr string, names map[string]string, err error) {
	acc := NewAccumulator()
	parts := make([]string, len(paths))
	for i, p := range paths {
		name, err := acc.AddName(p)
		if err != nil {
			return "", nil, err
		}
		parts[i] = name
	}
	return strings.Join(parts, ", "), acc.Names(), nil
}
