// Package mapper implements the data mapper facade described in section 4.5
// (component I) of the design specification: a convenience composition of
// the schema-driven marshaller, the expression builder, the batch engine,
// and the paginator family behind a conventional Get/Put/Delete/Update/
// Query/Scan/ParallelScan surface. Section 1's Non-goals name this facade
// as outside the core's focus, but the core components it wraps still do
// all the work — this package only wires them together.
package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/decimal"
	"github.com/gurre/ddb-dam/expression"
	"github.com/gurre/ddb-dam/schema"

	"github.com/gurre/ddb-dam/awsx"
)

// ErrItemNotFound is returned by Get when the item does not exist.
var ErrItemNotFound = errors.New("mapper: item not found")

// ErrVersionConflict is returned by Put when a version-attribute condition
// check fails against the server's current value. Update does not check or
// increment the version attribute, and reports a failed condition as
// ErrItemNotFound.
var ErrVersionConflict = errors.New("mapper: version conflict")

// OnMissing selects how Update treats schema fields the update record does
// not carry a value for — section 6's absent-property semantics. It says
// nothing about whether the item itself exists.
type OnMissing int

const (
	// OnMissingRemove clears every non-key schema field absent from the
	// update record with a REMOVE clause.
	OnMissingRemove OnMissing = iota
	// OnMissingSkip leaves whatever is already stored for an absent field
	// untouched; only the fields the record supplies are written.
	OnMissingSkip
)

// Mapper composes a schema, a table name, and a transport client into the
// Get/Put/Delete/Update/Query/Scan/ParallelScan surface.
type Mapper struct {
	client awsx.DynamoDBClient
	table  string
	schema schema.Schema
	opts   schema.Options

	partitionKeyField string
	versionField      string
}

// New builds a Mapper. It scans s once for the partition-key field and an
// optional version-attribute field.
func New(client awsx.DynamoDBClient, table string, s schema.Schema, opts schema.Options) (*Mapper, error) {
	if err := validateDocument(s); err != nil {
		return nil, err
	}
	m := &Mapper{client: client, table: table, schema: s, opts: opts}
	for field, node := range s {
		base := node.base()
		if base.Key.PrimaryRole == schema.KeyRolePartition {
			m.partitionKeyField = field
		}
		if num, ok := node.(schema.NumberNode); ok && num.VersionAttribute {
			m.versionField = field
		}
	}
	return m, nil
}

func validateDocument(s schema.Schema) error {
	for field, node := range s {
		if err := schema.Validate(node); err != nil {
			return fmt.Errorf("mapper: field %q: %w", field, err)
		}
	}
	return nil
}

func (m *Mapper) keyItem(keyInput map[string]any) (attrvalue.Item, error) {
	keySchema := make(schema.Schema)
	for field, node := range m.schema {
		if node.base().Key.PrimaryRole != schema.KeyRoleNone {
			keySchema[field] = node
		}
	}
	return schema.Marshal(keySchema, keyInput, m.opts)
}

// Get fetches one item by key. keyInput carries only the partition-key
// (and, if present, sort-key) fields.
func (m *Mapper) Get(ctx context.Context, keyInput map[string]any) (map[string]any, error) {
	keyItem, err := m.keyItem(keyInput)
	if err != nil {
		return nil, err
	}
	sdkKey, err := attrvalue.ItemToSDK(keyItem)
	if err != nil {
		return nil, err
	}

	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &m.table,
		Key:       sdkKey,
	})
	if err != nil {
		return nil, fmt.Errorf("mapper: GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrItemNotFound
	}
	item, err := attrvalue.ItemFromSDK(out.Item)
	if err != nil {
		return nil, err
	}
	return schema.Unmarshal(m.schema, item, m.opts)
}

// Put writes a full item. If the schema declares a version attribute and
// input does not carry a value for it, the put is conditioned on
// attribute_not_exists(partitionKey) and the version is initialized to 1.
// If input does carry a version value, the put is conditioned on the
// server's current value equaling it, and the stored value is incremented
// by one — section 6's optimistic-concurrency rule.
func (m *Mapper) Put(ctx context.Context, input map[string]any) (map[string]any, error) {
	var conditionExpr *string
	var names map[string]string
	var values map[string]types.AttributeValue

	toMarshal := input
	if m.versionField != "" {
		toMarshal = cloneMap(input)
		current, hasVersion := input[m.versionField]
		pkNode := m.schema[m.partitionKeyField]
		pkWire := pkNode.base().AttrName(m.partitionKeyField)
		verNode := m.schema[m.versionField]
		verWire := verNode.base().AttrName(m.versionField)

		if !hasVersion {
			toMarshal[m.versionField] = int64(1)
			cond := expression.AttributeNotExists(pkWire)
			expr, n, v, err := expression.Serialize(cond)
			if err != nil {
				return nil, err
			}
			conditionExpr, names, values = &expr, n, v
		} else {
			currentNum, err := coerceNumber(current)
			if err != nil {
				return nil, fmt.Errorf("mapper: version field %q: %w", m.versionField, err)
			}
			next, err := currentNum.Add(1)
			if err != nil {
				return nil, fmt.Errorf("mapper: version field %q: %w", m.versionField, err)
			}
			toMarshal[m.versionField] = next
			cond := expression.EQ(verWire, &types.AttributeValueMemberN{Value: string(currentNum)})
			expr, n, v, err := expression.Serialize(cond)
			if err != nil {
				return nil, err
			}
			conditionExpr, names, values = &expr, n, v
		}
	}

	item, err := schema.Marshal(m.schema, toMarshal, m.opts)
	if err != nil {
		return nil, err
	}
	sdkItem, err := attrvalue.ItemToSDK(item)
	if err != nil {
		return nil, err
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 &m.table,
		Item:                      sdkItem,
		ConditionExpression:       conditionExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("mapper: PutItem: %w", err)
	}

	return schema.Unmarshal(m.schema, item, m.opts)
}

// Delete removes one item by key.
func (m *Mapper) Delete(ctx context.Context, keyInput map[string]any) error {
	keyItem, err := m.keyItem(keyInput)
	if err != nil {
		return err
	}
	sdkKey, err := attrvalue.ItemToSDK(keyItem)
	if err != nil {
		return err
	}
	_, err = m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &m.table,
		Key:       sdkKey,
	})
	if err != nil {
		return fmt.Errorf("mapper: DeleteItem: %w", err)
	}
	return nil
}

// Update applies a partial record to one item by key: every non-key schema
// field record carries a value for is SET to that value; fields record
// does not carry are handled per onMissing (OnMissingRemove clears them,
// OnMissingSkip leaves the stored value untouched). Key fields in record
// are ignored — the key is taken from keyInput.
func (m *Mapper) Update(ctx context.Context, keyInput map[string]any, record map[string]any, onMissing OnMissing) error {
	clauses, err := m.updateClauses(record, onMissing)
	if err != nil {
		return err
	}
	return m.updateItem(ctx, keyInput, clauses, nil)
}

// UpdateWithClauses applies caller-built update clauses verbatim, bypassing
// schema-driven absent-property inference. cond, if non-nil, is attached as
// the update's condition expression (callers that need an
// attribute_exists/attribute_not_exists guard on the item itself build one
// with the expression package and pass it here).
func (m *Mapper) UpdateWithClauses(ctx context.Context, keyInput map[string]any, clauses []expression.UpdateClause, cond expression.Condition) error {
	return m.updateItem(ctx, keyInput, clauses, cond)
}

func (m *Mapper) updateItem(ctx context.Context, keyInput map[string]any, clauses []expression.UpdateClause, cond expression.Condition) error {
	keyItem, err := m.keyItem(keyInput)
	if err != nil {
		return err
	}
	sdkKey, err := attrvalue.ItemToSDK(keyItem)
	if err != nil {
		return err
	}

	updateExpr, conditionExpr, names, values, err := expression.SerializeUpdateWithCondition(clauses, cond)
	if err != nil {
		return err
	}
	var condPtr *string
	if conditionExpr != "" {
		condPtr = &conditionExpr
	}

	_, err = m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &m.table,
		Key:                       sdkKey,
		UpdateExpression:          &updateExpr,
		ConditionExpression:       condPtr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrItemNotFound
		}
		return fmt.Errorf("mapper: UpdateItem: %w", err)
	}
	return nil
}

// updateClauses diffs record against the schema: present fields become SET
// clauses, absent non-key fields become REMOVE clauses under
// OnMissingRemove or are dropped entirely under OnMissingSkip.
func (m *Mapper) updateClauses(record map[string]any, onMissing OnMissing) ([]expression.UpdateClause, error) {
	present, absentWire, err := schema.MarshalPartial(m.schema, record, m.opts)
	if err != nil {
		return nil, err
	}
	clauses := make([]expression.UpdateClause, 0, len(present)+len(absentWire))
	for wire, val := range present {
		sdkVal, err := attrvalue.ToSDK(val)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, expression.Set(wire, sdkVal))
	}
	if onMissing == OnMissingRemove {
		for _, wire := range absentWire {
			clauses = append(clauses, expression.Remove(wire))
		}
	}
	return clauses, nil
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

func isConditionalCheckFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ConditionalCheckFailedException"
	}
	return false
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
