package mapper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/gurre/ddb-dam/expression"
	"github.com/gurre/ddb-dam/schema"
)

// fakeClient is a minimal single-table in-memory stand-in for exercising
// Mapper's Get/Put/Delete/Update paths, including conditional-write
// rejection.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue // composite key "pk" -> item
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["pk"].(*types.AttributeValueMemberS).Value
}

func condFailErr() error {
	return &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "condition failed"}
}

func (f *fakeClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[keyOf(in.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Item)
	if in.ConditionExpression != nil {
		expr := *in.ConditionExpression
		existing, exists := f.items[k]
		// Only the two shapes the mapper ever builds appear here: an
		// attribute_not_exists(#attr0) check, or a #attr0 = :val1 check.
		switch {
		case containsAttributeNotExists(expr):
			if exists {
				return nil, condFailErr()
			}
		default:
			name := in.ExpressionAttributeNames["#attr0"]
			want := in.ExpressionAttributeValues[":val1"]
			if !exists || !attrEqual(existing[name], want) {
				return nil, condFailErr()
			}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	existing, exists := f.items[k]
	if in.ConditionExpression != nil && !exists {
		return nil, condFailErr()
	}
	item := map[string]types.AttributeValue{}
	if exists {
		for kk, vv := range existing {
			item[kk] = vv
		}
	} else {
		for kk, vv := range in.Key {
			item[kk] = vv
		}
	}
	if in.UpdateExpression != nil {
		applyUpdateExpression(item, *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	}
	f.items[k] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

// applyUpdateExpression is a minimal interpreter for the SET/REMOVE shapes
// Mapper.Update and Mapper.UpdateWithClauses ever emit, enough to exercise
// their effect on a stored item without a real DynamoDB behind the fake.
func applyUpdateExpression(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	for verb, body := range splitUpdateSections(expr) {
		for _, clause := range strings.Split(body, ", ") {
			switch verb {
			case "SET":
				parts := strings.SplitN(clause, " = ", 2)
				name := names[strings.TrimSpace(parts[0])]
				item[name] = values[strings.TrimSpace(parts[1])]
			case "REMOVE":
				delete(item, names[strings.TrimSpace(clause)])
			}
		}
	}
}

func splitUpdateSections(expr string) map[string]string {
	out := map[string]string{}
	if expr == "" {
		return out
	}
	type hit struct {
		verb string
		idx  int
	}
	var hits []hit
	for _, v := range []string{"SET ", "REMOVE ", "ADD ", "DELETE "} {
		if i := strings.Index(expr, v); i >= 0 {
			hits = append(hits, hit{v, i})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].idx < hits[j].idx })
	for i, h := range hits {
		end := len(expr)
		if i+1 < len(hits) {
			end = hits[i+1].idx
		}
		out[strings.TrimSpace(h.verb)] = strings.TrimSpace(expr[h.idx+len(h.verb) : end])
	}
	return out
}

func (f *fakeClient) BatchGetItem(context.Context, *dynamodb.BatchGetItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func containsAttributeNotExists(expr string) bool {
	for i := 0; i+len("attribute_not_exists") <= len(expr); i++ {
		if expr[i:i+len("attribute_not_exists")] == "attribute_not_exists" {
			return true
		}
	}
	return false
}

func attrEqual(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	return aok && bok && an.Value == bn.Value
}

func testSchema() schema.Schema {
	return schema.Schema{
		"id": schema.StringNode{Base: schema.Base{Key: schema.KeyConfig{PrimaryRole: schema.KeyRolePartition}}},
		"version": schema.NumberNode{
			Base:             schema.Base{AttributeName: "ver"},
			VersionAttribute: true,
		},
		"name": schema.StringNode{},
	}
}

func TestMapperPutGetRoundTrip(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", schema.Schema{
		"id":   schema.StringNode{Base: schema.Base{Key: schema.KeyConfig{PrimaryRole: schema.KeyRolePartition}}},
		"name": schema.StringNode{},
	}, schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "widget"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["name"] != "widget" {
		t.Fatalf("got name %v, want widget", got["name"])
	}
}

func TestMapperGetMissingReturnsErrItemNotFound(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", schema.Schema{
		"id": schema.StringNode{Base: schema.Base{Key: schema.KeyConfig{PrimaryRole: schema.KeyRolePartition}}},
	}, schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = m.Get(context.Background(), map[string]any{"id": "missing"})
	if err != ErrItemNotFound {
		t.Fatalf("got %v, want ErrItemNotFound", err)
	}
}

func TestMapperVersionedPutRejectsOverwriteWithoutVersion(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", testSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "v1"}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	// Second put without a version value collides with the
	// attribute_not_exists(pk) condition from the first insert.
	_, err = m.Put(ctx, map[string]any{"id": "a", "name": "v2"})
	if err != ErrVersionConflict {
		t.Fatalf("got %v, want ErrVersionConflict", err)
	}
}

func TestMapperVersionedPutIncrementsOnMatch(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", testSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "v1"}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	first, err := m.Get(ctx, map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	second, err := m.Put(ctx, map[string]any{"id": "a", "name": "v2", "version": first["version"]})
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if second["version"] == first["version"] {
		t.Fatalf("expected version to increment, stayed at %v", first["version"])
	}

	// A stale version value now fails.
	_, err = m.Put(ctx, map[string]any{"id": "a", "name": "v3", "version": first["version"]})
	if err != ErrVersionConflict {
		t.Fatalf("got %v, want ErrVersionConflict for stale version", err)
	}
}

func updateTestSchema() schema.Schema {
	return schema.Schema{
		"id":       schema.StringNode{Base: schema.Base{Key: schema.KeyConfig{PrimaryRole: schema.KeyRolePartition}}},
		"name":     schema.StringNode{},
		"nickname": schema.StringNode{},
	}
}

func TestMapperUpdateSetsSuppliedFieldAndLeavesOthersUnderOnMissingSkip(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", updateTestSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "v1", "nickname": "n1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := m.Update(ctx, map[string]any{"id": "a"}, map[string]any{"name": "v2"}, OnMissingSkip); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := m.Get(ctx, map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["name"] != "v2" {
		t.Fatalf("got name %v, want v2", got["name"])
	}
	if got["nickname"] != "n1" {
		t.Fatalf("OnMissingSkip touched an absent field: got nickname %v, want n1", got["nickname"])
	}
}

func TestMapperUpdateRemovesAbsentFieldsUnderOnMissingRemove(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", updateTestSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "v1", "nickname": "n1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := m.Update(ctx, map[string]any{"id": "a"}, map[string]any{"name": "v2"}, OnMissingRemove); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := m.Get(ctx, map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["name"] != "v2" {
		t.Fatalf("got name %v, want v2", got["name"])
	}
	if _, present := got["nickname"]; present {
		t.Fatalf("OnMissingRemove left nickname in place: %v", got["nickname"])
	}
}

func TestMapperUpdateWithClausesAppliesRawClausesVerbatim(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", updateTestSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := m.Put(ctx, map[string]any{"id": "a", "name": "v1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clauses := []expression.UpdateClause{expression.Set("name", &types.AttributeValueMemberS{Value: "v2"})}
	if err := m.UpdateWithClauses(ctx, map[string]any{"id": "a"}, clauses, nil); err != nil {
		t.Fatalf("UpdateWithClauses: %v", err)
	}

	got, err := m.Get(ctx, map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["name"] != "v2" {
		t.Fatalf("got name %v, want v2", got["name"])
	}
}

func TestMapperUpdateWithClausesConditionFailure(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", updateTestSchema(), schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	clauses := []expression.UpdateClause{expression.Set("name", &types.AttributeValueMemberS{Value: "v2"})}
	cond := expression.AttributeExists("id")
	err = m.UpdateWithClauses(ctx, map[string]any{"id": "missing"}, clauses, cond)
	if err != ErrItemNotFound {
		t.Fatalf("got %v, want ErrItemNotFound", err)
	}
}

func TestMapperDelete(t *testing.T) {
	client := newFakeClient()
	m, err := New(client, "widgets", schema.Schema{
		"id": schema.StringNode{Base: schema.Base{Key: schema.KeyConfig{PrimaryRole: schema.KeyRolePartition}}},
	}, schema.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := m.Put(ctx, map[string]any{"id": "a"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Delete(ctx, map[string]any{"id": "a"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = m.Get(ctx, map[string]any{"id": "a"})
	if err != ErrItemNotFound {
		t.Fatalf("got %v after delete, want ErrItemNotFound", err)
	}
}
