package schema

import (
	"fmt"
	"testing"
	"time"

	"github.com/gurre/ddb-dam/attrvalue"
	"github.com/gurre/ddb-dam/binaryset"
	"github.com/gurre/ddb-dam/decimal"
)

func productSchema() Schema {
	return Schema{
		"id":   StringNode{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}},
		"rev":  NumberNode{Base: Base{AttributeName: "version"}, VersionAttribute: true},
		"name": StringNode{},
		"tags": SetNode{MemberType: SetMemberString},
		"created": Date{},
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := productSchema()
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	input := map[string]any{
		"id":      "p-1",
		"rev":     int64(3),
		"name":    "widget",
		"tags":    []string{"a", "b"},
		"created": created,
	}
	item, err := Marshal(s, input, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, ok := item["version"]; !ok {
		t.Fatal("expected attribute name override to apply")
	}

	out, err := Unmarshal(s, item, Options{})
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["id"] != "p-1" {
		t.Errorf("got id %v", out["id"])
	}
	if out["rev"].(decimal.Number) != "3" {
		t.Errorf("got rev %v", out["rev"])
	}
	gotCreated := out["created"].(time.Time)
	if !gotCreated.Equal(created) {
		t.Errorf("got created %v, want %v", gotCreated, created)
	}
}

func TestMarshalDefaultProvider(t *testing.T) {
	s := Schema{
		"id": StringNode{Base: Base{DefaultProvider: func() (any, error) { return "generated", nil }}},
	}
	item, err := Marshal(s, map[string]any{}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["id"].S != "generated" {
		t.Fatalf("got %+v", item["id"])
	}
}

func TestMarshalDefaultProviderError(t *testing.T) {
	s := Schema{
		"id": StringNode{Base: Base{DefaultProvider: func() (any, error) { return nil, fmt.Errorf("boom") }}},
	}
	if _, err := Marshal(s, map[string]any{}, Options{}); err == nil {
		t.Fatal("expected default provider error to propagate")
	}
}

func TestMarshalTypeMismatchThrows(t *testing.T) {
	s := Schema{"name": StringNode{}}
	if _, err := Marshal(s, map[string]any{"name": 42}, Options{}); err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

func TestMarshalTypeMismatchOmits(t *testing.T) {
	s := Schema{"name": StringNode{}}
	item, err := Marshal(s, map[string]any{"name": 42}, Options{OnInvalid: InvalidOmit})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, ok := item["name"]; ok {
		t.Fatal("expected mismatched field to be omitted")
	}
}

func TestMarshalTupleArityMismatch(t *testing.T) {
	s := Schema{"t": Tuple{Members: []Node{StringNode{}, Boolean{}}}}
	_, err := Marshal(s, map[string]any{"t": []any{"only-one"}}, Options{})
	if err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestMarshalTuple(t *testing.T) {
	s := Schema{"t": Tuple{Members: []Node{StringNode{}, Boolean{}}}}
	item, err := Marshal(s, map[string]any{"t": []any{"a", true}}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(item["t"].L) != 2 {
		t.Fatalf("got %+v", item["t"])
	}
}

func TestMarshalNestedDocument(t *testing.T) {
	s := Schema{
		"addr": Document{Members: map[string]Node{
			"city": StringNode{},
		}},
	}
	item, err := Marshal(s, map[string]any{"addr": map[string]any{"city": "nyc"}}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["addr"].M["city"].S != "nyc" {
		t.Fatalf("got %+v", item["addr"])
	}

	out, err := Unmarshal(s, item, Options{})
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	inner := out["addr"].(map[string]any)
	if inner["city"] != "nyc" {
		t.Fatalf("got %v", inner)
	}
}

func TestMarshalDocumentValueConstructor(t *testing.T) {
	type addr struct{ City string }
	s := Schema{
		"addr": Document{
			Members: map[string]Node{"city": StringNode{}},
			ValueConstructor: func(fields map[string]any) (any, error) {
				return addr{City: fields["city"].(string)}, nil
			},
		},
	}
	item, err := Marshal(s, map[string]any{"addr": map[string]any{"city": "nyc"}}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(s, item, Options{})
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	a, ok := out["addr"].(addr)
	if !ok || a.City != "nyc" {
		t.Fatalf("got %#v", out["addr"])
	}
}

func TestMarshalNumberSetFromStrings(t *testing.T) {
	s := Schema{"ns": SetNode{MemberType: SetMemberNumber}}
	item, err := Marshal(s, map[string]any{"ns": []string{"1", "2"}}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(item["ns"].NS) != 2 {
		t.Fatalf("got %+v", item["ns"])
	}
}

func TestMarshalBinarySet(t *testing.T) {
	bs := binaryset.New()
	bs.Add([]byte("x"))
	s := Schema{"bs": SetNode{MemberType: SetMemberBinary}}
	item, err := Marshal(s, map[string]any{"bs": bs}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["bs"].Kind != attrvalue.KindBinarySet {
		t.Fatalf("got kind %v", item["bs"].Kind)
	}
}

func TestMarshalEmptySetNullify(t *testing.T) {
	s := Schema{"tags": SetNode{MemberType: SetMemberString}}
	item, err := Marshal(s, map[string]any{"tags": []string{}}, Options{OnEmpty: EmptyNullify})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["tags"].Kind != attrvalue.KindNull {
		t.Fatalf("got %+v", item["tags"])
	}
}

type upperCaseMarshaller struct{}

func (upperCaseMarshaller) MarshalAttribute(v any) (attrvalue.Value, error) {
	s, ok := v.(string)
	if !ok {
		return attrvalue.Value{}, fmt.Errorf("expected string")
	}
	return attrvalue.String(s + "!"), nil
}

func (upperCaseMarshaller) UnmarshalAttribute(av attrvalue.Value) (any, error) {
	return av.S, nil
}

func TestMarshalCustomNode(t *testing.T) {
	s := Schema{"x": Custom{Marshaller: upperCaseMarshaller{}}}
	item, err := Marshal(s, map[string]any{"x": "hi"}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["x"].S != "hi!" {
		t.Fatalf("got %+v", item["x"])
	}
}

func TestMarshalCustomNodeMissingMarshaller(t *testing.T) {
	s := Schema{"x": Custom{}}
	if _, err := Marshal(s, map[string]any{"x": "hi"}, Options{}); err == nil {
		t.Fatal("expected error for missing marshaller")
	}
}

func TestMarshalCollectionPassthrough(t *testing.T) {
	s := Schema{"c": Collection{}}
	item, err := Marshal(s, map[string]any{"c": []any{"a", int64(1)}}, Options{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if item["c"].Kind != attrvalue.KindList {
		t.Fatalf("got kind %v", item["c"].Kind)
	}
}

func TestUnmarshalSkipsAbsentField(t *testing.T) {
	s := Schema{"name": StringNode{}}
	out, err := Unmarshal(s, attrvalue.Item{}, Options{})
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := out["name"]; ok {
		t.Fatal("expected absent wire attribute to be skipped")
	}
}

func TestUnmarshalUnwrapNumbers(t *testing.T) {
	s := Schema{"n": NumberNode{}}
	item := attrvalue.Item{"n": attrvalue.Number(decimal.Number("2.5"))}
	out, err := Unmarshal(s, item, Options{UnwrapNumbers: true})
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["n"].(float64) != 2.5 {
		t.Fatalf("got %v", out["n"])
	}
}
