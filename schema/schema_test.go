package schema

import "testing"

func TestKeyConfigIsKey(t *testing.T) {
	if (KeyConfig{}).IsKey() {
		t.Fatal("expected zero-value KeyConfig to not be a key")
	}
	if !(KeyConfig{PrimaryRole: KeyRolePartition}).IsKey() {
		t.Fatal("expected partition role to be a key")
	}
	if !(KeyConfig{Indexes: []IndexKeyConfig{{IndexName: "gsi1", Role: KeyRoleSort}}}).IsKey() {
		t.Fatal("expected index role to be a key")
	}
}

func TestAttrNameFallback(t *testing.T) {
	b := Base{}
	if got := b.AttrName("field"); got != "field" {
		t.Fatalf("got %q", got)
	}
	b.AttributeName = "wire_name"
	if got := b.AttrName("field"); got != "wire_name" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateRejectsKeyOnNonKeyLegalType(t *testing.T) {
	n := Boolean{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}}
	if err := Validate(n); err == nil {
		t.Fatal("expected error for key configuration on boolean node")
	}
}

func TestValidateAcceptsKeyLegalTypes(t *testing.T) {
	for _, n := range []Node{
		StringNode{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}},
		NumberNode{Base: Base{Key: KeyConfig{PrimaryRole: KeyRoleSort}}},
		Binary{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}},
		Date{Base: Base{Key: KeyConfig{PrimaryRole: KeyRoleSort}}},
	} {
		if err := Validate(n); err != nil {
			t.Errorf("Validate(%T) = %v, want nil", n, err)
		}
	}
}

func TestValidateNestedDocument(t *testing.T) {
	doc := Document{
		Members: map[string]Node{
			"inner": Boolean{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}},
		},
	}
	if err := Validate(doc); err == nil {
		t.Fatal("expected error to propagate from nested member")
	}
}

func TestValidateTupleMemberKeyLegality(t *testing.T) {
	tup := Tuple{Members: []Node{
		StringNode{},
		Boolean{Base: Base{Key: KeyConfig{PrimaryRole: KeyRolePartition}}},
	}}
	if err := Validate(tup); err == nil {
		t.Fatal("expected error from second tuple member")
	}
}

func TestValidateCustomRequiresMarshaller(t *testing.T) {
	if err := Validate(Custom{}); err == nil {
		t.Fatal("expected error for custom node without a marshaller")
	}
}

func TestValidateNilNode(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for nil node")
	}
}

func TestSchemaErrorFormatting(t *testing.T) {
	e := &SchemaError{Path: "$.foo", Msg: "bad"}
	if e.Error() != "schema: $.foo: bad" {
		t.Fatalf("got %q", e.Error())
	}
	e2 := &SchemaError{Msg: "bad"}
	if e2.Error() != "schema: bad" {
		t.Fatalf("got %q", e2.Error())
	}
}
