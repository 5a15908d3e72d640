package expression

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func stringAV(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func TestSerializeComparison(t *testing.T) {
	expr, names, values, err := Serialize(EQ("status", stringAV("active")))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(expr, "=") {
		t.Fatalf("expected comparison operator in %q", expr)
	}
	if len(names) != 1 || len(values) != 1 {
		t.Fatalf("got names=%v values=%v", names, values)
	}
}

func TestSerializeAndOr(t *testing.T) {
	cond := And(EQ("a", stringAV("1")), Or(GT("b", stringAV("2")), LT("c", stringAV("3"))))
	expr, names, values, err := Serialize(cond)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(expr, "AND") || !strings.Contains(expr, "OR") {
		t.Fatalf("expected AND/OR in %q", expr)
	}
	if len(names) != 3 || len(values) != 3 {
		t.Fatalf("got names=%v values=%v", names, values)
	}
}

func TestSerializeNot(t *testing.T) {
	expr, _, _, err := Serialize(Not(EQ("a", stringAV("1"))))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.HasPrefix(expr, "NOT (") {
		t.Fatalf("got %q", expr)
	}
}

func TestSerializeFunctions(t *testing.T) {
	cases := []struct {
		cond Condition
		want string
	}{
		{AttributeExists("a"), "attribute_exists("},
		{AttributeNotExists("a"), "attribute_not_exists("},
		{BeginsWith("a", stringAV("pre")), "begins_with("},
		{Contains("a", stringAV("x")), "contains("},
	}
	for _, c := range cases {
		expr, _, _, err := Serialize(c.cond)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		if !strings.HasPrefix(expr, c.want) {
			t.Errorf("got %q, want prefix %q", expr, c.want)
		}
	}
}

func TestSerializeSamePathSharesPlaceholder(t *testing.T) {
	cond := And(EQ("a", stringAV("1")), NE("a", stringAV("2")))
	_, names, _, err := Serialize(cond)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected the repeated path to share one name placeholder, got %d", len(names))
	}
}

func TestSerializeInvalidPathPropagatesError(t *testing.T) {
	if _, _, _, err := Serialize(EQ("", stringAV("x"))); err == nil {
		t.Fatal("expected error for empty path")
	}
}
