package expression

import "testing"

func TestAddNameIdempotentForSamePath(t *testing.T) {
	acc := NewAccumulator()
	a, err := acc.AddName("foo")
	if err != nil {
		t.Fatalf("AddName: %v", err)
	}
	b, err := acc.AddName("foo")
	if err != nil {
		t.Fatalf("AddName: %v", err)
	}
	if a != b {
		t.Fatalf("expected same placeholder, got %q and %q", a, b)
	}
	if len(acc.Names()) != 1 {
		t.Fatalf("expected 1 name, got %d", len(acc.Names()))
	}
}

func TestAddNameDistinctPaths(t *testing.T) {
	acc := NewAccumulator()
	a, _ := acc.AddName("foo")
	b, _ := acc.AddName("bar")
	if a == b {
		t.Fatal("expected different placeholders for different paths")
	}
}

func TestAddValueNeverDeduplicates(t *testing.T) {
	acc := NewAccumulator()
	v1 := acc.AddValue(stringAV("x"))
	v2 := acc.AddValue(stringAV("x"))
	if v1 == v2 {
		t.Fatal("expected distinct placeholders for repeated AddValue calls")
	}
	if len(acc.Values()) != 2 {
		t.Fatalf("expected 2 values, got %d", len(acc.Values()))
	}
}

func TestAddNameNestedPath(t *testing.T) {
	acc := NewAccumulator()
	ph, err := acc.AddName("a.b")
	if err != nil {
		t.Fatalf("AddName: %v", err)
	}
	if ph == "" {
		t.Fatal("expected non-empty placeholder")
	}
	if len(acc.Names()) != 2 {
		t.Fatalf("expected 2 name placeholders for 2 segments, got %d", len(acc.Names()))
	}
}

func TestAddNameListIndex(t *testing.T) {
	acc := NewAccumulator()
	ph, err := acc.AddName("a[3]")
	if err != nil {
		t.Fatalf("AddName: %v", err)
	}
	if ph != "#attr0[3]" {
		t.Fatalf("got %q", ph)
	}
}

func TestParsePathErrors(t *testing.T) {
	cases := []string{
		"",
		".",
		"a.",
		"a[",
		"a[x]",
		"a[1]b",
		"a\\x",
		"a\\",
	}
	for _, p := range cases {
		if _, err := ParsePath(p); err == nil {
			t.Errorf("ParsePath(%q): expected error", p)
		}
	}
}

func TestParsePathEscapes(t *testing.T) {
	segs, err := ParsePath(`a\.b`)
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	if len(segs) != 1 || segs[0] != "a.b" {
		t.Fatalf("got %v", segs)
	}
}

func TestParsePathMixed(t *testing.T) {
	segs, err := ParsePath("a.b[2].c")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	want := []string{"a", "b", "2", "c"}
	if len(segs) != len(want) {
		t.Fatalf("got %v", segs)
	}
	for i, w := range want {
		if segs[i] != w {
			t.Errorf("segs[%d] = %q, want %q", i, segs[i], w)
		}
	}
}
