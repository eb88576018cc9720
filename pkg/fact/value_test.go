package fact

import "testing"

func TestValueCompareOrdersByTypeFirst(t *testing.T) {
	str := StringValue("zzz")
	ref := RefValue(1)
	if str.Compare(ref) >= 0 {
		t.Errorf("expected TypeString < TypeRef regardless of contents")
	}
}

func TestValueCompareWithinType(t *testing.T) {
	cases := []struct {
		name     string
		a, b     Value
		wantSign int
	}{
		{"string less", StringValue("a"), StringValue("b"), -1},
		{"string equal", StringValue("a"), StringValue("a"), 0},
		{"long less", LongValue(1), LongValue(2), -1},
		{"long greater", LongValue(5), LongValue(2), 1},
		{"bool false<true", BoolValue(false), BoolValue(true), -1},
		{"ref", RefValue(10), RefValue(20), -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.a.Compare(c.b)
			switch {
			case c.wantSign < 0 && got >= 0:
				t.Errorf("got %d, want negative", got)
			case c.wantSign > 0 && got <= 0:
				t.Errorf("got %d, want positive", got)
			case c.wantSign == 0 && got != 0:
				t.Errorf("got %d, want 0", got)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	if !IdentValue("x/y").Equal(IdentValue("x/y")) {
		t.Error("expected equal ident values to compare equal")
	}
	if IdentValue("x/y").Equal(StringValue("x/y")) {
		t.Error("expected different types to never compare equal even with the same contents")
	}
}

func TestValueString(t *testing.T) {
	if got := IdentValue("person/name").String(); got != "person/name" {
		t.Errorf("got %q", got)
	}
	if got := StringValue("hi").String(); got != `"hi"` {
		t.Errorf("got %q", got)
	}
}
