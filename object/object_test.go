package object

import (
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyIdentifierIsStable(t *testing.T) {
	a := Identify(Empty())
	b := Identify(New(map[string]string{}, []string{}))
	if a != b {
		t.Fatalf("got %q and %q for two constructions of the empty object", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex characters, got %d (%q)", len(a), a)
	}
}

func TestIdentifyIsDeterministic(t *testing.T) {
	f := func(fields map[string]string, children []string) bool {
		o := New(fields, children)
		return Identify(o) == Identify(New(o.Fields, o.Children))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestIdentifyIsOrderIndependentOverFields(t *testing.T) {
	n1 := New(nil, nil)
	n1.Fields = map[string]string{}
	n1.Fields["a"] = "1"
	n1.Fields["b"] = "2"

	n2 := New(nil, nil)
	n2.Fields = map[string]string{}
	n2.Fields["b"] = "2"
	n2.Fields["a"] = "1"

	if Identify(n1) != Identify(n2) {
		t.Fatal("identifiers differ depending on field insertion order")
	}
}

func TestIdentifyDistinguishesChildOrder(t *testing.T) {
	n1 := New(nil, []string{"x", "y"})
	n2 := New(nil, []string{"y", "x"})
	if Identify(n1) == Identify(n2) {
		t.Fatal("sibling order should be semantically significant")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	o := New(map[string]string{"name": "Andrew", "kind": "collection"}, []string{"a", "b", "c"})
	data, err := Encode(o)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(o, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeIsCanonicalAcrossFieldInsertionOrder(t *testing.T) {
	o1 := New(map[string]string{"z": "1", "a": "2", "m": "3"}, nil)
	o2 := New(map[string]string{"a": "2", "m": "3", "z": "1"}, nil)
	b1, err := Encode(o1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Encode(o2)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Fatal("canonical encoding should not depend on map iteration/insertion order")
	}
}
