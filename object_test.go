package ouros

import (
	"testing"

	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
)

func newTestHeap() (*heap.Heap[*heap.NoLimitTracker], *interner.Interner) {
	return heap.New(&heap.NoLimitTracker{}), interner.New()
}

func roundTrip(t *testing.T, o Object) Object {
	t.Helper()
	h, in := newTestHeap()
	v, err := ToValue(h, in, o)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	got, err := FromValue(h, in, v)
	if err != nil {
		t.Fatalf("FromValue: %v", err)
	}
	return got
}

func TestObjectRoundTripPrimitives(t *testing.T) {
	cases := []Object{
		None(),
		Ellip(),
		Bool(true),
		Bool(false),
		Int(-7),
		Float(2.5),
		String("hello"),
	}
	for _, o := range cases {
		got := roundTrip(t, o)
		if got.Kind != o.Kind {
			t.Errorf("kind mismatch: want %v got %v", o.Kind, got.Kind)
		}
	}
	if got := roundTrip(t, Int(42)); got.Int != 42 {
		t.Errorf("Int round trip: got %d", got.Int)
	}
	if got := roundTrip(t, String("hello")); got.Str != "hello" {
		t.Errorf("String round trip: got %q", got.Str)
	}
}

func TestObjectRoundTripContainers(t *testing.T) {
	list := List(Int(1), Int(2), String("x"))
	got := roundTrip(t, list)
	if got.Kind != KindList || len(got.Items) != 3 {
		t.Fatalf("list round trip: %+v", got)
	}
	if got.Items[2].Str != "x" {
		t.Errorf("list item 2: %+v", got.Items[2])
	}

	tup := Tuple(Bool(true), None())
	got = roundTrip(t, tup)
	if got.Kind != KindTuple || len(got.Items) != 2 {
		t.Fatalf("tuple round trip: %+v", got)
	}

	d := Dict(DictPair{Key: String("a"), Value: Int(1)}, DictPair{Key: String("b"), Value: Int(2)})
	got = roundTrip(t, d)
	if got.Kind != KindDict || len(got.Pairs) != 2 {
		t.Fatalf("dict round trip: %+v", got)
	}
	if got.Pairs[0].Key.Str != "a" || got.Pairs[0].Value.Int != 1 {
		t.Errorf("dict pair 0: %+v", got.Pairs[0])
	}

	s := Set(Int(1), Int(2), Int(1))
	got = roundTrip(t, s)
	if got.Kind != KindSet || len(got.Items) != 2 {
		t.Fatalf("set dedup: want 2 items, got %+v", got.Items)
	}
}

func TestObjectBytes(t *testing.T) {
	got := roundTrip(t, Bytes([]byte("abc")))
	if got.Kind != KindBytes || string(got.Bytes) != "abc" {
		t.Fatalf("bytes round trip: %+v", got)
	}
}

func TestReprRejectedByToValue(t *testing.T) {
	h, in := newTestHeap()
	if _, err := ToValue(h, in, Repr("<function f>")); err == nil {
		t.Fatal("expected ToValue to reject a Repr object")
	}
}
