package heap

import (
	"testing"

	"github.com/parcadei/ouros/internal/value"
)

func TestDeepCloneIndependentTracker(t *testing.T) {
	h := New(&NoLimitTracker{})
	before := h.Tracker().Allocations

	clone := h.DeepClone()
	if _, err := clone.Allocate(&List{}); err != nil {
		t.Fatalf("allocate on clone: %v", err)
	}

	if h.Tracker().Allocations != before {
		t.Errorf("original tracker mutated by clone's allocation: got %d, want %d", h.Tracker().Allocations, before)
	}
	if clone.Tracker().Allocations != before+1 {
		t.Errorf("clone tracker not advanced: got %d", clone.Tracker().Allocations)
	}
}

func TestDeepCloneIndependentContainers(t *testing.T) {
	h := New(&NoLimitTracker{})
	id, err := h.Allocate(&List{Items: []value.Value{value.Int(1), value.Int(2)}})
	if err != nil {
		t.Fatal(err)
	}

	clone := h.DeepClone()

	origList := h.Get(id).(*List)
	cloneList := clone.Get(id).(*List)
	if cloneList == origList {
		t.Fatal("clone's List shares the original's pointer")
	}

	cloneList.Items = append(cloneList.Items, value.Int(3))
	if len(origList.Items) != 2 {
		t.Errorf("mutating the clone's list mutated the original: %v", origList.Items)
	}
}

func TestHeapDataCloneReturnsPointerForm(t *testing.T) {
	// List/Tuple/Str/.../NamedTuple are allocated and type-switched on
	// by pointer everywhere; Clone must preserve that or a clone's
	// dynamic type silently changes from *List to List.
	cases := []HeapData{
		&Str{S: "x"}, &Bytes{B: []byte("x")}, &List{}, &Tuple{},
	}
	for _, d := range cases {
		cloned := d.Clone()
		switch d.(type) {
		case *Str:
			if _, ok := cloned.(*Str); !ok {
				t.Errorf("Str.Clone() returned %T, want *Str", cloned)
			}
		case *Bytes:
			if _, ok := cloned.(*Bytes); !ok {
				t.Errorf("Bytes.Clone() returned %T, want *Bytes", cloned)
			}
		case *List:
			if _, ok := cloned.(*List); !ok {
				t.Errorf("List.Clone() returned %T, want *List", cloned)
			}
		case *Tuple:
			if _, ok := cloned.(*Tuple); !ok {
				t.Errorf("Tuple.Clone() returned %T, want *Tuple", cloned)
			}
		}
	}
}

func TestRangeAndPlaceholderCloneAreValueTypes(t *testing.T) {
	r := Range{Start: 0, Stop: 10, Step: 1}
	if _, ok := r.Clone().(Range); !ok {
		t.Errorf("Range.Clone() returned %T, want Range (value type)", r.Clone())
	}
	p := Placeholder{}
	if _, ok := p.Clone().(Placeholder); !ok {
		t.Errorf("Placeholder.Clone() returned %T, want Placeholder (value type)", p.Clone())
	}
}
