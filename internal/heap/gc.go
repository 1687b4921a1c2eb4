package heap

import (
	"golang.org/x/tools/container/intsets"

	"github.com/parcadei/ouros/internal/value"
)

// CollectCycles runs a mark-and-sweep pass restricted to entries flagged
// ContainsRefs (§4.2 "Cycle policy"), using an intsets.Sparse for the
// visited set since HeapID is a small dense integer domain — the same
// specialization the teacher's FilterStackAndCallers applies to PC
// values, here applied to heap handles instead.
//
// roots is the live set per §4.2: every Value reachable from the global
// namespace and the VM's frame/operand/exception stacks. Entries flagged
// ContainsRefs that are unreachable from roots are, by construction,
// sustained only by references from within an unreachable cycle and are
// freed regardless of their nonzero refcount.
func (h *Heap[T]) CollectCycles(roots []value.Value) int {
	h.cyclePending = false

	var visited intsets.Sparse
	var stack []value.HeapID
	for _, r := range roots {
		if r.IsRef() {
			stack = append(stack, r.AsHeapID())
		}
	}
	var buf [8]value.Value
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.Insert(int(id)) {
			continue // already visited
		}
		e := &h.entries[id]
		if e.free() || !e.containsRefs() {
			continue
		}
		for _, c := range e.Data.Refs(buf[:0]) {
			if c.IsRef() && !visited.Has(int(c.AsHeapID())) {
				stack = append(stack, c.AsHeapID())
			}
		}
	}

	var garbage intsets.Sparse
	for i := range h.entries {
		e := &h.entries[i]
		if e.free() || !e.containsRefs() {
			continue
		}
		if !visited.Has(i) {
			garbage.Insert(i)
		}
	}
	if garbage.IsEmpty() {
		return 0
	}

	// Detach each garbage entry's payload before freeing its slot, so we
	// can still walk its children after the slot is marked free.
	type detached struct {
		id       value.HeapID
		children []value.Value
	}
	var cut []detached
	garbage.Do(func(i int) {
		id := value.HeapID(i)
		children := h.entries[id].Data.Refs(nil)
		cut = append(cut, detached{id: id, children: children})
		h.freeSlot(id)
	})

	// Drop references this cycle held into the surviving graph. A child
	// that itself belongs to the garbage set is skipped: its slot is
	// already freed above, and decrementing it further would underflow.
	for _, d := range cut {
		for _, c := range d.children {
			if !c.IsRef() {
				continue
			}
			if garbage.Has(int(c.AsHeapID())) {
				continue
			}
			h.dropRef(c.AsHeapID())
		}
	}
	return len(cut)
}
