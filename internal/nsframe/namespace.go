// Package nsframe implements C4: a stack of flat slot arrays. Index 0 is
// the global namespace, which persists for the lifetime of a REPL
// session; every namespace above it is a function activation created on
// call and destroyed on return.
package nsframe

import (
	"golang.org/x/exp/slices"

	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/value"
)

// Namespaces is the stack described in §4.3. Global lives at index 0 and
// is never popped by CleanupNonGlobal.
type Namespaces struct {
	activations [][]value.Value
}

// New returns a Namespaces with an empty global activation of the given
// slot count.
func New(globalSlots int) *Namespaces {
	ns := &Namespaces{}
	global := make([]value.Value, globalSlots)
	for i := range global {
		global[i] = value.Undefined
	}
	ns.activations = append(ns.activations, global)
	return ns
}

// Global returns the global slot vector (index 0).
func (ns *Namespaces) Global() []value.Value { return ns.activations[0] }

// GrowGlobal extends the global activation to newSize slots, filling new
// cells with Undefined. Used when a REPL snippet's compile adds new
// top-level names to an existing session.
func (ns *Namespaces) GrowGlobal(newSize int) {
	g := ns.activations[0]
	if newSize <= len(g) {
		return
	}
	g = slices.Grow(g, newSize-len(g))
	g = g[:newSize]
	for i := len(ns.activations[0]); i < newSize; i++ {
		g[i] = value.Undefined
	}
	ns.activations[0] = g
}

// PushActivation creates a new non-global activation sized at compile
// time for a function call.
func (ns *Namespaces) PushActivation(slotCount int) []value.Value {
	act := make([]value.Value, slotCount)
	for i := range act {
		act[i] = value.Undefined
	}
	ns.activations = append(ns.activations, act)
	return act
}

// PopActivation drops the most recent non-global activation, dropping
// (via the heap) every Value it still holds. Panics if called with only
// the global activation left, since that would violate "global persists
// for the session lifetime".
func (ns *Namespaces) PopActivation(h interface{ DropWithHeap(value.Value) }) {
	n := len(ns.activations)
	if n <= 1 {
		panic("nsframe: PopActivation called with no non-global activation")
	}
	act := ns.activations[n-1]
	ns.activations = ns.activations[:n-1]
	for _, v := range act {
		h.DropWithHeap(v)
	}
}

// Depth returns the number of activations including global.
func (ns *Namespaces) Depth() int { return len(ns.activations) }

// Activation returns the activation at the given depth (0 = global).
func (ns *Namespaces) Activation(depth int) []value.Value { return ns.activations[depth] }

// ResetGlobal clears slot values while preserving allocated capacity
// (§4.3), used by the REPL's cached fast-path.
func (ns *Namespaces) ResetGlobal() {
	g := ns.activations[0]
	for i := range g {
		g[i] = value.Undefined
	}
}

// CleanupNonGlobal drops any remaining activation values above global
// and returns to a single-activation stack (§4.3).
func CleanupNonGlobal[T heap.Tracker](ns *Namespaces, h *heap.Heap[T]) {
	for len(ns.activations) > 1 {
		ns.PopActivation(h)
	}
}

// DropGlobalWithHeap decrements every live global slot so final refcounts
// can be asserted under the ref-count-panic build mode (§4.3). It leaves
// the global activation's cells set to Undefined.
func DropGlobalWithHeap[T heap.Tracker](ns *Namespaces, h *heap.Heap[T]) {
	g := ns.activations[0]
	for i, v := range g {
		h.DropWithHeap(v)
		g[i] = value.Undefined
	}
}

// Delete resets a cell to Undefined (§3 "Deletion resets a cell"),
// dropping its previous value through the heap.
func Delete[T heap.Tracker](ns *Namespaces, h *heap.Heap[T], depth, slot int) {
	act := ns.activations[depth]
	h.DropWithHeap(act[slot])
	act[slot] = value.Undefined
}

// ExportActivations returns the raw activation stack for
// ReplSession.save; index 0 is global.
func (ns *Namespaces) ExportActivations() [][]value.Value { return ns.activations }

// ImportActivations rebuilds a Namespaces from a saved activation stack
// (ReplSession.load).
func ImportActivations(activations [][]value.Value) *Namespaces {
	return &Namespaces{activations: activations}
}

// Clone returns an independent Namespaces with the same shape, each
// activation's Values copied by value (a Ref just copies the HeapID; the
// owning Heap.DeepClone is responsible for making those ids resolve
// against an equally independent arena). Used by ReplSession.Fork.
func (ns *Namespaces) Clone() *Namespaces {
	clone := &Namespaces{activations: make([][]value.Value, len(ns.activations))}
	for i, act := range ns.activations {
		clone.activations[i] = append([]value.Value(nil), act...)
	}
	return clone
}

// Roots appends every Value reachable directly from the namespace stack
// (not recursively through the heap) to dst; used by the cycle collector
// to seed its reachability walk (§4.2).
func (ns *Namespaces) Roots(dst []value.Value) []value.Value {
	for _, act := range ns.activations {
		dst = append(dst, act...)
	}
	return dst
}
