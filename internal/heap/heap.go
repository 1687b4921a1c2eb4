// Package heap implements C2: a typed, refcounted arena of the
// container/heap-only values enumerated in HeapData. It is generic over
// the resource tracker (§3 "two concrete shapes: unbounded and
// bounded-with-deadline") so a host can choose NoLimitTracker for
// offline/batch work or BoundedTracker for anything facing untrusted
// code, without the heap itself branching on which.
package heap

import (
	"golang.org/x/exp/slices"

	"github.com/parcadei/ouros/internal/value"
)

const entryFlagContainsRefs = 1 << 0
const entryFlagFree = 1 << 1

// HeapEntry is one arena slot (§3).
type HeapEntry struct {
	Data     HeapData
	Refcount uint32
	Flags    uint8
}

func (e *HeapEntry) containsRefs() bool { return e.Flags&entryFlagContainsRefs != 0 }
func (e *HeapEntry) free() bool         { return e.Flags&entryFlagFree != 0 }

// Free reports whether this arena slot is on the free list, for
// diagnostics over Heap.Entries() (e.g. ReplSession.HeapStats).
func (e *HeapEntry) Free() bool { return e.free() }

// Heap is the arena. Builtin classes (list, dict, int, …) are
// materialized once at construction so BuiltinClassID can hand out a
// stable HeapID for MRO walks without allocating on every lookup.
type Heap[T Tracker] struct {
	entries      []HeapEntry
	freeList     []value.HeapID
	tracker      T
	nextClassUID uint64
	cyclePending bool
	builtinClass map[BuiltinType]value.HeapID
}

// BuiltinType enumerates the pre-materialized builtin classes; it mirrors
// the closed `Type` enum referenced by §4.5's TypeMethod dispatch.
type BuiltinType int

const (
	TypeObject BuiltinType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeStr
	TypeBytes
	TypeBytearray
	TypeList
	TypeTuple
	TypeDict
	TypeSet
	TypeFrozenSet
	TypeRange
	TypeSlice
	TypeException
	builtinTypeCount
)

// New constructs a Heap with the given tracker and pre-materializes the
// builtin class hierarchy.
func New[T Tracker](tracker T) *Heap[T] {
	h := &Heap[T]{tracker: tracker, builtinClass: make(map[BuiltinType]value.HeapID, builtinTypeCount)}
	h.materializeBuiltinClasses()
	return h
}

func (h *Heap[T]) materializeBuiltinClasses() {
	// `object` has no bases; every other builtin class's MRO ends in it.
	objID := h.rawAllocate(&ClassObject{BuiltinBase: true})
	h.builtinClass[TypeObject] = objID
	h.entries[objID].Data.(*ClassObject).MRO = []value.HeapID{objID}

	for bt := TypeObject + 1; bt < builtinTypeCount; bt++ {
		id := h.rawAllocate(&ClassObject{BuiltinBase: true, Bases: []value.HeapID{objID}})
		h.entries[id].Data.(*ClassObject).MRO = []value.HeapID{id, objID}
		h.builtinClass[bt] = id
	}
}

// rawAllocate bypasses the tracker/refcount bookkeeping; used only for
// the bootstrap builtin classes, which live for the whole heap lifetime
// and are never refcounted the way user-visible entries are (their
// refcount starts at 1 to represent the heap's own permanent hold).
func (h *Heap[T]) rawAllocate(d HeapData) value.HeapID {
	id := value.HeapID(len(h.entries))
	flags := uint8(0)
	if d.ContainsRefs() {
		flags |= entryFlagContainsRefs
	}
	h.entries = append(h.entries, HeapEntry{Data: d, Refcount: 1, Flags: flags})
	return id
}

// BuiltinClassID returns the pre-materialized class entry for a builtin
// type.
func (h *Heap[T]) BuiltinClassID(t BuiltinType) value.HeapID { return h.builtinClass[t] }

// NextClassUID returns a monotonically increasing ID for subclass
// registries (§4.2).
func (h *Heap[T]) NextClassUID() uint64 {
	h.nextClassUID++
	return h.nextClassUID
}

// LiveCount returns the number of allocated (non-free) entries.
func (h *Heap[T]) LiveCount() int { return len(h.entries) - len(h.freeList) }

// Allocate consults the tracker then appends a new entry or reuses a
// freed slot.
func (h *Heap[T]) Allocate(d HeapData) (value.HeapID, error) {
	if err := h.tracker.BeforeAllocate(h.LiveCount()); err != nil {
		return 0, err
	}
	if err := h.tracker.CheckDeadline(); err != nil {
		return 0, err
	}
	flags := uint8(0)
	if d.ContainsRefs() {
		flags |= entryFlagContainsRefs
	}
	if n := len(h.freeList); n > 0 {
		id := h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.entries[id] = HeapEntry{Data: d, Refcount: 1, Flags: flags}
		return id, nil
	}
	id := value.HeapID(len(h.entries))
	h.entries = append(h.entries, HeapEntry{Data: d, Refcount: 1, Flags: flags})
	return id, nil
}

// Get returns the entry's payload. Panics on a freed or out-of-range ID:
// callers must never hold a HeapID past its refcount reaching zero.
func (h *Heap[T]) Get(id value.HeapID) HeapData {
	e := &h.entries[id]
	if e.free() {
		panic("heap: Get on freed HeapID")
	}
	return e.Data
}

// GetMut returns a pointer to the entry's payload slot so callers can
// mutate in place (e.g. append to a List) without a Get+Set round trip.
func (h *Heap[T]) GetMut(id value.HeapID) *HeapData {
	e := &h.entries[id]
	if e.free() {
		panic("heap: GetMut on freed HeapID")
	}
	return &e.Data
}

// WithEntryMut supplies (heap, *HeapData) to fn, allowing fn to perform
// nested allocations while holding a pointer to this entry. Per §5
// "Allocation safety", fn must access the target entry by re-reading
// through the supplied index rather than caching a Go pointer across a
// nested Allocate call, because Allocate can grow h.entries and
// invalidate any slice-backed pointer taken before the call.
func (h *Heap[T]) WithEntryMut(id value.HeapID, fn func(h *Heap[T], d *HeapData)) {
	// Take the data out so a concurrent nested Allocate's slice growth
	// cannot invalidate a pointer into h.entries while fn runs.
	e := &h.entries[id]
	if e.free() {
		panic("heap: WithEntryMut on freed HeapID")
	}
	data := e.Data
	fn(h, &data)
	h.entries[id].Data = data
	if data.ContainsRefs() {
		h.entries[id].Flags |= entryFlagContainsRefs
	} else {
		h.entries[id].Flags &^= entryFlagContainsRefs
	}
}

// IncRef increments the refcount backing a Value::Ref copy.
func (h *Heap[T]) IncRef(id value.HeapID) {
	h.entries[id].Refcount++
}

// DropWithHeap decrements v's refcount if it is a Ref, recursively
// dropping contained values once the count reaches zero (§3 invariant).
// Non-Ref values are a no-op (trivial drop, §3).
func (h *Heap[T]) DropWithHeap(v value.Value) {
	if !v.IsRef() {
		return
	}
	h.dropRef(v.AsHeapID())
}

func (h *Heap[T]) dropRef(id value.HeapID) {
	e := &h.entries[id]
	if e.free() {
		return
	}
	if e.Refcount == 0 {
		panic("heap: refcount underflow")
	}
	e.Refcount--
	if e.Refcount > 0 {
		return
	}
	data := e.Data
	h.invalidateWeakRefsTo(id)
	h.freeSlot(id)
	if data.ContainsRefs() {
		var buf [8]value.Value
		children := data.Refs(buf[:0])
		for _, c := range children {
			h.DropWithHeap(c)
		}
	}
}

func (h *Heap[T]) freeSlot(id value.HeapID) {
	h.entries[id] = HeapEntry{Data: Placeholder{}, Flags: entryFlagFree}
	h.freeList = append(h.freeList, id)
}

// invalidateWeakRefsTo walks the live entries looking for WeakRef
// payloads pointing at id and clears their Alive flag. This is a linear
// scan rather than a back-pointer list (§9 "avoid holding raw
// back-pointers"); weakrefs are rare enough in practice that this stays
// cheap relative to allocation churn.
func (h *Heap[T]) invalidateWeakRefsTo(id value.HeapID) {
	for i := range h.entries {
		if h.entries[i].free() {
			continue
		}
		if wr, ok := h.entries[i].Data.(*WeakRef); ok && wr.Target == id {
			wr.Alive = false
		}
	}
}

// MarkPotentialCycle hints that a recent write may have created a cycle;
// the heap may run the collector at the next safe point (§4.2).
func (h *Heap[T]) MarkPotentialCycle() { h.cyclePending = true }

// CyclePending reports whether MarkPotentialCycle has fired since the
// last CollectCycles call.
func (h *Heap[T]) CyclePending() bool { return h.cyclePending }

// Reset preserves capacity and clears entries (§4.2), used by the REPL's
// cached fast-path to avoid reallocating the arena between runs.
func (h *Heap[T]) Reset(tracker T) {
	h.entries = h.entries[:0]
	h.freeList = h.freeList[:0]
	h.tracker = tracker
	h.nextClassUID = 0
	h.cyclePending = false
	h.builtinClass = make(map[BuiltinType]value.HeapID, builtinTypeCount)
	h.materializeBuiltinClasses()
}

// DeepClone returns an independent copy of the heap, used by
// ReplSession.Fork (§4.2).
func (h *Heap[T]) DeepClone() *Heap[T] {
	clone := &Heap[T]{
		tracker:      h.tracker.Clone().(T),
		nextClassUID: h.nextClassUID,
		cyclePending: h.cyclePending,
		builtinClass: make(map[BuiltinType]value.HeapID, len(h.builtinClass)),
	}
	clone.entries = make([]HeapEntry, len(h.entries))
	for i, e := range h.entries {
		clone.entries[i] = e
		if !e.free() && e.Data != nil {
			clone.entries[i].Data = e.Data.Clone()
		}
	}
	clone.freeList = slices.Clone(h.freeList)
	for k, v := range h.builtinClass {
		clone.builtinClass[k] = v
	}
	return clone
}

// ExportState returns every field ReplSession.save needs to reconstruct
// this heap with ImportState, in the order ImportState expects them.
func (h *Heap[T]) ExportState() (entries []HeapEntry, freeList []value.HeapID, nextClassUID uint64, cyclePending bool, builtinClass map[BuiltinType]value.HeapID) {
	return h.entries, h.freeList, h.nextClassUID, h.cyclePending, h.builtinClass
}

// ImportState rebuilds a Heap from the pieces ExportState returned
// (ReplSession.load), without re-materializing builtin classes since the
// caller already carries a saved builtinClass table at valid ids.
func ImportState[T Tracker](tracker T, entries []HeapEntry, freeList []value.HeapID, nextClassUID uint64, cyclePending bool, builtinClass map[BuiltinType]value.HeapID) *Heap[T] {
	return &Heap[T]{
		entries:      entries,
		freeList:     freeList,
		tracker:      tracker,
		nextClassUID: nextClassUID,
		cyclePending: cyclePending,
		builtinClass: builtinClass,
	}
}

// Tracker exposes the underlying resource tracker, e.g. so the VM can
// call Begin/End/CheckDeadline around one top-level execution.
func (h *Heap[T]) Tracker() T { return h.tracker }

// Entries is exposed read-only for diagnostics (ReplSession.heap_stats)
// and the cycle collector; index i is free iff Entries()[i].Flags has
// entryFlagFree set.
func (h *Heap[T]) Entries() []HeapEntry { return h.entries }
