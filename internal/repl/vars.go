package repl

import (
	"sort"

	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/value"
)

// GetVariable reads a global by name (§4.9). ok is false if the name has
// never been assigned a global slot, or if its slot currently holds
// Undefined (never set, or deleted).
func (s *ReplSession[T]) GetVariable(name string) (value.Value, bool) {
	slot, ok := s.globalSlot[name]
	if !ok {
		return value.Undefined, false
	}
	v := s.NS.Global()[slot]
	return v, v.Kind() != value.KindUndefined
}

// ListVariables returns every currently-assigned global name, sorted for
// deterministic host-side display.
func (s *ReplSession[T]) ListVariables() []string {
	names := make([]string, 0, len(s.globalSlot))
	for name, slot := range s.globalSlot {
		if s.NS.Global()[slot].Kind() != value.KindUndefined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetVariable assigns v to a global, creating the slot if name has never
// been seen. Fails while a call is pending or if name collides with a
// registered external-function name (§4.9).
func (s *ReplSession[T]) SetVariable(name string, v value.Value) error {
	if s.hasPending {
		return &errtax.HostProtocolError{Msg: "cannot set a variable while a call is pending"}
	}
	if s.extNames[name] {
		return &errtax.HostProtocolError{Msg: "name collides with a registered external function"}
	}
	slot, ok := s.globalSlot[name]
	if !ok {
		slot = len(s.globalSlot)
		s.globalSlot[name] = slot
		s.NS.GrowGlobal(slot + 1)
	} else {
		s.Heap.DropWithHeap(s.NS.Global()[slot])
	}
	if v.IsRef() {
		s.Heap.IncRef(v.AsHeapID())
	}
	s.NS.Global()[slot] = v
	return nil
}

// DeleteVariable resets a global to Undefined, dropping its value
// through the heap. Fails while a call is pending or if name collides
// with a registered external-function name (§4.9).
func (s *ReplSession[T]) DeleteVariable(name string) error {
	if s.hasPending {
		return &errtax.HostProtocolError{Msg: "cannot delete a variable while a call is pending"}
	}
	if s.extNames[name] {
		return &errtax.HostProtocolError{Msg: "name collides with a registered external function"}
	}
	slot, ok := s.globalSlot[name]
	if !ok {
		return &errtax.HostProtocolError{Msg: "no such variable"}
	}
	s.Heap.DropWithHeap(s.NS.Global()[slot])
	s.NS.Global()[slot] = value.Undefined
	return nil
}

// RegisterExternalFunction interns name into the external-function table
// and marks it reserved against SetVariable/DeleteVariable collisions.
func (s *ReplSession[T]) RegisterExternalFunction(name string) value.ExtFunctionID {
	s.extNames[name] = true
	return s.Interner.InternExtFunctionName(name)
}

// HeapStat is one line of ReplSession.HeapStats: the live entry count for
// one HeapData variant (§4.9's supplemented heap_stats, grounded on
// original_source/crates/ouros/src/repl.rs exposing per-type counts for
// leak detection in long-lived sessions).
type HeapStat struct {
	TypeName string
	Count    int
}

// HeapStats reports live entry counts per HeapData variant, plus total
// capacity (including freed slots still reserved in the arena).
func (s *ReplSession[T]) HeapStats() (stats []HeapStat, liveTotal, capacity int) {
	counts := make(map[string]int)
	entries := s.Heap.Entries()
	capacity = len(entries)
	for i := range entries {
		e := &entries[i]
		if e.Free() {
			continue
		}
		counts[e.Data.TypeName()]++
	}
	for t, c := range counts {
		stats = append(stats, HeapStat{TypeName: t, Count: c})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].TypeName < stats[j].TypeName })
	return stats, s.Heap.LiveCount(), capacity
}
