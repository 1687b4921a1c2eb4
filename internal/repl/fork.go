package repl

import (
	"github.com/google/uuid"

	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// Fork returns an independent ReplSession sharing no mutable state with
// s (§4.9): every heap entry, namespace activation and interner table is
// deep-copied. Pending host-call state is not carried over — a session
// mid-pause cannot be forked, matching set_variable/delete_variable's
// same "not while a call is pending" rule.
func (s *ReplSession[T]) Fork() (*ReplSession[T], error) {
	if s.hasPending {
		return nil, &errtax.HostProtocolError{Msg: "cannot fork a session with a call pending"}
	}
	clonedHeap := s.Heap.DeepClone()
	clonedNS := s.NS.Clone()
	clonedInterner := s.Interner.Clone()

	forked := &ReplSession[T]{
		SessionID:  uuid.New(),
		ScriptName: s.ScriptName,
		Interner:   clonedInterner,
		Heap:       clonedHeap,
		NS:         clonedNS,
		globalSlot: copyStringIntMap(s.globalSlot),
		extNames:   copyStringBoolMap(s.extNames),
	}
	excClasses := make(map[errtax.ExcType]value.HeapID, len(s.VM.ExcClasses()))
	for t, id := range s.VM.ExcClasses() {
		excClasses[t] = id
	}
	forked.VM = vm.Restore(clonedHeap, clonedNS, clonedInterner, s.VM.Stdout, excClasses)
	if s.capabilities != nil {
		forked.capabilities = &CapabilitySet{
			Functions: copyStringBoolMap(s.capabilities.Functions),
			Proxies:   copyStringBoolMap(s.capabilities.Proxies),
		}
	}
	return forked, nil
}

func copyStringIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
