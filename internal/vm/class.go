package vm

import (
	"fmt"

	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/value"
)

// LinearizeMRO computes the C3 linearization for a class given its direct
// bases' already-computed MROs (§3 "MRO is set post-construction"; §8.6
// "a class is always first in its own MRO followed by bases in C3 order
// ending in object"). self is the HeapID of the class entry being
// constructed; baseMROs[i] is bases[i]'s MRO (itself included, ending in
// object).
func LinearizeMRO(self value.HeapID, bases []value.HeapID, baseMROs [][]value.HeapID) ([]value.HeapID, error) {
	// merge(L[B1], ..., L[Bn], [B1,...,Bn])
	sequences := make([][]value.HeapID, 0, len(baseMROs)+1)
	for _, m := range baseMROs {
		if len(m) > 0 {
			sequences = append(sequences, append([]value.HeapID(nil), m...))
		}
	}
	if len(bases) > 0 {
		sequences = append(sequences, append([]value.HeapID(nil), bases...))
	}

	result := []value.HeapID{self}
	for {
		sequences = dropEmpty(sequences)
		if len(sequences) == 0 {
			break
		}
		var candidate value.HeapID
		found := false
		for _, seq := range sequences {
			head := seq[0]
			if !appearsInTail(sequences, head) {
				candidate = head
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("inconsistent method resolution order")
		}
		result = append(result, candidate)
		for i, seq := range sequences {
			if len(seq) > 0 && seq[0] == candidate {
				sequences[i] = seq[1:]
			}
		}
	}
	return result, nil
}

func dropEmpty(seqs [][]value.HeapID) [][]value.HeapID {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func appearsInTail(seqs [][]value.HeapID, id value.HeapID) bool {
	for _, seq := range seqs {
		for i := 1; i < len(seq); i++ {
			if seq[i] == id {
				return true
			}
		}
	}
	return false
}

// NewClass allocates a ClassObject, computes its MRO from already-built
// base MROs, and registers it in each base's subclass registry (§3).
func NewClass[T heap.Tracker](h *heap.Heap[T], name value.StringID, metaclass value.Value, namespace value.HeapID, bases []value.HeapID) (value.HeapID, error) {
	baseMROs := make([][]value.HeapID, len(bases))
	for i, b := range bases {
		cls, ok := h.Get(b).(*heap.ClassObject)
		if !ok {
			return 0, fmt.Errorf("base is not a class")
		}
		baseMROs[i] = cls.MRO
	}
	id, err := h.Allocate(&heap.ClassObject{
		Name: name, Metaclass: metaclass, Namespace: namespace, Bases: bases,
		Subclasses: map[uint64]value.HeapID{}, ClassUID: h.NextClassUID(),
	})
	if err != nil {
		return 0, err
	}
	h.IncRef(namespace)
	for _, b := range bases {
		h.IncRef(b)
	}
	mro, err := LinearizeMRO(id, bases, baseMROs)
	if err != nil {
		return 0, err
	}
	cls := h.Get(id).(*heap.ClassObject)
	cls.MRO = mro
	for _, m := range mro[1:] {
		h.IncRef(m)
	}
	for _, b := range bases {
		bc := h.Get(b).(*heap.ClassObject)
		bc.Subclasses[cls.ClassUID] = id
		h.IncRef(id)
	}
	return id, nil
}

// IsInstanceOf walks inst's class MRO looking for target (§8.6, used by
// isinstance() and except-clause matching).
func IsInstanceOf[T heap.Tracker](h *heap.Heap[T], inst *heap.Instance, target value.HeapID) bool {
	cls := h.Get(inst.Class).(*heap.ClassObject)
	for _, m := range cls.MRO {
		if m == target {
			return true
		}
	}
	return false
}
