package vm

import (
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// lookupInDict finds name in a Dict heap entry (namespaces are Dicts),
// returning (value, found).
func lookupInDict[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, dictID value.HeapID, name value.StringID) (value.Value, bool) {
	d, ok := h.Get(dictID).(*heap.Dict)
	if !ok {
		return value.None, false
	}
	key := value.InternString(name)
	hv := hashValue(h, in, key)
	for _, idx := range d.Index()[hv] {
		if d.Entries[idx].Key.Kind() == value.KindInternString && d.Entries[idx].Key.AsStringID() == name {
			return d.Entries[idx].Val, true
		}
	}
	return value.None, false
}

// GetAttr implements attribute access for the two heap-object shapes
// that carry attributes directly (Instance, ClassObject), walking the
// class MRO for class-level/descriptor lookups (§4.6, §9 "Deep class
// hierarchies and descriptors"). Returns an AttrCallResult so the VM can
// decide whether it finished locally or must push a descriptor/property
// sub-call.
func GetAttr[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, owner value.Value, name value.StringID) (AttrCallResult, *excKind) {
	if !owner.IsRef() {
		return AttrCallResult{}, &excKind{typeError: "object has no attributes"}
	}
	switch d := h.Get(owner.AsHeapID()).(type) {
	case *heap.Instance:
		if d.HasDict {
			if v, ok := lookupInDict(h, in, d.AttrsDict, name); ok {
				return ValueResult(v), nil
			}
		}
		cls := h.Get(d.Class).(*heap.ClassObject)
		for _, m := range cls.MRO {
			mc := h.Get(m).(*heap.ClassObject)
			if v, ok := lookupInDict(h, in, mc.Namespace, name); ok {
				return classifyAttr(h, v, owner), nil
			}
		}
		return AttrCallResult{}, &excKind{typeError: "attribute error"}
	case *heap.ClassObject:
		for _, m := range d.MRO {
			mc := h.Get(m).(*heap.ClassObject)
			if v, ok := lookupInDict(h, in, mc.Namespace, name); ok {
				return classifyAttr(h, v, owner), nil
			}
		}
		return AttrCallResult{}, &excKind{typeError: "type object has no such attribute"}
	case *heap.Module:
		if v, ok := lookupInDict(h, in, d.Namespace, name); ok {
			return ValueResult(v), nil
		}
		return AttrCallResult{}, &excKind{typeError: "module has no such attribute"}
	}
	return AttrCallResult{}, &excKind{typeError: "object has no attributes"}
}

// classifyAttr decides whether a resolved class-namespace member needs
// descriptor-protocol handling (property / staticmethod / classmethod /
// plain function needing binding) or can be returned as-is.
func classifyAttr[T heap.Tracker](h *heap.Heap[T], v value.Value, owner value.Value) AttrCallResult {
	if v.IsRef() {
		switch h.Get(v.AsHeapID()).(type) {
		case *heap.UserProperty:
			return DescriptorGetResult(v, owner)
		case *heap.StaticMethod:
			sm := h.Get(v.AsHeapID()).(*heap.StaticMethod)
			return ValueResult(sm.Func)
		case *heap.ClassMethod:
			return DescriptorGetResult(v, owner)
		}
	}
	switch v.Kind() {
	case value.KindDefFunction:
		// bind as a method: caller (VM) wraps into a BoundMethod entry.
		return DescriptorGetResult(v, owner)
	}
	return ValueResult(v)
}

// SetAttr implements attribute assignment for Instance/ClassObject.
func SetAttr[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, owner value.Value, name value.StringID, val value.Value) (*excKind, error) {
	if !owner.IsRef() {
		return &excKind{typeError: "object does not support attribute assignment"}, nil
	}
	switch d := h.Get(owner.AsHeapID()).(type) {
	case *heap.Instance:
		if !d.HasDict {
			id, err := h.Allocate(heap.NewDict())
			if err != nil {
				return nil, err
			}
			d.AttrsDict = id
			d.HasDict = true
		}
		ok, ek, err := pySetItem(h, in, value.Ref(d.AttrsDict), value.InternString(name), val)
		_ = ok
		return ek, err
	case *heap.ClassObject:
		ok, ek, err := pySetItem(h, in, value.Ref(d.Namespace), value.InternString(name), val)
		_ = ok
		return ek, err
	}
	return &excKind{typeError: "object does not support attribute assignment"}, nil
}

// DelAttr implements attribute deletion for Instance.
func DelAttr[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, owner value.Value, name value.StringID) *excKind {
	if !owner.IsRef() {
		return &excKind{typeError: "object does not support attribute deletion"}
	}
	inst, ok := h.Get(owner.AsHeapID()).(*heap.Instance)
	if !ok || !inst.HasDict {
		return &excKind{typeError: "attribute error"}
	}
	deleted, ek := pyDelItem(h, in, value.Ref(inst.AttrsDict), value.InternString(name))
	if !deleted {
		return &excKind{typeError: "attribute error"}
	}
	return ek
}
