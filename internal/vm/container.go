package vm

import (
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// pyLen implements len() for the native container fast paths (§4.6).
// ok=false means "no native fast path; dispatch to user __len__".
func pyLen[T heap.Tracker](h *heap.Heap[T], v value.Value) (int64, bool) {
	if v.Kind() == value.KindInternString {
		return 0, false // string length needs the interner; caller handles it
	}
	if !v.IsRef() {
		return 0, false
	}
	switch d := h.Get(v.AsHeapID()).(type) {
	case *heap.List:
		return int64(len(d.Items)), true
	case *heap.Tuple:
		return int64(len(d.Items)), true
	case *heap.Dict:
		return int64(len(d.Entries)), true
	case *heap.Set:
		return int64(len(d.Items)), true
	case *heap.Str:
		return int64(len([]rune(d.S))), true
	case *heap.Bytes:
		return int64(len(d.B)), true
	case heap.Range:
		return d.Len(), true
	}
	return 0, false
}

func hashValue[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, v value.Value) uint64 {
	switch v.Kind() {
	case value.KindInt:
		return uint64(v.AsInt())
	case value.KindBool:
		return uint64(v.AsInt())
	case value.KindFloat:
		return uint64(v.AsFloat())
	case value.KindInternString:
		s := in.GetStr(v.AsStringID())
		var h64 uint64 = 14695981039346656037
		for i := 0; i < len(s); i++ {
			h64 ^= uint64(s[i])
			h64 *= 1099511628211
		}
		return h64
	default:
		return uint64(v.AsTag())
	}
}

// HashValue exposes hashValue for ReplSession.load, which must rebuild
// every Set/FrozenSet's hash-bucket index after deserializing (gob does
// not carry unexported fields, so the index itself is never part of the
// saved stream; Dict's equivalent index is rebuilt from DictEntry's
// already-exported cached KeyHash instead, with no VM involved).
func HashValue[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, v value.Value) uint64 {
	return hashValue(h, in, v)
}

// pyGetItem implements subscript access for native containers; ok=false
// signals the caller should fall through to __getitem__ dispatch (§4.6).
func pyGetItem[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, container, key value.Value) (value.Value, bool, *excKind) {
	if !container.IsRef() {
		return value.None, false, nil
	}
	switch d := h.Get(container.AsHeapID()).(type) {
	case *heap.List:
		i, ok := normalizeIndex(key, int64(len(d.Items)))
		if !ok {
			return value.None, true, &excKind{typeError: "list indices must be integers"}
		}
		if i < 0 || i >= int64(len(d.Items)) {
			return value.None, true, &excKind{valueError: "list index out of range"}
		}
		return d.Items[i], true, nil
	case *heap.Tuple:
		i, ok := normalizeIndex(key, int64(len(d.Items)))
		if !ok || i < 0 || i >= int64(len(d.Items)) {
			return value.None, true, &excKind{valueError: "tuple index out of range"}
		}
		return d.Items[i], true, nil
	case *heap.Dict:
		hv := hashValue(h, in, key)
		for _, idx := range d.Index()[hv] {
			if pyEq(h, in, d.Entries[idx].Key, key) {
				return d.Entries[idx].Val, true, nil
			}
		}
		return value.None, true, &excKind{valueError: "key not found"}
	case heap.Range:
		i, ok := normalizeIndex(key, d.Len())
		if !ok {
			return value.None, true, &excKind{typeError: "range indices must be integers"}
		}
		return value.Int(d.Start + i*d.Step), true, nil
	}
	return value.None, false, nil
}

func normalizeIndex(key value.Value, length int64) (int64, bool) {
	if key.Kind() != value.KindInt {
		return 0, false
	}
	i := key.AsInt()
	if i < 0 {
		i += length
	}
	return i, true
}

// pySetItem implements item assignment for native containers.
func pySetItem[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, container, key, val value.Value) (bool, *excKind, error) {
	if !container.IsRef() {
		return false, nil, nil
	}
	switch d := h.Get(container.AsHeapID()).(type) {
	case *heap.List:
		i, ok := normalizeIndex(key, int64(len(d.Items)))
		if !ok || i < 0 || i >= int64(len(d.Items)) {
			return true, &excKind{valueError: "list assignment index out of range"}, nil
		}
		h.DropWithHeap(d.Items[i])
		if val.IsRef() {
			h.IncRef(val.AsHeapID())
		}
		d.Items[i] = val
		if val.IsRef() {
			h.MarkPotentialCycle()
		}
		return true, nil, nil
	case *heap.Dict:
		hv := hashValue(h, in, key)
		for _, idx := range d.Index()[hv] {
			if pyEq(h, in, d.Entries[idx].Key, key) {
				h.DropWithHeap(d.Entries[idx].Val)
				if val.IsRef() {
					h.IncRef(val.AsHeapID())
				}
				d.Entries[idx].Val = val
				return true, nil, nil
			}
		}
		if key.IsRef() {
			h.IncRef(key.AsHeapID())
		}
		if val.IsRef() {
			h.IncRef(val.AsHeapID())
			h.MarkPotentialCycle()
		}
		idx := len(d.Entries)
		d.Entries = append(d.Entries, heap.DictEntry{Key: key, Val: val, KeyHash: hv})
		d.Index()[hv] = append(d.Index()[hv], idx)
		return true, nil, nil
	}
	return false, nil, nil
}

// pyDelItem implements item deletion for native containers.
func pyDelItem[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, container, key value.Value) (bool, *excKind) {
	if !container.IsRef() {
		return false, nil
	}
	switch d := h.Get(container.AsHeapID()).(type) {
	case *heap.List:
		i, ok := normalizeIndex(key, int64(len(d.Items)))
		if !ok || i < 0 || i >= int64(len(d.Items)) {
			return true, &excKind{valueError: "list assignment index out of range"}
		}
		h.DropWithHeap(d.Items[i])
		d.Items = append(d.Items[:i], d.Items[i+1:]...)
		return true, nil
	case *heap.Dict:
		hv := hashValue(h, in, key)
		cands := d.Index()[hv]
		for ci, idx := range cands {
			if pyEq(h, in, d.Entries[idx].Key, key) {
				h.DropWithHeap(d.Entries[idx].Key)
				h.DropWithHeap(d.Entries[idx].Val)
				d.Entries = append(d.Entries[:idx], d.Entries[idx+1:]...)
				d.Index()[hv] = append(cands[:ci], cands[ci+1:]...)
				for hk, idxs := range d.Index() {
					for i, v := range idxs {
						if v > idx {
							d.Index()[hk][i] = v - 1
						}
					}
				}
				return true, nil
			}
		}
		return true, &excKind{valueError: "key not found"}
	}
	return false, nil
}

// pyContains implements `in` for native containers (§4.6).
func pyContains[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, container, item value.Value) (bool, bool) {
	if !container.IsRef() {
		return false, false
	}
	switch d := h.Get(container.AsHeapID()).(type) {
	case *heap.List:
		for _, v := range d.Items {
			if pyEq(h, in, v, item) {
				return true, true
			}
		}
		return false, true
	case *heap.Tuple:
		for _, v := range d.Items {
			if pyEq(h, in, v, item) {
				return true, true
			}
		}
		return false, true
	case *heap.Dict:
		hv := hashValue(h, in, item)
		for _, idx := range d.Index()[hv] {
			if pyEq(h, in, d.Entries[idx].Key, item) {
				return true, true
			}
		}
		return false, true
	case *heap.Set:
		hv := hashValue(h, in, item)
		for _, idx := range d.Index()[hv] {
			if pyEq(h, in, d.Items[idx], item) {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}

// NewIterator allocates the heap Iterator entry that OpGetIter pushes and
// OpForIter advances over a native sequence source.
func NewIterator[T heap.Tracker](h *heap.Heap[T], source value.Value) (value.HeapID, *excKind, error) {
	if source.IsRef() {
		switch h.Get(source.AsHeapID()).(type) {
		case *heap.List, *heap.Tuple, *heap.Set, heap.Range, *heap.Str, *heap.Dict:
			if source.IsRef() {
				h.IncRef(source.AsHeapID())
			}
			id, err := h.Allocate(&heap.Iterator{Source: source})
			return id, nil, err
		}
	}
	return 0, &excKind{typeError: "object is not iterable"}, nil
}

// Advance drives one ForIter step for a native iterator; ok=false with no
// error means StopIteration.
func Advance[T heap.Tracker](h *heap.Heap[T], it *heap.Iterator) (value.Value, bool, *excKind) {
	if !it.Source.IsRef() {
		return value.None, false, nil
	}
	switch d := h.Get(it.Source.AsHeapID()).(type) {
	case *heap.List:
		if it.Index >= int64(len(d.Items)) {
			return value.None, false, nil
		}
		v := d.Items[it.Index]
		it.Index++
		return v, true, nil
	case *heap.Tuple:
		if it.Index >= int64(len(d.Items)) {
			return value.None, false, nil
		}
		v := d.Items[it.Index]
		it.Index++
		return v, true, nil
	case *heap.Set:
		if it.Index >= int64(len(d.Items)) {
			return value.None, false, nil
		}
		v := d.Items[it.Index]
		it.Index++
		return v, true, nil
	case heap.Range:
		n := d.Len()
		if it.Index >= n {
			return value.None, false, nil
		}
		v := value.Int(d.Start + it.Index*d.Step)
		it.Index++
		return v, true, nil
	case *heap.Dict:
		if it.Index >= int64(len(d.Entries)) {
			return value.None, false, nil
		}
		v := d.Entries[it.Index].Key
		it.Index++
		return v, true, nil
	}
	return value.None, false, &excKind{typeError: "object is not iterable"}
}
