// Package ouros is the host-facing API: Runner for single-shot
// executions, Snapshot/FutureSnapshot for resuming a paused run, and
// Object as the value type hosts exchange with the core instead of the
// internal value.Value tagged union (§6 EXTERNAL INTERFACES).
package ouros

import (
	"fmt"

	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// ObjectKind discriminates Object (§6 "the usual primitives").
type ObjectKind uint8

const (
	KindNone ObjectKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindTuple
	KindDict
	KindSet
	KindFrozenSet
	KindEllipsis
	// KindRepr is output-only: FromValue uses it for values with no
	// host-meaningful round trip (functions, classes, modules, ...).
	// ToValue always rejects it with InvalidInputError (§6).
	KindRepr
)

// DictPair is one key/value entry of a KindDict Object. Order is
// preserved, matching Python dict's insertion-order guarantee.
type DictPair struct {
	Key, Value Object
}

// Object is the host-facing value type (§6). Only the fields matching
// Kind are meaningful.
type Object struct {
	Kind  ObjectKind
	Bool  bool
	Int   int64
	Float float64
	Str   string // KindString, KindRepr
	Bytes []byte
	Items []Object // KindList, KindTuple, KindSet, KindFrozenSet
	Pairs []DictPair
}

func None() Object            { return Object{Kind: KindNone} }
func Ellip() Object           { return Object{Kind: KindEllipsis} }
func Bool(v bool) Object      { return Object{Kind: KindBool, Bool: v} }
func Int(v int64) Object      { return Object{Kind: KindInt, Int: v} }
func Float(v float64) Object  { return Object{Kind: KindFloat, Float: v} }
func String(s string) Object  { return Object{Kind: KindString, Str: s} }
func Bytes(b []byte) Object   { return Object{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }
func List(items ...Object) Object  { return Object{Kind: KindList, Items: items} }
func Tuple(items ...Object) Object { return Object{Kind: KindTuple, Items: items} }
func Set(items ...Object) Object   { return Object{Kind: KindSet, Items: items} }
func FrozenSet(items ...Object) Object { return Object{Kind: KindFrozenSet, Items: items} }
func Dict(pairs ...DictPair) Object    { return Object{Kind: KindDict, Pairs: pairs} }

// Repr is an output-only Object carrying display text for a value with
// no host-meaningful round trip (e.g. a function or a class). ToValue
// rejects it.
func Repr(s string) Object { return Object{Kind: KindRepr, Str: s} }

// ToValue converts a host Object into an internal value.Value, allocating
// any container payload it needs. It rejects KindRepr with
// InvalidInputError (§6 "Output-only forms ... cannot be converted back").
func ToValue[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, o Object) (value.Value, error) {
	switch o.Kind {
	case KindNone:
		return value.None, nil
	case KindEllipsis:
		return value.Ellipsis, nil
	case KindBool:
		return value.Bool(o.Bool), nil
	case KindInt:
		return value.Int(o.Int), nil
	case KindFloat:
		return value.Float(o.Float), nil
	case KindString:
		return value.InternString(in.InternStr(o.Str)), nil
	case KindBytes:
		id, err := h.Allocate(&heap.Bytes{B: append([]byte(nil), o.Bytes...)})
		if err != nil {
			return value.Undefined, err
		}
		return value.Ref(id), nil
	case KindList:
		items, err := toValueSlice(h, in, o.Items)
		if err != nil {
			return value.Undefined, err
		}
		id, err := h.Allocate(&heap.List{Items: items})
		if err != nil {
			return value.Undefined, err
		}
		return value.Ref(id), nil
	case KindTuple:
		items, err := toValueSlice(h, in, o.Items)
		if err != nil {
			return value.Undefined, err
		}
		id, err := h.Allocate(&heap.Tuple{Items: items})
		if err != nil {
			return value.Undefined, err
		}
		return value.Ref(id), nil
	case KindSet, KindFrozenSet:
		s := heap.NewSet()
		for _, it := range o.Items {
			v, err := ToValue(h, in, it)
			if err != nil {
				return value.Undefined, err
			}
			hv := vm.HashValue(h, in, v)
			dup := false
			for _, idx := range s.Index()[hv] {
				if pyEqValue(h, in, s.Items[idx], v) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			idx := len(s.Items)
			s.Items = append(s.Items, v)
			s.Index()[hv] = append(s.Index()[hv], idx)
		}
		var data heap.HeapData = s
		if o.Kind == KindFrozenSet {
			data = &heap.FrozenSet{Set: *s}
		}
		id, err := h.Allocate(data)
		if err != nil {
			return value.Undefined, err
		}
		return value.Ref(id), nil
	case KindDict:
		d := heap.NewDict()
		for _, p := range o.Pairs {
			k, err := ToValue(h, in, p.Key)
			if err != nil {
				return value.Undefined, err
			}
			v, err := ToValue(h, in, p.Value)
			if err != nil {
				return value.Undefined, err
			}
			hv := vm.HashValue(h, in, k)
			d.Entries = append(d.Entries, heap.DictEntry{Key: k, Val: v, KeyHash: hv})
			d.Index()[hv] = append(d.Index()[hv], len(d.Entries)-1)
		}
		id, err := h.Allocate(d)
		if err != nil {
			return value.Undefined, err
		}
		return value.Ref(id), nil
	case KindRepr:
		return value.Undefined, &errtax.InvalidInputError{Msg: "Repr is output-only and cannot be converted to a Value"}
	default:
		return value.Undefined, &errtax.InvalidInputError{Msg: fmt.Sprintf("unknown Object kind %d", o.Kind)}
	}
}

func toValueSlice[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, objs []Object) ([]value.Value, error) {
	out := make([]value.Value, len(objs))
	for i, o := range objs {
		v, err := ToValue(h, in, o)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// pyEqValue is a minimal equality check for Object->Set/Dict construction,
// sufficient for the immediates and interned strings host-built literals
// are made of. Heap refs compare equal only when they are the same
// HeapID; the VM's full pyEq is not used.
func pyEqValue[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindInt, value.KindBool:
		return a.AsInt() == b.AsInt()
	case value.KindFloat:
		return a.AsFloat() == b.AsFloat()
	case value.KindInternString:
		return a.AsStringID() == b.AsStringID()
	case value.KindRef:
		return a.AsHeapID() == b.AsHeapID()
	default:
		return a.Is(b)
	}
}

// FromValue converts an internal value.Value into a host Object. Values
// with no host-meaningful round trip (functions, classes, modules,
// iterators, ...) become a KindRepr Object carrying a description instead
// of failing, since a result can legitimately contain one positionally
// (e.g. inside a list) without the whole conversion being an error.
func FromValue[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, v value.Value) (Object, error) {
	switch v.Kind() {
	case value.KindNone, value.KindUndefined:
		return None(), nil
	case value.KindEllipsis:
		return Ellip(), nil
	case value.KindBool:
		return Bool(v.AsBool()), nil
	case value.KindInt:
		return Int(v.AsInt()), nil
	case value.KindFloat:
		return Float(v.AsFloat()), nil
	case value.KindInternString:
		return String(in.GetStr(v.AsStringID())), nil
	case value.KindInternBytes:
		return Bytes(in.GetBytes(v.AsBytesID())), nil
	case value.KindRef:
		return fromRef(h, in, v.AsHeapID())
	default:
		return Repr(fmt.Sprintf("<%s>", v.Kind())), nil
	}
}

func fromRef[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, id value.HeapID) (Object, error) {
	switch d := h.Get(id).(type) {
	case *heap.Str:
		return String(d.S), nil
	case *heap.Bytes:
		return Bytes(d.B), nil
	case *heap.List:
		items, err := fromValueSlice(h, in, d.Items)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: KindList, Items: items}, nil
	case *heap.Tuple:
		items, err := fromValueSlice(h, in, d.Items)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: KindTuple, Items: items}, nil
	case *heap.Set:
		items, err := fromValueSlice(h, in, d.Items)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: KindSet, Items: items}, nil
	case *heap.FrozenSet:
		items, err := fromValueSlice(h, in, d.Items)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: KindFrozenSet, Items: items}, nil
	case *heap.Dict:
		return fromDictLike(h, in, d)
	case *heap.OrderedDict:
		return fromDictLike(h, in, &d.Dict)
	case *heap.DefaultDict:
		return fromDictLike(h, in, &d.Dict)
	case *heap.Counter:
		return fromDictLike(h, in, &d.Dict)
	default:
		return Repr(fmt.Sprintf("<%s object>", d.TypeName())), nil
	}
}

func fromDictLike[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, d *heap.Dict) (Object, error) {
	pairs := make([]DictPair, len(d.Entries))
	for i, e := range d.Entries {
		k, err := FromValue(h, in, e.Key)
		if err != nil {
			return Object{}, err
		}
		val, err := FromValue(h, in, e.Val)
		if err != nil {
			return Object{}, err
		}
		pairs[i] = DictPair{Key: k, Value: val}
	}
	return Object{Kind: KindDict, Pairs: pairs}, nil
}

func fromValueSlice[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, vals []value.Value) ([]Object, error) {
	out := make([]Object, len(vals))
	for i, v := range vals {
		o, err := FromValue(h, in, v)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}
