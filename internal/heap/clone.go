package heap

import (
	"math/big"

	"github.com/parcadei/ouros/internal/value"
)

// Clone implementations for every HeapData variant (§4.2 DeepClone):
// each copies its own backing slices/maps so the clone and the original
// never alias mutable storage. The child Values a container holds (Refs)
// keep the same HeapIDs, which is correct here because Heap.DeepClone
// clones every entry index-for-index into a same-shaped array, so those
// ids resolve against the new arena exactly the way they resolved
// against the old one.

// Str/Bytes/Bytearray/LongInt/Fraction/Decimal/List/Tuple/NamedTuple are
// allocated by pointer everywhere they're constructed (h.Allocate(&heap.X{...})),
// matching every type switch against them (`case *heap.List:` etc.), so
// Clone must return a pointer of the same concrete type rather than a
// bare value — otherwise DeepClone would silently change an entry's
// dynamic type from *X to X.
func (s *Str) Clone() HeapData       { c := *s; return &c }
func (b *Bytes) Clone() HeapData     { return &Bytes{B: append([]byte(nil), b.B...)} }
func (b *Bytearray) Clone() HeapData { return &Bytearray{B: append([]byte(nil), b.B...)} }

func (n *LongInt) Clone() HeapData { return &LongInt{N: new(big.Int).Set(n.N)} }
func (f *Fraction) Clone() HeapData {
	return &Fraction{Num: new(big.Int).Set(f.Num), Den: new(big.Int).Set(f.Den)}
}
func (d *Decimal) Clone() HeapData {
	return &Decimal{Digits: new(big.Int).Set(d.Digits), Exp: d.Exp}
}

func (l *List) Clone() HeapData  { return &List{Items: append([]value.Value(nil), l.Items...)} }
func (t *Tuple) Clone() HeapData { return &Tuple{Items: append([]value.Value(nil), t.Items...)} }

func (n *NamedTuple) Clone() HeapData {
	return &NamedTuple{
		Items:      append([]value.Value(nil), n.Items...),
		FieldNames: append([]value.StringID(nil), n.FieldNames...),
		TypeLabel:  n.TypeLabel,
	}
}

func (d *Dict) cloneDict() Dict {
	entries := append([]DictEntry(nil), d.Entries...)
	index := make(map[uint64][]int, len(d.index))
	for k, v := range d.index {
		index[k] = append([]int(nil), v...)
	}
	return Dict{Entries: entries, index: index}
}

func (d *Dict) Clone() HeapData {
	clone := d.cloneDict()
	return &clone
}

func (d *OrderedDict) Clone() HeapData {
	return &OrderedDict{Dict: d.cloneDict()}
}

func (d *DefaultDict) Clone() HeapData {
	return &DefaultDict{Dict: d.cloneDict(), FactoryCallable: d.FactoryCallable}
}

func (c *Counter) Clone() HeapData {
	return &Counter{Dict: c.cloneDict()}
}

func (c *ChainMap) Clone() HeapData {
	return &ChainMap{Maps: append([]value.HeapID(nil), c.Maps...)}
}

func (s *Set) cloneSet() Set {
	items := append([]value.Value(nil), s.Items...)
	index := make(map[uint64][]int, len(s.index))
	for k, v := range s.index {
		index[k] = append([]int(nil), v...)
	}
	return Set{Items: items, index: index}
}

func (s *Set) Clone() HeapData { clone := s.cloneSet(); return &clone }

func (f *FrozenSet) Clone() HeapData { return &FrozenSet{Set: f.cloneSet()} }

func (r Range) Clone() HeapData { return r }

func (s *Slice) Clone() HeapData { c := *s; return &c }
func (p *Path) Clone() HeapData  { c := *p; return &c }

func (c *ClassObject) Clone() HeapData {
	clone := &ClassObject{
		Name:        c.Name,
		Metaclass:   c.Metaclass,
		Namespace:   c.Namespace,
		Bases:       append([]value.HeapID(nil), c.Bases...),
		MRO:         append([]value.HeapID(nil), c.MRO...),
		SlotNames:   append([]value.StringID(nil), c.SlotNames...),
		ClassUID:    c.ClassUID,
		BuiltinBase: c.BuiltinBase,
	}
	if c.Subclasses != nil {
		clone.Subclasses = make(map[uint64]value.HeapID, len(c.Subclasses))
		for k, v := range c.Subclasses {
			clone.Subclasses[k] = v
		}
	}
	return clone
}

func (i *Instance) Clone() HeapData {
	return &Instance{
		Class:     i.Class,
		AttrsDict: i.AttrsDict,
		Slots:     append([]value.Value(nil), i.Slots...),
		HasDict:   i.HasDict,
		WeakRefs:  append([]value.HeapID(nil), i.WeakRefs...),
	}
}

func (b *BoundMethod) Clone() HeapData {
	return &BoundMethod{Receiver: b.Receiver, Func: b.Func}
}

func (s *StaticMethod) Clone() HeapData { return &StaticMethod{Func: s.Func} }
func (c *ClassMethod) Clone() HeapData  { return &ClassMethod{Func: c.Func} }

func (p *UserProperty) Clone() HeapData {
	return &UserProperty{Getter: p.Getter, Setter: p.Setter, Deleter: p.Deleter}
}

func (g *ItemGetter) Clone() HeapData {
	return &ItemGetter{Items: append([]value.Value(nil), g.Items...)}
}

func (a *AttrGetter) Clone() HeapData {
	return &AttrGetter{Names: append([]value.StringID(nil), a.Names...)}
}

func (m *MethodCaller) Clone() HeapData {
	return &MethodCaller{Name: m.Name, Args: append([]value.Value(nil), m.Args...)}
}

func (m *Module) Clone() HeapData { return &Module{Name: m.Name, Namespace: m.Namespace} }

func (s *StdlibObject) Clone() HeapData {
	return &StdlibObject{Kind: s.Kind, Payload: append([]value.Value(nil), s.Payload...)}
}

func cloneFrameSnapshot(f FrameSnapshot) FrameSnapshot {
	return FrameSnapshot{
		Function:  f.Function,
		IP:        f.IP,
		Locals:    append([]value.Value(nil), f.Locals...),
		OperandSt: append([]value.Value(nil), f.OperandSt...),
		Done:      f.Done,
	}
}

func (it *Iterator) Clone() HeapData {
	clone := &Iterator{Source: it.Source, Index: it.Index}
	if it.Frame != nil {
		snap := cloneFrameSnapshot(*it.Frame)
		clone.Frame = &snap
	}
	return clone
}

func (g *Generator) Clone() HeapData {
	return &Generator{Frame: cloneFrameSnapshot(g.Frame)}
}

func (c *Coroutine) Clone() HeapData {
	return &Coroutine{Frame: cloneFrameSnapshot(c.Frame), Awaited: c.Awaited}
}

func (a *AsyncGenerator) Clone() HeapData {
	return &AsyncGenerator{Frame: cloneFrameSnapshot(a.Frame)}
}

func (w *WeakRef) Clone() HeapData { return &WeakRef{Target: w.Target, Alive: w.Alive} }

func (Placeholder) Clone() HeapData { return Placeholder{} }
