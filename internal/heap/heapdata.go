package heap

import (
	"math/big"

	"github.com/parcadei/ouros/internal/value"
)

// HeapData is the sum type every heap entry's payload implements. Each
// concrete type corresponds to one variant named in the data model (§3):
// containers that may participate in reference cycles report
// ContainsRefs() == true and enumerate their child Values via Refs() so
// the cycle collector (gc.go) can walk them without type-switching on
// every visit.
type HeapData interface {
	// TypeName is used by isinstance/type()/error messages.
	TypeName() string
	// ContainsRefs reports whether this entry can hold Value::Ref
	// children and therefore needs to be considered by the cycle
	// collector and by refcount-drop propagation.
	ContainsRefs() bool
	// Refs appends this entry's child Values (if any) to dst and
	// returns the result, for use by both the cycle collector and
	// drop propagation.
	Refs(dst []value.Value) []value.Value
	// Clone returns an independent copy of this entry's payload: its own
	// backing slices/maps, so mutating the clone never touches the
	// original. Child Values are copied by value (a Ref just copies the
	// HeapID); Heap.DeepClone clones every entry at the same index into a
	// same-shaped array, so those ids stay valid against the new arena.
	Clone() HeapData
}

// --- Str / Bytes / Bytearray -------------------------------------------------

type Str struct{ S string }

func (Str) TypeName() string                         { return "str" }
func (Str) ContainsRefs() bool                        { return false }
func (Str) Refs(dst []value.Value) []value.Value      { return dst }

type Bytes struct{ B []byte }

func (Bytes) TypeName() string                    { return "bytes" }
func (Bytes) ContainsRefs() bool                   { return false }
func (Bytes) Refs(dst []value.Value) []value.Value { return dst }

type Bytearray struct{ B []byte }

func (Bytearray) TypeName() string                    { return "bytearray" }
func (Bytearray) ContainsRefs() bool                   { return false }
func (Bytearray) Refs(dst []value.Value) []value.Value { return dst }

// --- Numeric heap types ------------------------------------------------------

type LongInt struct{ N *big.Int }

func (LongInt) TypeName() string                    { return "int" }
func (LongInt) ContainsRefs() bool                   { return false }
func (LongInt) Refs(dst []value.Value) []value.Value { return dst }

type Fraction struct{ Num, Den *big.Int }

func (Fraction) TypeName() string                    { return "Fraction" }
func (Fraction) ContainsRefs() bool                   { return false }
func (Fraction) Refs(dst []value.Value) []value.Value { return dst }

type Decimal struct{ Digits *big.Int; Exp int32 }

func (Decimal) TypeName() string                    { return "Decimal" }
func (Decimal) ContainsRefs() bool                   { return false }
func (Decimal) Refs(dst []value.Value) []value.Value { return dst }

// --- Containers ---------------------------------------------------------------

type List struct{ Items []value.Value }

func (List) TypeName() string          { return "list" }
func (List) ContainsRefs() bool        { return true }
func (l List) Refs(dst []value.Value) []value.Value { return append(dst, l.Items...) }

type Tuple struct{ Items []value.Value }

func (Tuple) TypeName() string          { return "tuple" }
func (Tuple) ContainsRefs() bool        { return true }
func (t Tuple) Refs(dst []value.Value) []value.Value { return append(dst, t.Items...) }

// NamedTuple is a Tuple additionally carrying field names; the field
// names live in the interner (StringIDs), so this entry itself only
// contributes its positional values to the live/cycle set.
type NamedTuple struct {
	Items      []value.Value
	FieldNames []value.StringID
	TypeLabel  string
}

func (n NamedTuple) TypeName() string { return n.TypeLabel }
func (NamedTuple) ContainsRefs() bool { return true }
func (n NamedTuple) Refs(dst []value.Value) []value.Value { return append(dst, n.Items...) }

// DictEntry preserves Python's insertion-order guarantee: Dict (like every
// Python 3.7+ dict) iterates in insertion order, so entries are kept in a
// slice rather than a bare map.
type DictEntry struct {
	Key, Val value.Value
	// KeyHash caches the computed hash so repeated lookups during a
	// single operation (e.g. dict merge) don't re-hash.
	KeyHash uint64
}

type Dict struct {
	Entries []DictEntry
	// index maps a key hash to candidate slot indices, open-addressed
	// by equality check against Entries (mirrors the Interner's
	// hash-bucket dedup shape).
	index map[uint64][]int
}

func NewDict() *Dict { return &Dict{index: map[uint64][]int{}} }

// RebuildIndex recomputes the hash-bucket table from Entries' cached
// KeyHash after a load() deserializes Entries but not the unexported
// index (§4.9 save/load; gob only carries exported fields).
func (d *Dict) RebuildIndex() {
	d.index = make(map[uint64][]int, len(d.Entries))
	for i, e := range d.Entries {
		d.index[e.KeyHash] = append(d.index[e.KeyHash], i)
	}
}

// Index exposes the hash-bucket table for callers outside this package
// (internal/vm's container.go, internal/builtins' dict/set constructors)
// that need to insert/probe entries the same way the VM's native
// dict/set opcodes do, without duplicating the bucket layout.
func (d *Dict) Index() map[uint64][]int { return d.index }

func (*Dict) TypeName() string { return "dict" }
func (*Dict) ContainsRefs() bool { return true }
func (d *Dict) Refs(dst []value.Value) []value.Value {
	for _, e := range d.Entries {
		dst = append(dst, e.Key, e.Val)
	}
	return dst
}

// OrderedDict/DefaultDict/Counter/ChainMap reuse Dict's entry shape with a
// distinct type tag for isinstance/repr purposes; DefaultDict additionally
// carries the Value used to construct missing entries and ChainMap carries
// the chain of underlying maps by HeapID.
type OrderedDict struct{ Dict }

func (*OrderedDict) TypeName() string { return "OrderedDict" }

type DefaultDict struct {
	Dict
	FactoryCallable value.Value
}

func (*DefaultDict) TypeName() string { return "defaultdict" }
func (d *DefaultDict) Refs(dst []value.Value) []value.Value {
	dst = d.Dict.Refs(dst)
	return append(dst, d.FactoryCallable)
}

type Counter struct{ Dict }

func (*Counter) TypeName() string { return "Counter" }

type ChainMap struct{ Maps []value.HeapID }

func (*ChainMap) TypeName() string   { return "ChainMap" }
func (*ChainMap) ContainsRefs() bool { return true }
func (c *ChainMap) Refs(dst []value.Value) []value.Value {
	for _, id := range c.Maps {
		dst = append(dst, value.Ref(id))
	}
	return dst
}

// Set/FrozenSet share the same hash-indexed slice shape as Dict but store
// only keys.
type Set struct {
	Items []value.Value
	index map[uint64][]int
}

func NewSet() *Set { return &Set{index: map[uint64][]int{}} }

// Index exposes the hash-bucket table the same way Dict.Index does.
func (s *Set) Index() map[uint64][]int { return s.index }

// RebuildIndex recomputes the hash-bucket table from Items using hashFn
// (vm.HashValue), since Set has no per-item cached hash the way
// DictEntry does (§4.9 save/load).
func (s *Set) RebuildIndex(hashFn func(value.Value) uint64) {
	s.index = make(map[uint64][]int, len(s.Items))
	for i, v := range s.Items {
		hv := hashFn(v)
		s.index[hv] = append(s.index[hv], i)
	}
}

func (*Set) TypeName() string          { return "set" }
func (*Set) ContainsRefs() bool        { return true }
func (s *Set) Refs(dst []value.Value) []value.Value { return append(dst, s.Items...) }

type FrozenSet struct{ Set }

func (*FrozenSet) TypeName() string { return "frozenset" }

// --- Ranges / slices / paths --------------------------------------------------

type Range struct{ Start, Stop, Step int64 }

func (Range) TypeName() string                    { return "range" }
func (Range) ContainsRefs() bool                   { return false }
func (Range) Refs(dst []value.Value) []value.Value { return dst }

func (r Range) Len() int64 {
	if r.Step == 0 {
		return 0
	}
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0
		}
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Stop >= r.Start {
		return 0
	}
	return (r.Start - r.Stop - r.Step - 1) / (-r.Step)
}

type Slice struct {
	Start, Stop, Step value.Value // each may be value.None to mean "unspecified"
}

func (Slice) TypeName() string          { return "slice" }
func (Slice) ContainsRefs() bool        { return true }
func (s Slice) Refs(dst []value.Value) []value.Value {
	return append(dst, s.Start, s.Stop, s.Step)
}

type Path struct{ Raw string }

func (Path) TypeName() string                    { return "PosixPath" }
func (Path) ContainsRefs() bool                   { return false }
func (Path) Refs(dst []value.Value) []value.Value { return dst }

// --- Object model --------------------------------------------------------------

// ClassObject is a class entry: its MRO is populated after construction
// (§3 "ClassObject lifecycle") because the entry must exist in the heap
// before C3 linearization can reference itself as MRO[0].
type ClassObject struct {
	Name        value.StringID
	Metaclass   value.Value
	Namespace   value.HeapID // a Dict entry
	Bases       []value.HeapID
	MRO         []value.HeapID
	SlotNames   []value.StringID // non-nil => __slots__ layout
	Subclasses  map[uint64]value.HeapID
	ClassUID    uint64
	BuiltinBase bool // true for the pre-materialized builtin-type classes
}

func (*ClassObject) TypeName() string   { return "type" }
func (*ClassObject) ContainsRefs() bool { return true }
func (c *ClassObject) Refs(dst []value.Value) []value.Value {
	dst = append(dst, c.Metaclass, value.Ref(c.Namespace))
	for _, b := range c.Bases {
		dst = append(dst, value.Ref(b))
	}
	for _, m := range c.MRO {
		dst = append(dst, value.Ref(m))
	}
	for _, s := range c.Subclasses {
		dst = append(dst, value.Ref(s))
	}
	return dst
}

// Instance holds either a flat slot vector (when its class has
// __slots__) or a lazily-created attrs dict, never both populated.
type Instance struct {
	Class     value.HeapID
	AttrsDict value.HeapID // 0 (invalid) until first dynamic attribute set, if no slots
	Slots     []value.Value
	HasDict   bool
	WeakRefs  []value.HeapID // does not hold a strong reference (§3)
}

func (*Instance) TypeName() string   { return "instance" }
func (*Instance) ContainsRefs() bool { return true }
func (i *Instance) Refs(dst []value.Value) []value.Value {
	dst = append(dst, value.Ref(i.Class))
	if i.HasDict {
		dst = append(dst, value.Ref(i.AttrsDict))
	}
	return append(dst, i.Slots...)
}

type BoundMethod struct {
	Receiver value.Value
	Func     value.Value // DefFunction, ExtFunction, Builtin, or another Ref
}

func (*BoundMethod) TypeName() string   { return "method" }
func (*BoundMethod) ContainsRefs() bool { return true }
func (b *BoundMethod) Refs(dst []value.Value) []value.Value {
	return append(dst, b.Receiver, b.Func)
}

type StaticMethod struct{ Func value.Value }

func (*StaticMethod) TypeName() string   { return "staticmethod" }
func (*StaticMethod) ContainsRefs() bool { return true }
func (s *StaticMethod) Refs(dst []value.Value) []value.Value { return append(dst, s.Func) }

type ClassMethod struct{ Func value.Value }

func (*ClassMethod) TypeName() string   { return "classmethod" }
func (*ClassMethod) ContainsRefs() bool { return true }
func (c *ClassMethod) Refs(dst []value.Value) []value.Value { return append(dst, c.Func) }

type UserProperty struct{ Getter, Setter, Deleter value.Value }

func (*UserProperty) TypeName() string   { return "property" }
func (*UserProperty) ContainsRefs() bool { return true }
func (p *UserProperty) Refs(dst []value.Value) []value.Value {
	return append(dst, p.Getter, p.Setter, p.Deleter)
}

type ItemGetter struct{ Items []value.Value }

func (*ItemGetter) TypeName() string   { return "itemgetter" }
func (*ItemGetter) ContainsRefs() bool { return true }
func (g *ItemGetter) Refs(dst []value.Value) []value.Value { return append(dst, g.Items...) }

type AttrGetter struct{ Names []value.StringID }

func (*AttrGetter) TypeName() string                    { return "attrgetter" }
func (*AttrGetter) ContainsRefs() bool                   { return false }
func (*AttrGetter) Refs(dst []value.Value) []value.Value { return dst }

type MethodCaller struct {
	Name value.StringID
	Args []value.Value
}

func (*MethodCaller) TypeName() string   { return "methodcaller" }
func (*MethodCaller) ContainsRefs() bool { return true }
func (m *MethodCaller) Refs(dst []value.Value) []value.Value { return append(dst, m.Args...) }

type Module struct {
	Name      value.StringID
	Namespace value.HeapID
}

func (*Module) TypeName() string   { return "module" }
func (*Module) ContainsRefs() bool { return true }
func (m *Module) Refs(dst []value.Value) []value.Value { return append(dst, value.Ref(m.Namespace)) }

// StdlibObject is the catch-all for opaque module-local state (complex
// number pair, csv dialect/reader state, struct-format cache, regex
// flags, …). The core only needs to move it around and drop it; the
// stdlib module implementations (out of scope, §1) interpret Payload.
type StdlibObject struct {
	Kind    string
	Payload []value.Value
}

func (s *StdlibObject) TypeName() string   { return s.Kind }
func (*StdlibObject) ContainsRefs() bool   { return true }
func (s *StdlibObject) Refs(dst []value.Value) []value.Value { return append(dst, s.Payload...) }

// --- Coroutine machinery -------------------------------------------------------

// FrameSnapshot is the suspended-frame payload shared by Iterator (when it
// wraps a generator), Generator, Coroutine and AsyncGenerator: code +
// instruction pointer + locals + operand stack, exactly the state a VM
// frame needs to resume (§9 "Coroutines and generators").
type FrameSnapshot struct {
	Function  value.FunctionID
	IP        int
	Locals    []value.Value
	OperandSt []value.Value
	Done      bool
}

type Iterator struct {
	// Source covers plain-value iterators (over a List/Tuple/etc.);
	// Frame is populated instead when the iterator wraps a generator.
	Source value.Value
	Index  int64
	Frame  *FrameSnapshot
}

func (*Iterator) TypeName() string   { return "iterator" }
func (*Iterator) ContainsRefs() bool { return true }
func (it *Iterator) Refs(dst []value.Value) []value.Value {
	dst = append(dst, it.Source)
	if it.Frame != nil {
		dst = append(dst, it.Frame.Locals...)
		dst = append(dst, it.Frame.OperandSt...)
	}
	return dst
}

type Generator struct{ Frame FrameSnapshot }

func (*Generator) TypeName() string   { return "generator" }
func (*Generator) ContainsRefs() bool { return true }
func (g *Generator) Refs(dst []value.Value) []value.Value {
	dst = append(dst, g.Frame.Locals...)
	return append(dst, g.Frame.OperandSt...)
}

// Coroutine is the payload behind an `async def` call before it is
// scheduled as a Task (internal/scheduler); once scheduled the scheduler
// owns the frame chain directly.
type Coroutine struct {
	Frame   FrameSnapshot
	Awaited value.Value // set once `await`ed, for "cannot reuse already awaited coroutine"
}

func (*Coroutine) TypeName() string   { return "coroutine" }
func (*Coroutine) ContainsRefs() bool { return true }
func (c *Coroutine) Refs(dst []value.Value) []value.Value {
	dst = append(dst, c.Frame.Locals...)
	dst = append(dst, c.Frame.OperandSt...)
	return append(dst, c.Awaited)
}

type AsyncGenerator struct{ Frame FrameSnapshot }

func (*AsyncGenerator) TypeName() string   { return "async_generator" }
func (*AsyncGenerator) ContainsRefs() bool { return true }
func (a *AsyncGenerator) Refs(dst []value.Value) []value.Value {
	dst = append(dst, a.Frame.Locals...)
	return append(dst, a.Frame.OperandSt...)
}

// WeakRef does not contribute a strong reference to its target (§3); it
// holds the target's HeapID only so it can be invalidated when the
// target's refcount reaches zero (see heap.go's drop propagation).
type WeakRef struct {
	Target value.HeapID
	Alive  bool
}

func (*WeakRef) TypeName() string                    { return "weakref" }
func (*WeakRef) ContainsRefs() bool                   { return false }
func (*WeakRef) Refs(dst []value.Value) []value.Value { return dst }

// Placeholder is the payload freeSlot stores in a freed arena slot, so a
// free entry still holds a typed (if empty) HeapData rather than nil.
type Placeholder struct{}

func (Placeholder) TypeName() string                    { return "<placeholder>" }
func (Placeholder) ContainsRefs() bool                   { return false }
func (Placeholder) Refs(dst []value.Value) []value.Value { return dst }
