// Package builtins implements C5: the closed dispatch enum (Function,
// ExcType, Type, TypeMethod) that a VM call site resolves a Value::Builtin
// or Value::ModuleFunction tag into (§4.5). It depends only on
// internal/heap, internal/interner and internal/value so internal/vm can
// import it without a cycle (vm calls Dispatch; builtins never calls back
// into vm).
package builtins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// Function enumerates the representative free-function builtins (§4.5,
// SPEC_FULL C5). Only this small set is implemented end-to-end:
// LookupFunction reports found=false for any other name, and CallFunction
// answers a tag outside the set with a NotImplementedError outcome.
type Function int

const (
	FnLen Function = iota
	FnPrint
	FnRange
	FnSorted
	FnIsinstance
	FnListCtor
	FnDictCtor
	FnSetCtor
	FnTupleCtor
	fnCount
)

var fnNames = [fnCount]string{
	FnLen: "len", FnPrint: "print", FnRange: "range", FnSorted: "sorted",
	FnIsinstance: "isinstance", FnListCtor: "list", FnDictCtor: "dict",
	FnSetCtor: "set", FnTupleCtor: "tuple",
}

func (f Function) String() string {
	if f < 0 || f >= fnCount {
		return "<builtin>"
	}
	return fnNames[f]
}

// LookupFunction resolves a free-function name to its Function tag, for
// the compiler/prepare stage (external, §1) to embed as a Value::Builtin
// tag. found=false means the name is not in the representative set; the
// compiler is responsible for deciding whether that is a NameError at
// compile time or a deferred lookup.
func LookupFunction(name string) (Function, bool) {
	for i := Function(0); i < fnCount; i++ {
		if fnNames[i] == name {
			return i, true
		}
	}
	return 0, false
}

// TypeMethod enumerates the representative bound-method builtins (§4.5):
// list.append, dict.get, str.format, Exception.__init__. Dispatch splits
// the first positional argument off as the receiver (§4.5 "TypeMethod ...
// receiver is always args[0]").
type TypeMethod int

const (
	TMListAppend TypeMethod = iota
	TMDictGet
	TMStrFormat
	TMExceptionInit
	tmCount
)

var tmNames = [tmCount]string{
	TMListAppend: "append", TMDictGet: "get", TMStrFormat: "format",
	TMExceptionInit: "__init__",
}

func (m TypeMethod) String() string {
	if m < 0 || m >= tmCount {
		return "<method>"
	}
	return tmNames[m]
}

// LookupTypeMethod resolves (builtin type, method name) for a
// representative builtin method, given the receiver's BuiltinType.
func LookupTypeMethod(bt heap.BuiltinType, name string) (TypeMethod, bool) {
	switch bt {
	case heap.TypeList:
		if name == "append" {
			return TMListAppend, true
		}
	case heap.TypeDict:
		if name == "get" {
			return TMDictGet, true
		}
	case heap.TypeStr:
		if name == "format" {
			return TMStrFormat, true
		}
	case heap.TypeException:
		if name == "__init__" {
			return TMExceptionInit, true
		}
	}
	return 0, false
}

// Outcome is the uniform result of a builtin call (§4.5): either a plain
// value or an Exc signal that the VM must raise as a Python exception.
// The separate Go error return is only for a genuine host/resource
// failure (OOM, deadline).
type Outcome struct {
	Value value.Value
	Exc   *ExcSignal
}

// ExcSignal names the exception type and message a builtin wants raised;
// the VM converts it into a heap Instance via its own excClasses table
// (vm.raisePy does the equivalent for opcode-level errors).
type ExcSignal struct {
	Type errtax.ExcType
	Msg  string
}

func excOutcome(t errtax.ExcType, msg string) Outcome { return Outcome{Exc: &ExcSignal{Type: t, Msg: msg}} }
func valOutcome(v value.Value) Outcome               { return Outcome{Value: v} }

// PrintWriter is the narrow sink print() writes through (§6 PrintWriter
// trait: "stdout_write(Cow<str>) -> Result<(), Exception>" plus a
// separate "stdout_push(char)" for the newline print() appends). A host
// write failure comes back as an ExcSignal and is raised as a catchable
// Python exception at the print() call site, same as any other builtin.
type PrintWriter interface {
	StdoutWrite(s string) *ExcSignal
	StdoutPush(r rune)
}

// Context bundles the pieces a builtin needs without importing vm: the
// heap/interner for any allocation, and the session's configured stdout
// sink. T is the heap's resource-tracker type parameter.
type Context[T heap.Tracker] struct {
	Heap    *heap.Heap[T]
	Interns *interner.Interner
	Stdout  PrintWriter
}

// CallFunction dispatches a Function tag (§4.5 "Function ... a free
// function looked up by the Builtin tag").
func CallFunction[T heap.Tracker](c Context[T], fn Function, args value.CallArgs) (Outcome, error) {
	switch fn {
	case FnLen:
		return builtinLen(c, args)
	case FnPrint:
		return builtinPrint(c, args)
	case FnRange:
		return builtinRange(c, args)
	case FnSorted:
		return builtinSorted(c, args)
	case FnIsinstance:
		return builtinIsinstance(c, args)
	case FnListCtor:
		return builtinListCtor(c, args)
	case FnDictCtor:
		return builtinDictCtor(c, args)
	case FnSetCtor:
		return builtinSetCtor(c, args)
	case FnTupleCtor:
		return builtinTupleCtor(c, args)
	}
	return excOutcome(errtax.ExcNotImplementedError, fmt.Sprintf("builtin %s not implemented in the core", fn)), nil
}

// CallTypeMethod dispatches a TypeMethod tag; args.Positional[0] is
// always the bound receiver (§4.5).
func CallTypeMethod[T heap.Tracker](c Context[T], m TypeMethod, args value.CallArgs) (Outcome, error) {
	if len(args.Positional) == 0 {
		return excOutcome(errtax.ExcTypeError, "missing receiver argument"), nil
	}
	recv := args.Positional[0]
	rest := args.Positional[1:]
	switch m {
	case TMListAppend:
		return listAppend(c, recv, rest)
	case TMDictGet:
		return dictGet(c, recv, rest)
	case TMStrFormat:
		return strFormat(c, recv, rest, args.KwNames, args.KwValues)
	case TMExceptionInit:
		return exceptionInit(c, recv, rest)
	}
	return excOutcome(errtax.ExcNotImplementedError, fmt.Sprintf("method %s not implemented in the core", m)), nil
}

func noKwargs(args value.CallArgs) bool { return len(args.KwNames) == 0 }

func requireArity(pos []value.Value, n int) bool { return len(pos) == n }

// --- len/print/isinstance -----------------------------------------------------

func builtinLen[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	if !requireArity(args.Positional, 1) || !noKwargs(args) {
		return excOutcome(errtax.ExcTypeError, "len() takes exactly one argument"), nil
	}
	v := args.Positional[0]
	if v.Kind() == value.KindInternString {
		s := c.Interns.GetStr(v.AsStringID())
		return valOutcome(value.Int(int64(len([]rune(s))))), nil
	}
	if !v.IsRef() {
		return excOutcome(errtax.ExcTypeError, "object has no len()"), nil
	}
	switch d := c.Heap.Get(v.AsHeapID()).(type) {
	case *heap.List:
		return valOutcome(value.Int(int64(len(d.Items)))), nil
	case *heap.Tuple:
		return valOutcome(value.Int(int64(len(d.Items)))), nil
	case *heap.Dict:
		return valOutcome(value.Int(int64(len(d.Entries)))), nil
	case *heap.Set:
		return valOutcome(value.Int(int64(len(d.Items)))), nil
	case *heap.Str:
		return valOutcome(value.Int(int64(len([]rune(d.S))))), nil
	case *heap.Bytes:
		return valOutcome(value.Int(int64(len(d.B)))), nil
	case heap.Range:
		return valOutcome(value.Int(d.Len())), nil
	}
	return excOutcome(errtax.ExcTypeError, "object has no len()"), nil
}

// builtinPrint joins str(arg) for each positional with a space, writes it
// through c.Stdout, then pushes the trailing newline as its own call (§6
// PrintWriter: stdout_write is the fallible body, stdout_push(char) is
// the separate newline end-char). A write failure surfaces as the raised
// exception instead of the None print() normally returns.
func builtinPrint[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	parts := make([]string, len(args.Positional))
	for i, v := range args.Positional {
		parts[i] = reprValue(c, v)
	}
	if c.Stdout != nil {
		if exc := c.Stdout.StdoutWrite(strings.Join(parts, " ")); exc != nil {
			return Outcome{Exc: exc}, nil
		}
		c.Stdout.StdoutPush('\n')
	}
	return valOutcome(value.None), nil
}

func builtinIsinstance[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	if !requireArity(args.Positional, 2) {
		return excOutcome(errtax.ExcTypeError, "isinstance() takes exactly two arguments"), nil
	}
	obj, cls := args.Positional[0], args.Positional[1]
	if !cls.IsRef() {
		return excOutcome(errtax.ExcTypeError, "isinstance() arg 2 must be a type"), nil
	}
	target, ok := c.Heap.Get(cls.AsHeapID()).(*heap.ClassObject)
	if !ok {
		return excOutcome(errtax.ExcTypeError, "isinstance() arg 2 must be a type"), nil
	}
	_ = target
	if !obj.IsRef() {
		return valOutcome(value.Bool(false)), nil
	}
	inst, ok := c.Heap.Get(obj.AsHeapID()).(*heap.Instance)
	if !ok {
		return valOutcome(value.Bool(false)), nil
	}
	objCls, ok := c.Heap.Get(inst.Class).(*heap.ClassObject)
	if !ok {
		return valOutcome(value.Bool(false)), nil
	}
	for _, m := range objCls.MRO {
		if m == cls.AsHeapID() {
			return valOutcome(value.Bool(true)), nil
		}
	}
	return valOutcome(value.Bool(false)), nil
}

// --- range/sorted --------------------------------------------------------------

func builtinRange[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	if !noKwargs(args) {
		return excOutcome(errtax.ExcTypeError, "range() takes no keyword arguments"), nil
	}
	var start, stop, step int64 = 0, 0, 1
	switch len(args.Positional) {
	case 1:
		stop = args.Positional[0].AsInt()
	case 2:
		start, stop = args.Positional[0].AsInt(), args.Positional[1].AsInt()
	case 3:
		start, stop, step = args.Positional[0].AsInt(), args.Positional[1].AsInt(), args.Positional[2].AsInt()
		if step == 0 {
			return excOutcome(errtax.ExcValueError, "range() arg 3 must not be zero"), nil
		}
	default:
		return excOutcome(errtax.ExcTypeError, "range expected 1 to 3 arguments"), nil
	}
	// range is a value-semantics HeapData (no Refs), still allocated so
	// it can be boxed into a Value::Ref like every other container (§3).
	id, err := c.Heap.Allocate(heap.Range{Start: start, Stop: stop, Step: step})
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

// builtinSorted returns a new list with the items of the iterable source
// sorted by Python's default ordering (§4.6 pyCmp semantics are owned by
// internal/vm; builtins only needs a total order over the representative
// immediate kinds it is asked to sort, since full user-__lt__ dispatch
// would need a VM call-back and stays out of the representative set).
func builtinSorted[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	if len(args.Positional) != 1 {
		return excOutcome(errtax.ExcTypeError, "sorted() takes exactly one argument"), nil
	}
	items, ok := materializeSequence(c, args.Positional[0])
	if !ok {
		return excOutcome(errtax.ExcTypeError, "object is not iterable"), nil
	}
	out := make([]value.Value, len(items))
	copy(out, items)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		less, err := lessThan(out[i], out[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return excOutcome(errtax.ExcTypeError, sortErr.Error()), nil
	}
	for _, v := range out {
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID())
		}
	}
	id, err := c.Heap.Allocate(&heap.List{Items: out})
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

func lessThan(a, b value.Value) (bool, error) {
	switch {
	case a.Kind() == value.KindInt && b.Kind() == value.KindInt:
		return a.AsInt() < b.AsInt(), nil
	case numericKind(a) && numericKind(b):
		return asFloat(a) < asFloat(b), nil
	}
	return false, fmt.Errorf("'<' not supported between instances of the given types")
}

func numericKind(v value.Value) bool {
	return v.Kind() == value.KindInt || v.Kind() == value.KindFloat || v.Kind() == value.KindBool
}

func asFloat(v value.Value) float64 {
	if v.Kind() == value.KindFloat {
		return v.AsFloat()
	}
	return float64(v.AsInt())
}

func materializeSequence[T heap.Tracker](c Context[T], v value.Value) ([]value.Value, bool) {
	if !v.IsRef() {
		return nil, false
	}
	switch d := c.Heap.Get(v.AsHeapID()).(type) {
	case *heap.List:
		return d.Items, true
	case *heap.Tuple:
		return d.Items, true
	case *heap.Set:
		return d.Items, true
	case heap.Range:
		out := make([]value.Value, 0, d.Len())
		for i := int64(0); i < d.Len(); i++ {
			out = append(out, value.Int(d.Start+i*d.Step))
		}
		return out, true
	}
	return nil, false
}

// --- list()/dict()/set()/tuple() constructors -----------------------------------

func builtinListCtor[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	items, err := ctorItems(c, args)
	if err != nil {
		return excOutcome(errtax.ExcTypeError, err.Error()), nil
	}
	if items == nil && len(args.Positional) > 1 {
		return excOutcome(errtax.ExcTypeError, "list() takes at most one argument"), nil
	}
	for _, v := range items {
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID())
		}
	}
	id, err := c.Heap.Allocate(&heap.List{Items: items})
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

func builtinTupleCtor[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	items, err := ctorItems(c, args)
	if err != nil {
		return excOutcome(errtax.ExcTypeError, err.Error()), nil
	}
	for _, v := range items {
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID())
		}
	}
	id, err := c.Heap.Allocate(&heap.Tuple{Items: items})
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

func ctorItems[T heap.Tracker](c Context[T], args value.CallArgs) ([]value.Value, error) {
	if len(args.Positional) == 0 {
		return nil, nil
	}
	items, ok := materializeSequence(c, args.Positional[0])
	if !ok {
		return nil, fmt.Errorf("argument is not iterable")
	}
	return append([]value.Value(nil), items...), nil
}

func builtinDictCtor[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	d := heap.NewDict()
	for i, name := range args.KwNames {
		key := value.InternString(name)
		hv := hashForDict(c, key)
		val := args.KwValues[i]
		if val.IsRef() {
			c.Heap.IncRef(val.AsHeapID())
		}
		idx := len(d.Entries)
		d.Entries = append(d.Entries, heap.DictEntry{Key: key, Val: val, KeyHash: hv})
		d.Index()[hv] = append(d.Index()[hv], idx)
	}
	id, err := c.Heap.Allocate(d)
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

func builtinSetCtor[T heap.Tracker](c Context[T], args value.CallArgs) (Outcome, error) {
	s := heap.NewSet()
	items, _ := ctorItems(c, args)
	for _, v := range items {
		hv := hashForDict(c, v)
		dup := false
		for _, idx := range s.Index()[hv] {
			if valuesEqual(c, s.Items[idx], v) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID())
		}
		idx := len(s.Items)
		s.Items = append(s.Items, v)
		s.Index()[hv] = append(s.Index()[hv], idx)
	}
	id, err := c.Heap.Allocate(s)
	if err != nil {
		return Outcome{}, err
	}
	return valOutcome(value.Ref(id)), nil
}

// hashForDict mirrors internal/vm's hashValue (container.go) so
// independently-built Dict/Set entries stay consistent with values the
// VM inserted directly; duplicated here rather than imported to keep
// builtins free of a dependency on vm.
func hashForDict[T heap.Tracker](c Context[T], v value.Value) uint64 {
	switch v.Kind() {
	case value.KindInt, value.KindBool:
		return uint64(v.AsInt())
	case value.KindFloat:
		return uint64(v.AsFloat())
	case value.KindInternString:
		s := c.Interns.GetStr(v.AsStringID())
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

func valuesEqual[T heap.Tracker](c Context[T], a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	if a.Kind() == value.KindInternString {
		return c.Interns.GetStr(a.AsStringID()) == c.Interns.GetStr(b.AsStringID())
	}
	return a.Is(b)
}

// --- bound methods ---------------------------------------------------------------

func listAppend[T heap.Tracker](c Context[T], recv value.Value, rest []value.Value) (Outcome, error) {
	if !recv.IsRef() || len(rest) != 1 {
		return excOutcome(errtax.ExcTypeError, "append() takes exactly one argument"), nil
	}
	l, ok := c.Heap.Get(recv.AsHeapID()).(*heap.List)
	if !ok {
		return excOutcome(errtax.ExcTypeError, "descriptor 'append' requires a 'list' object"), nil
	}
	v := rest[0]
	if v.IsRef() {
		c.Heap.IncRef(v.AsHeapID())
		c.Heap.MarkPotentialCycle()
	}
	l.Items = append(l.Items, v)
	return valOutcome(value.None), nil
}

func dictGet[T heap.Tracker](c Context[T], recv value.Value, rest []value.Value) (Outcome, error) {
	if !recv.IsRef() || len(rest) == 0 || len(rest) > 2 {
		return excOutcome(errtax.ExcTypeError, "get() takes one or two arguments"), nil
	}
	d, ok := c.Heap.Get(recv.AsHeapID()).(*heap.Dict)
	if !ok {
		return excOutcome(errtax.ExcTypeError, "descriptor 'get' requires a 'dict' object"), nil
	}
	key := rest[0]
	hv := hashForDict(c, key)
	for _, idx := range d.Index()[hv] {
		if valuesEqual(c, d.Entries[idx].Key, key) {
			v := d.Entries[idx].Val
			if v.IsRef() {
				c.Heap.IncRef(v.AsHeapID()) // entry keeps its own reference
			}
			return valOutcome(v), nil
		}
	}
	if len(rest) == 2 {
		v := rest[1]
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID()) // caller's CallArgs still owns a reference too
		}
		return valOutcome(v), nil
	}
	return valOutcome(value.None), nil
}

// strFormat implements the representative subset of str.format: "{}" and
// "{0}" replacement fields plus "{{"/"}}" escapes. Named fields
// ("{name}"), conversions and format specs are not supported; such a
// field raises IndexError.
func strFormat[T heap.Tracker](c Context[T], recv value.Value, rest []value.Value, kwNames []value.StringID, kwValues []value.Value) (Outcome, error) {
	if recv.Kind() != value.KindInternString {
		return excOutcome(errtax.ExcTypeError, "descriptor 'format' requires a 'str' object"), nil
	}
	tmpl := c.Interns.GetStr(recv.AsStringID())
	var out strings.Builder
	auto := 0
	i := 0
	for i < len(tmpl) {
		ch := tmpl[i]
		if ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{' {
			out.WriteByte('{')
			i += 2
			continue
		}
		if ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}' {
			out.WriteByte('}')
			i += 2
			continue
		}
		if ch == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return excOutcome(errtax.ExcValueError, "Single '{' encountered in format string"), nil
			}
			field := tmpl[i+1 : i+end]
			v, err := resolveFormatField(field, rest, kwNames, kwValues, &auto)
			if err != nil {
				return excOutcome(errtax.ExcIndexError, err.Error()), nil
			}
			out.WriteString(reprValue(c, v))
			i += end + 1
			continue
		}
		out.WriteByte(ch)
		i++
	}
	id := c.Interns.InternStr(out.String())
	return valOutcome(value.InternString(id)), nil
}

func resolveFormatField(field string, positional []value.Value, kwNames []value.StringID, kwValues []value.Value, auto *int) (value.Value, error) {
	if field == "" {
		if *auto >= len(positional) {
			return value.None, fmt.Errorf("tuple index out of range")
		}
		v := positional[*auto]
		*auto++
		return v, nil
	}
	if n, err := strconv.Atoi(field); err == nil {
		if n < 0 || n >= len(positional) {
			return value.None, fmt.Errorf("tuple index out of range")
		}
		return positional[n], nil
	}
	// Named fields ("{name}") would need the kwarg table threaded in;
	// the representative subset only covers positional/auto fields.
	_ = kwNames
	return value.None, fmt.Errorf("'%s' is not a valid format field in the representative core", field)
}

func exceptionInit[T heap.Tracker](c Context[T], recv value.Value, rest []value.Value) (Outcome, error) {
	if !recv.IsRef() {
		return excOutcome(errtax.ExcTypeError, "descriptor '__init__' requires an 'Exception' object"), nil
	}
	inst, ok := c.Heap.Get(recv.AsHeapID()).(*heap.Instance)
	if !ok {
		return excOutcome(errtax.ExcTypeError, "descriptor '__init__' requires an 'Exception' object"), nil
	}
	if !inst.HasDict {
		id, err := c.Heap.Allocate(heap.NewDict())
		if err != nil {
			return Outcome{}, err
		}
		inst.AttrsDict = id
		inst.HasDict = true
	}
	items := append([]value.Value(nil), rest...)
	for _, v := range items {
		if v.IsRef() {
			c.Heap.IncRef(v.AsHeapID())
		}
	}
	tupID, err := c.Heap.Allocate(&heap.Tuple{Items: items})
	if err != nil {
		return Outcome{}, err
	}
	d := c.Heap.Get(inst.AttrsDict).(*heap.Dict)
	key := value.InternString(interner.StaticString(interner.SSArgs))
	hv := hashForDict(c, key)
	d.Entries = append(d.Entries, heap.DictEntry{Key: key, Val: value.Ref(tupID), KeyHash: hv})
	d.Index()[hv] = append(d.Index()[hv], len(d.Entries)-1)
	return valOutcome(value.None), nil
}

// reprValue is the representative str()/repr() conversion builtins need
// for print()/format(); the full __repr__/__str__ dunder-dispatch path is
// owned by internal/vm (it may need to push a user method call).
func reprValue[T heap.Tracker](c Context[T], v value.Value) string {
	switch v.Kind() {
	case value.KindInternString:
		return c.Interns.GetStr(v.AsStringID())
	case value.KindNone:
		return "None"
	case value.KindBool:
		if v.AsBool() {
			return "True"
		}
		return "False"
	case value.KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case value.KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	}
	if v.IsRef() {
		switch d := c.Heap.Get(v.AsHeapID()).(type) {
		case *heap.List:
			parts := make([]string, len(d.Items))
			for i, it := range d.Items {
				parts[i] = reprValue(c, it)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		case *heap.Tuple:
			parts := make([]string, len(d.Items))
			for i, it := range d.Items {
				parts[i] = reprValue(c, it)
			}
			return "(" + strings.Join(parts, ", ") + ")"
		case *heap.Str:
			return d.S
		}
	}
	return v.String()
}
