// Package interner implements C1: an append-only, deduplicating store for
// the string, bytes and bigint literals a compile produces, plus the
// compiled function table and external-function name table a VM
// references by ID. IDs are stable for the lifetime of the owning
// session (see ouros/internal/repl), the same way the teacher's
// Interpreter.universe/binPkg symbol tables accumulate across repeated
// Eval calls without ever renumbering existing entries.
package interner

import (
	"fmt"
	"math/big"

	"github.com/dchest/siphash"

	"github.com/parcadei/ouros/internal/bytecode"
	"github.com/parcadei/ouros/internal/value"
)

// siphash keys: fixed, process-local. Only used to bucket the dedup maps,
// never for anything security sensitive.
const sipK0, sipK1 = 0x6f75726f73636f72, 0x65696e7465726e65

func hashBytes(b []byte) uint64 { return siphash.Hash(sipK0, sipK1, b) }

// Function is an alias of bytecode.Function: the compiled-code payload
// the compiler hands us for each DefFunction(FunctionID). Sharing the
// type with internal/vm (rather than each package defining its own) is
// what lets SetFunctions/GetFunction hand the VM something it can
// execute directly, without the interner importing the VM package.
type Function = bytecode.Function

// StaticStrings is the closed set of strings the runtime needs literally:
// attribute names, dunder names, exception type names, dialect names.
// They map bijectively onto a reserved prefix of StringIDs so opcodes can
// reference them directly without a map lookup at dispatch time.
type StaticStrings int

const (
	SSInit StaticStrings = iota
	SSNew
	SSCall
	SSLen
	SSIter
	SSNext
	SSEnter
	SSExit
	SSGetItem
	SSSetItem
	SSDelItem
	SSGetAttr
	SSSetAttr
	SSDelAttr
	SSGetattribute
	SSAdd
	SSRAdd
	SSSub
	SSRSub
	SSMul
	SSRMul
	SSEq
	SSLt
	SSLe
	SSGt
	SSGe
	SSRepr
	SSStr
	SSFormat
	SSInitSubclass
	SSAnext
	SSAiter
	SSAclose
	SSAwait
	SSArgs
	SSName
	staticStringCount
)

var staticStringText = [staticStringCount]string{
	SSInit: "__init__", SSNew: "__new__", SSCall: "__call__", SSLen: "__len__",
	SSIter: "__iter__", SSNext: "__next__", SSEnter: "__enter__", SSExit: "__exit__",
	SSGetItem: "__getitem__", SSSetItem: "__setitem__", SSDelItem: "__delitem__",
	SSGetAttr: "__getattr__", SSSetAttr: "__setattr__", SSDelAttr: "__delattr__",
	SSGetattribute: "__getattribute__", SSAdd: "__add__", SSRAdd: "__radd__",
	SSSub: "__sub__", SSRSub: "__rsub__", SSMul: "__mul__", SSRMul: "__rmul__",
	SSEq: "__eq__", SSLt: "__lt__", SSLe: "__le__", SSGt: "__gt__", SSGe: "__ge__",
	SSRepr: "__repr__", SSStr: "__str__", SSFormat: "__format__",
	SSInitSubclass: "__init_subclass__", SSAnext: "__anext__", SSAiter: "__aiter__",
	SSAclose: "__aclose__", SSAwait: "__await__", SSArgs: "args", SSName: "__name__",
}

// Interner holds the dedup tables. Zero value is not usable; use New.
type Interner struct {
	strings    []string
	strIndex   map[uint64][]value.StringID
	byteLits   [][]byte
	bytesIndex map[uint64][]value.BytesID
	bigints    []*big.Int
	functions  []Function
	extNames   []string
}

// New returns an Interner pre-seeded with StaticStrings occupying the
// reserved StringID prefix [0, staticStringCount).
func New() *Interner {
	in := &Interner{
		strIndex:   make(map[uint64][]value.StringID),
		bytesIndex: make(map[uint64][]value.BytesID),
	}
	for i := 0; i < int(staticStringCount); i++ {
		in.internStrNoDedupCheck(staticStringText[i])
	}
	return in
}

func (in *Interner) internStrNoDedupCheck(s string) value.StringID {
	id := value.StringID(len(in.strings))
	in.strings = append(in.strings, s)
	h := hashBytes([]byte(s))
	in.strIndex[h] = append(in.strIndex[h], id)
	return id
}

// StaticString returns the StringID for a StaticStrings constant.
func StaticString(s StaticStrings) value.StringID { return value.StringID(s) }

// InternStr deduplicates s and returns a stable StringID.
func (in *Interner) InternStr(s string) value.StringID {
	h := hashBytes([]byte(s))
	for _, id := range in.strIndex[h] {
		if in.strings[id] == s {
			return id
		}
	}
	return in.internStrNoDedupCheck(s)
}

// GetStr returns the string for a previously interned StringID.
func (in *Interner) GetStr(id value.StringID) string {
	return in.strings[id]
}

// InternBytes deduplicates b and returns a stable BytesID.
func (in *Interner) InternBytes(b []byte) value.BytesID {
	h := hashBytes(b)
	for _, id := range in.bytesIndex[h] {
		if string(in.byteLits[id]) == string(b) {
			return id
		}
	}
	id := value.BytesID(len(in.byteLits))
	cp := make([]byte, len(b))
	copy(cp, b)
	in.byteLits = append(in.byteLits, cp)
	in.bytesIndex[h] = append(in.bytesIndex[h], id)
	return id
}

// GetBytes returns the byte literal for a previously interned BytesID.
func (in *Interner) GetBytes(id value.BytesID) []byte { return in.byteLits[id] }

// InternLongInt stores a big integer literal and returns a stable
// BigIntID. Bigints are not deduplicated: literal sites rarely repeat
// identical large constants, and comparing big.Int on every insert would
// cost more than the dedup saves.
func (in *Interner) InternLongInt(n *big.Int) value.BigIntID {
	id := value.BigIntID(len(in.bigints))
	in.bigints = append(in.bigints, new(big.Int).Set(n))
	return id
}

// GetLongInt returns the big integer for a previously interned BigIntID.
func (in *Interner) GetLongInt(id value.BigIntID) *big.Int { return in.bigints[id] }

// SetFunctions installs the compiler's function table. Indices are stable:
// later calls append rather than replace, so FunctionIDs issued against an
// earlier table remain valid (a REPL session compiles incrementally).
func (in *Interner) SetFunctions(fns []Function) []value.FunctionID {
	ids := make([]value.FunctionID, len(fns))
	for i, fn := range fns {
		ids[i] = value.FunctionID(len(in.functions))
		in.functions = append(in.functions, fn)
	}
	return ids
}

// GetFunction returns the compiled Function for a FunctionID.
func (in *Interner) GetFunction(id value.FunctionID) *Function {
	return &in.functions[id]
}

// Clone returns an independent Interner for ReplSession.Fork (§4.9
// "sharing nothing mutable"): every table slice/map is copied so the
// fork can intern new strings/functions without the original session
// seeing them. The *Code/Function payloads already in the table are
// shared by pointer rather than deep-copied, since they are produced
// once by the external compiler and never mutated afterward.
func (in *Interner) Clone() *Interner {
	clone := &Interner{
		strings:    append([]string(nil), in.strings...),
		byteLits:   make([][]byte, len(in.byteLits)),
		bigints:    make([]*big.Int, len(in.bigints)),
		functions:  append([]Function(nil), in.functions...),
		extNames:   append([]string(nil), in.extNames...),
		strIndex:   make(map[uint64][]value.StringID, len(in.strIndex)),
		bytesIndex: make(map[uint64][]value.BytesID, len(in.bytesIndex)),
	}
	for i, b := range in.byteLits {
		clone.byteLits[i] = append([]byte(nil), b...)
	}
	for i, n := range in.bigints {
		clone.bigints[i] = new(big.Int).Set(n)
	}
	for k, v := range in.strIndex {
		clone.strIndex[k] = append([]value.StringID(nil), v...)
	}
	for k, v := range in.bytesIndex {
		clone.bytesIndex[k] = append([]value.BytesID(nil), v...)
	}
	return clone
}

// ExportState returns every table ReplSession.save needs to reconstruct
// this interner with ImportState. The dedup index maps are rebuilt by
// ImportState rather than exported, since they are pure functions of
// strings/byteLits.
func (in *Interner) ExportState() (strings []string, byteLits [][]byte, bigints []*big.Int, functions []Function, extNames []string) {
	return in.strings, in.byteLits, in.bigints, in.functions, in.extNames
}

// ImportState rebuilds an Interner from the pieces ExportState returned
// (ReplSession.load), recomputing the dedup index maps by re-running the
// same hash used at intern time.
func ImportState(strings []string, byteLits [][]byte, bigints []*big.Int, functions []Function, extNames []string) *Interner {
	in := &Interner{
		strings:    strings,
		byteLits:   byteLits,
		bigints:    bigints,
		functions:  functions,
		extNames:   extNames,
		strIndex:   make(map[uint64][]value.StringID, len(strings)),
		bytesIndex: make(map[uint64][]value.BytesID, len(byteLits)),
	}
	for i, s := range strings {
		h := hashBytes([]byte(s))
		in.strIndex[h] = append(in.strIndex[h], value.StringID(i))
	}
	for i, b := range byteLits {
		h := hashBytes(b)
		in.bytesIndex[h] = append(in.bytesIndex[h], value.BytesID(i))
	}
	return in
}

// InternExtFunctionName registers a host-provided external function name
// and returns its stable ExtFunctionID, deduplicating by name so repeated
// declarations across snippets resolve to the same ID.
func (in *Interner) InternExtFunctionName(name string) value.ExtFunctionID {
	for i, n := range in.extNames {
		if n == name {
			return value.ExtFunctionID(i)
		}
	}
	id := value.ExtFunctionID(len(in.extNames))
	in.extNames = append(in.extNames, name)
	return id
}

// GetExternalFunctionName returns the name registered for an ExtFunctionID.
func (in *Interner) GetExternalFunctionName(id value.ExtFunctionID) string {
	if int(id) >= len(in.extNames) {
		return fmt.Sprintf("<unknown-ext-%d>", id)
	}
	return in.extNames[id]
}

// Stats reports table sizes, used by ReplSession.heap_stats-adjacent
// diagnostics and by tests asserting dedup actually happened.
type Stats struct {
	Strings, Bytes, BigInts, Functions, ExtFunctions int
}

func (in *Interner) Stats() Stats {
	return Stats{
		Strings:      len(in.strings),
		Bytes:        len(in.byteLits),
		BigInts:      len(in.bigints),
		Functions:    len(in.functions),
		ExtFunctions: len(in.extNames),
	}
}
