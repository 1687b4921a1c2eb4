// Package value defines the tagged union that threads through every
// component of the runtime: the operand stack, namespace slots, call
// arguments and results all speak Value.
package value

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Kind discriminates the Value union. Immediates (everything up to
// ExternalFuture) carry no heap obligation; Ref is the only kind that
// participates in refcounting.
type Kind uint8

const (
	KindNone Kind = iota
	KindUndefined
	KindEllipsis
	KindBool
	KindInt
	KindFloat
	KindInternString
	KindInternBytes
	KindInternLongInt
	KindBuiltin
	KindModuleFunction
	KindDefFunction
	KindExtFunction
	KindExternalFuture
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindUndefined:
		return "Undefined"
	case KindEllipsis:
		return "Ellipsis"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindInternString:
		return "InternString"
	case KindInternBytes:
		return "InternBytes"
	case KindInternLongInt:
		return "InternLongInt"
	case KindBuiltin:
		return "Builtin"
	case KindModuleFunction:
		return "ModuleFunction"
	case KindDefFunction:
		return "DefFunction"
	case KindExtFunction:
		return "ExtFunction"
	case KindExternalFuture:
		return "ExternalFuture"
	case KindRef:
		return "Ref"
	default:
		return "Unknown"
	}
}

// HeapID is a handle into the heap arena. It is never reused while the
// entry it names is live.
type HeapID uint32

// StringID/BytesID/BigIntID/FunctionID/ExtFunctionID are interner handles.
type (
	StringID     uint32
	BytesID      uint32
	BigIntID     uint32
	FunctionID   uint32
	ExtFunctionID uint32
	CallID       uint32
)

// Value is a small tagged union. Only one of the payload fields is
// meaningful at a time, selected by Kind. Keeping this as a flat struct
// (rather than an interface) avoids an allocation per value, mirroring
// the teacher's frame cells (reflect.Value stored directly in a slice).
type Value struct {
	kind Kind
	i    int64   // Int, Bool (0/1), CallID, HeapID, intern ids, Builtin/ModuleFunction/DefFunction/ExtFunction tags
	f    float64 // Float
}

var (
	None      = Value{kind: KindNone}
	Undefined = Value{kind: KindUndefined}
	Ellipsis  = Value{kind: KindEllipsis}
	True      = Value{kind: KindBool, i: 1}
	False     = Value{kind: KindBool, i: 0}
)

func Int(v int64) Value   { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value {
	if v {
		return True
	}
	return False
}

func InternString(id StringID) Value  { return Value{kind: KindInternString, i: int64(id)} }
func InternBytes(id BytesID) Value    { return Value{kind: KindInternBytes, i: int64(id)} }
func InternLongInt(id BigIntID) Value { return Value{kind: KindInternLongInt, i: int64(id)} }
func Builtin(tag int64) Value         { return Value{kind: KindBuiltin, i: tag} }
func ModuleFunction(tag int64) Value  { return Value{kind: KindModuleFunction, i: tag} }
func DefFunction(id FunctionID) Value { return Value{kind: KindDefFunction, i: int64(id)} }
func ExtFunction(id ExtFunctionID) Value {
	return Value{kind: KindExtFunction, i: int64(id)}
}
func ExternalFuture(id CallID) Value { return Value{kind: KindExternalFuture, i: int64(id)} }
func Ref(id HeapID) Value            { return Value{kind: KindRef, i: int64(id)} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsRef() bool { return v.kind == KindRef }
func (v Value) AsBool() bool { return v.i != 0 }
func (v Value) AsInt() int64 { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsHeapID() HeapID { return HeapID(v.i) }
func (v Value) AsStringID() StringID { return StringID(v.i) }
func (v Value) AsBytesID() BytesID { return BytesID(v.i) }
func (v Value) AsBigIntID() BigIntID { return BigIntID(v.i) }
func (v Value) AsFunctionID() FunctionID { return FunctionID(v.i) }
func (v Value) AsExtFunctionID() ExtFunctionID { return ExtFunctionID(v.i) }
func (v Value) AsCallID() CallID { return CallID(v.i) }
func (v Value) AsTag() int64 { return v.i }

// valueWire is Value's gob-visible shadow: Value keeps its fields
// unexported so it stays a flat, allocation-free struct everywhere else
// in the runtime (§4.1), but gob only walks exported fields.
type valueWire struct {
	Kind Kind
	I    int64
	F    float64
}

func (v Value) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(valueWire{Kind: v.kind, I: v.i, F: v.f}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) GobDecode(data []byte) error {
	var w valueWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	v.kind, v.i, v.f = w.Kind, w.I, w.F
	return nil
}

// Is implements Python `is`: identity for heap objects (same HeapID),
// bitwise equality for immediates of the same kind.
func (v Value) Is(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == other.f
	default:
		return v.i == other.i
	}
}

// CallArgs is a plain argument vector shared by the VM's call-dispatch
// sites (internal/vm) and the builtin/type dispatcher (internal/builtins)
// so neither package needs to import the other just for this shape.
type CallArgs struct {
	Positional []Value
	KwNames    []StringID
	KwValues   []Value
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindUndefined:
		return "<undefined>"
	case KindEllipsis:
		return "Ellipsis"
	case KindBool:
		if v.AsBool() {
			return "True"
		}
		return "False"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	default:
		return fmt.Sprintf("%s(%d)", v.kind, v.i)
	}
}
