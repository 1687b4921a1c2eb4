package vm

import (
	"math/big"

	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// typeMethodTagBase partitions the Builtin tag space (§4.5): a tag below
// this is a builtins.Function, a tag at or above it is a builtins.TypeMethod
// resolved through lookupTypeMethod, offset back down before dispatch.
const typeMethodTagBase = 1 << 16

// issueCallID hands out a fresh CallID for a pausing call (§4.8).
func (vm *VM[T]) issueCallID() value.CallID {
	vm.nextCallID++
	return value.CallID(vm.nextCallID)
}

// dropCallArgs releases every value a CallArgs still owns; used whenever
// a call is abandoned (TypeError before dispatch) or after a builtin
// consumes what it needs and copies the rest (§4.5).
func (vm *VM[T]) dropCallArgs(args value.CallArgs) {
	for _, v := range args.Positional {
		vm.Heap.DropWithHeap(v)
	}
	for _, v := range args.KwValues {
		vm.Heap.DropWithHeap(v)
	}
}

func asHeapType[D any, T heap.Tracker](h *heap.Heap[T], v value.Value) (D, bool) {
	var zero D
	if !v.IsRef() {
		return zero, false
	}
	d, ok := h.Get(v.AsHeapID()).(D)
	return d, ok
}

// --- binary / compare operators ------------------------------------------------

// execBinary implements §4.6's numeric dispatch policy: try the
// specialized fast path first, then fall back to the corresponding
// dunder pair for anything the fast path declines.
func (vm *VM[T]) execBinary(f *Frame, op OpCode) (FrameExit, bool, error) {
	b, a := f.pop(), f.pop()
	switch op {
	case OpBinaryAdd:
		if v, ok, err := pyAdd(vm.Heap, a, b); ok {
			if err != nil {
				return FrameExit{}, false, err
			}
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(v)
			return FrameExit{}, false, nil
		} else if err != nil {
			return FrameExit{}, false, err
		}
		if a.Kind() == value.KindInternString && b.Kind() == value.KindInternString {
			sa, sb := vm.Interner.GetStr(a.AsStringID()), vm.Interner.GetStr(b.AsStringID())
			v := value.InternString(vm.Interner.InternStr(sa + sb))
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(v)
			return FrameExit{}, false, nil
		}
		if isNumericImmediate(a) && isNumericImmediate(b) && a.Kind() != value.KindFloat && b.Kind() != value.KindFloat {
			sum := new(big.Int).Add(big.NewInt(intOf(a)), big.NewInt(intOf(b)))
			v := value.InternLongInt(vm.Interner.InternLongInt(sum))
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(v)
			return FrameExit{}, false, nil
		}
		return vm.dispatchBinaryDunder(f, a, b, interner.SSAdd, interner.SSRAdd, "+")

	case OpBinarySub:
		if v, ok := pySub(a, b); ok {
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(v)
			return FrameExit{}, false, nil
		}
		return vm.dispatchBinaryDunder(f, a, b, interner.SSSub, interner.SSRSub, "-")

	case OpBinaryMul:
		if v, ok := pyMul(a, b); ok {
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(v)
			return FrameExit{}, false, nil
		}
		return vm.dispatchBinaryDunder(f, a, b, interner.SSMul, interner.SSRMul, "*")

	case OpBinaryDiv:
		v, ok, ek := pyDiv(a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for /")
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		f.push(v)

	case OpBinaryFloorDiv:
		v, ok, ek := pyFloorDiv(a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for //")
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		f.push(v)

	case OpBinaryMod:
		v, ok, ek := pyMod(a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for %")
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		f.push(v)

	case OpBinaryPow:
		v, ok := pyPow(a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for **")
		}
		f.push(v)

	case OpBinaryLShift, OpBinaryRShift, OpBinaryAnd, OpBinaryOr, OpBinaryXor:
		v, ok, ek := pyBitwise(op, a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for bitwise operator")
		}
		f.push(v)
	}
	return FrameExit{}, false, nil
}

// dispatchBinaryDunder falls back to __op__/__rop__ when neither operand
// is a plain numeric/string immediate the fast path covers (§4.6, §8.5:
// no Div/Mod/Pow/shift/bitwise equivalent exists since no static-string
// slot is reserved for them, so those operators raise TypeError directly
// instead of attempting a dunder fallback).
func (vm *VM[T]) dispatchBinaryDunder(f *Frame, a, b value.Value, name, rname interner.StaticStrings, symbol string) (FrameExit, bool, error) {
	if res, ek := GetAttr(vm.Heap, vm.Interner, a, interner.StaticString(name)); ek == nil {
		return vm.dispatchAttrCall(f, res, a, value.CallArgs{Positional: []value.Value{b}})
	}
	if res, ek := GetAttr(vm.Heap, vm.Interner, b, interner.StaticString(rname)); ek == nil {
		return vm.dispatchAttrCall(f, res, b, value.CallArgs{Positional: []value.Value{a}})
	}
	vm.Heap.DropWithHeap(a)
	vm.Heap.DropWithHeap(b)
	return vm.raiseAndContinue(errtax.ExcTypeError, "unsupported operand type(s) for "+symbol)
}

// isInstanceRef reports whether v is a heap Instance, the only shape
// pyEq's default case cannot compare structurally (§8.5 "user __eq__").
func isInstanceRef[T heap.Tracker](h *heap.Heap[T], v value.Value) bool {
	_, ok := asHeapType[*heap.Instance](h, v)
	return ok
}

func (vm *VM[T]) execCompare(f *Frame, op OpCode) (FrameExit, bool, error) {
	b, a := f.pop(), f.pop()
	switch op {
	case OpCompareEq, OpCompareNe:
		if isInstanceRef(vm.Heap, a) || isInstanceRef(vm.Heap, b) {
			if res, ek := GetAttr(vm.Heap, vm.Interner, a, interner.StaticString(interner.SSEq)); ek == nil {
				pause, done, err := vm.dispatchAttrCall(f, res, a, value.CallArgs{Positional: []value.Value{b}})
				if op == OpCompareNe && !done && err == nil {
					vm.negateTop(f)
				}
				return pause, done, err
			}
		}
		r := pyEq(vm.Heap, vm.Interner, a, b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		if op == OpCompareNe {
			r = !r
		}
		f.push(value.Bool(r))

	case OpCompareLt, OpCompareLe, OpCompareGt, OpCompareGe:
		ord, ok := pyCmp(vm.Heap, vm.Interner, a, b)
		if ok {
			vm.Heap.DropWithHeap(a)
			vm.Heap.DropWithHeap(b)
			f.push(value.Bool(orderSatisfies(op, ord)))
			return FrameExit{}, false, nil
		}
		return vm.dispatchCompareDunder(f, a, b, op)
	}
	return FrameExit{}, false, nil
}

// negateTop flips the boolean OpReturnValue/dispatchAttrCall just pushed,
// used to turn a __eq__ result into __ne__'s answer without a second call.
func (vm *VM[T]) negateTop(f *Frame) {
	v := f.pop()
	f.push(value.Bool(!truthy(vm.Heap, v)))
	vm.Heap.DropWithHeap(v)
}

func orderSatisfies(op OpCode, ord Ordering) bool {
	switch op {
	case OpCompareLt:
		return ord == OrderLess
	case OpCompareLe:
		return ord != OrderGreater
	case OpCompareGt:
		return ord == OrderGreater
	case OpCompareGe:
		return ord != OrderLess
	}
	return false
}

func (vm *VM[T]) dispatchCompareDunder(f *Frame, a, b value.Value, op OpCode) (FrameExit, bool, error) {
	var name interner.StaticStrings
	switch op {
	case OpCompareLt:
		name = interner.SSLt
	case OpCompareLe:
		name = interner.SSLe
	case OpCompareGt:
		name = interner.SSGt
	case OpCompareGe:
		name = interner.SSGe
	}
	if res, ek := GetAttr(vm.Heap, vm.Interner, a, interner.StaticString(name)); ek == nil {
		return vm.dispatchAttrCall(f, res, a, value.CallArgs{Positional: []value.Value{b}})
	}
	vm.Heap.DropWithHeap(a)
	vm.Heap.DropWithHeap(b)
	return vm.raiseAndContinue(errtax.ExcTypeError, "'<' not supported between instances of these types")
}

// --- attribute/descriptor dispatch ---------------------------------------------

// dispatchAttrCall finishes an AttrCallResult produced by GetAttr or a
// native-container fallback (OpGetItem's __getitem__ lookup, §4.6): it
// either pushes a final value, binds a descriptor into a BoundMethod, or
// suspends the VM for a host effect. receiver is the attribute owner the
// caller is done with; it is dropped here for the kinds that don't fold
// ownership into the result themselves (ACRDescriptorGet always consumes
// res.Owner directly, so receiver is ignored there - pass value.None when
// ownership has already been transferred elsewhere, e.g. lookupTypeMethod).
func (vm *VM[T]) dispatchAttrCall(f *Frame, res AttrCallResult, receiver value.Value, args value.CallArgs) (FrameExit, bool, error) {
	switch res.Kind {
	case ACRValue:
		if receiver.IsRef() {
			vm.Heap.DropWithHeap(receiver)
		}
		vm.dropCallArgs(args)
		if res.Value.IsRef() {
			vm.Heap.IncRef(res.Value.AsHeapID())
		}
		f.push(res.Value)
		return FrameExit{}, false, nil

	case ACRCallFunction, ACRPropertyCall:
		if receiver.IsRef() {
			vm.Heap.DropWithHeap(receiver)
		}
		vm.dropCallArgs(args)
		return vm.doCall(f, res.Callable, res.Args)

	case ACROsCall:
		if receiver.IsRef() {
			vm.Heap.DropWithHeap(receiver)
		}
		callID := vm.issueCallID()
		if res.IsProxy {
			vm.pending[callID] = pendingCall{kind: PauseProxyCall, frameIx: len(vm.frames) - 1}
			return FrameExit{Kind: PauseProxyCall, ProxyID: res.ProxyID, Method: res.Method, Args: res.OsArgs, CallID: callID}, true, nil
		}
		vm.pending[callID] = pendingCall{kind: PauseOsCall, frameIx: len(vm.frames) - 1}
		return FrameExit{Kind: PauseOsCall, OsFunc: res.OsFunc, Args: res.OsArgs, CallID: callID}, true, nil

	case ACRDescriptorGet:
		if prop, ok := asHeapType[*heap.UserProperty](vm.Heap, res.Descriptor); ok {
			getter := prop.Getter
			if getter.IsRef() {
				vm.Heap.IncRef(getter.AsHeapID())
			}
			vm.dropCallArgs(args)
			return vm.doCall(f, getter, value.CallArgs{Positional: []value.Value{res.Owner}})
		}
		if cm, ok := asHeapType[*heap.ClassMethod](vm.Heap, res.Descriptor); ok {
			fn := cm.Func
			if fn.IsRef() {
				vm.Heap.IncRef(fn.AsHeapID())
			}
			var clsRecv value.Value
			if inst, ok := asHeapType[*heap.Instance](vm.Heap, res.Owner); ok {
				vm.Heap.IncRef(inst.Class)
				clsRecv = value.Ref(inst.Class)
				vm.Heap.DropWithHeap(res.Owner)
			} else {
				clsRecv = res.Owner
			}
			bm := &heap.BoundMethod{Receiver: clsRecv, Func: fn}
			id, err := vm.Heap.Allocate(bm)
			if err != nil {
				vm.dropCallArgs(args)
				return FrameExit{}, false, err
			}
			if len(args.Positional) == 0 && len(args.KwNames) == 0 {
				f.push(value.Ref(id))
				return FrameExit{}, false, nil
			}
			return vm.doCall(f, value.Ref(id), args)
		}
		bm := &heap.BoundMethod{Receiver: res.Owner, Func: res.Descriptor}
		id, err := vm.Heap.Allocate(bm)
		if err != nil {
			vm.dropCallArgs(args)
			return FrameExit{}, false, err
		}
		if len(args.Positional) == 0 && len(args.KwNames) == 0 {
			f.push(value.Ref(id))
			return FrameExit{}, false, nil
		}
		return vm.doCall(f, value.Ref(id), args)
	}
	if receiver.IsRef() {
		vm.Heap.DropWithHeap(receiver)
	}
	vm.dropCallArgs(args)
	return vm.raiseAndContinue(errtax.ExcTypeError, "object has no attributes")
}

// lookupTypeMethod resolves a native-container method name (list.append,
// dict.get, str.format, Exception.__init__, §4.5) that GetAttr's
// dict/MRO walk cannot see, since native containers have no namespace
// dict of their own. Consumes owner's reference, binding it directly
// into the returned BoundMethod.
func (vm *VM[T]) lookupTypeMethod(owner value.Value, name value.StringID) (AttrCallResult, bool) {
	bt, ok := builtinTypeOf(vm, owner)
	if !ok {
		return AttrCallResult{}, false
	}
	methodName := vm.Interner.GetStr(name)
	tm, ok := builtins.LookupTypeMethod(bt, methodName)
	if !ok {
		return AttrCallResult{}, false
	}
	bm := &heap.BoundMethod{Receiver: owner, Func: value.Builtin(int64(tm) + typeMethodTagBase)}
	id, err := vm.Heap.Allocate(bm)
	if err != nil {
		return AttrCallResult{}, false
	}
	return ValueResult(value.Ref(id)), true
}

func builtinTypeOf[T heap.Tracker](vm *VM[T], owner value.Value) (heap.BuiltinType, bool) {
	if !owner.IsRef() {
		return 0, false
	}
	switch d := vm.Heap.Get(owner.AsHeapID()).(type) {
	case *heap.Str:
		return heap.TypeStr, true
	case *heap.List:
		return heap.TypeList, true
	case *heap.Tuple:
		return heap.TypeTuple, true
	case *heap.Dict:
		return heap.TypeDict, true
	case *heap.Set:
		return heap.TypeSet, true
	case *heap.Instance:
		if vm.isExceptionInstance(d) {
			return heap.TypeException, true
		}
	}
	return 0, false
}

func (vm *VM[T]) isExceptionInstance(inst *heap.Instance) bool {
	cls, ok := vm.Heap.Get(inst.Class).(*heap.ClassObject)
	if !ok {
		return false
	}
	return vm.isExceptionClass(cls)
}

func (vm *VM[T]) isExceptionClass(cls *heap.ClassObject) bool {
	for _, m := range cls.MRO {
		for _, id := range vm.excClasses {
			if id == m {
				return true
			}
		}
	}
	return false
}

// --- call dispatch --------------------------------------------------------------

// execCall implements OpCall/OpCallKw: pop the positional/keyword
// arguments and the callee, then dispatch on the callee's shape. OpCallKw's
// stack layout (each kwname pushed before its kwvalue, the pairs above the
// positional args) is a representative convention for the core's own
// bytecode, standing in for
// whatever an external compiler would actually emit.
func (vm *VM[T]) execCall(f *Frame, instr Instr) (FrameExit, bool, error) {
	nPos := int(instr.A)
	var kwNames []value.StringID
	var kwValues []value.Value
	if instr.Op == OpCallKw {
		nKw := int(instr.B)
		kwNames = make([]value.StringID, nKw)
		kwValues = make([]value.Value, nKw)
		for i := nKw - 1; i >= 0; i-- {
			kwValues[i] = f.pop()
			nameVal := f.pop()
			kwNames[i] = nameVal.AsStringID()
		}
	}
	pos := make([]value.Value, nPos)
	copy(pos, f.Operands[len(f.Operands)-nPos:])
	f.Operands = f.Operands[:len(f.Operands)-nPos]
	callee := f.pop()
	args := value.CallArgs{Positional: pos, KwNames: kwNames, KwValues: kwValues}
	return vm.doCall(f, callee, args)
}

// doCall dispatches a resolved callee Value against its shape (§4.5,
// §4.6): bound methods unwrap and recurse, classes construct an
// instance, DefFunction/Builtin/ExtFunction route to their own handlers.
func (vm *VM[T]) doCall(f *Frame, callee value.Value, args value.CallArgs) (FrameExit, bool, error) {
	if bm, ok := asHeapType[*heap.BoundMethod](vm.Heap, callee); ok {
		recv, fn := bm.Receiver, bm.Func
		if recv.IsRef() {
			vm.Heap.IncRef(recv.AsHeapID())
		}
		if fn.IsRef() {
			vm.Heap.IncRef(fn.AsHeapID())
		}
		newArgs := value.CallArgs{
			Positional: append([]value.Value{recv}, args.Positional...),
			KwNames:    args.KwNames,
			KwValues:   args.KwValues,
		}
		vm.Heap.DropWithHeap(callee)
		return vm.doCall(f, fn, newArgs)
	}

	if cls, ok := asHeapType[*heap.ClassObject](vm.Heap, callee); ok {
		return vm.instantiate(f, callee, cls, args)
	}

	if sm, ok := asHeapType[*heap.StaticMethod](vm.Heap, callee); ok {
		fn := sm.Func
		if fn.IsRef() {
			vm.Heap.IncRef(fn.AsHeapID())
		}
		vm.Heap.DropWithHeap(callee)
		return vm.doCall(f, fn, args)
	}

	switch callee.Kind() {
	case value.KindDefFunction:
		return vm.callDefFunction(callee.AsFunctionID(), args)

	case value.KindBuiltin:
		tag := callee.AsTag()
		ctx := vm.builtinCtx()
		var out builtins.Outcome
		var err error
		if tag >= typeMethodTagBase {
			out, err = builtins.CallTypeMethod(ctx, builtins.TypeMethod(tag-typeMethodTagBase), args)
		} else {
			out, err = builtins.CallFunction(ctx, builtins.Function(tag), args)
		}
		vm.dropCallArgs(args)
		if err != nil {
			return FrameExit{}, false, err
		}
		if out.Exc != nil {
			return vm.raiseAndContinue(out.Exc.Type, out.Exc.Msg)
		}
		f.push(out.Value)
		return FrameExit{}, false, nil

	case value.KindExtFunction:
		callID := vm.issueCallID()
		vm.pending[callID] = pendingCall{kind: PauseExternalCall, frameIx: len(vm.frames) - 1}
		return FrameExit{Kind: PauseExternalCall, ExtFunctionID: callee.AsExtFunctionID(), Args: args, CallID: callID}, true, nil

	case value.KindModuleFunction:
		vm.dropCallArgs(args)
		return vm.raiseAndContinue(errtax.ExcNotImplementedError, "module function not implemented in the core")
	}

	vm.dropCallArgs(args)
	if callee.IsRef() {
		vm.Heap.DropWithHeap(callee)
	}
	return vm.raiseAndContinue(errtax.ExcTypeError, "object is not callable")
}

// callDefFunction binds a user-defined function's activation and either
// pushes an executing frame (plain function) or, for generator/async
// functions, constructs the suspended Generator/Coroutine object
// synchronously without ever running a byte of its body (§9).
//
// bytecode.Function carries no parameter-name table, only ParamCount, so
// any call supplying keyword arguments against a user-defined function is
// rejected here (representative-core limitation).
func (vm *VM[T]) callDefFunction(fnID value.FunctionID, args value.CallArgs) (FrameExit, bool, error) {
	fn := vm.Interner.GetFunction(fnID)
	if len(args.KwNames) > 0 {
		vm.dropCallArgs(args)
		return vm.raiseAndContinue(errtax.ExcTypeError, "keyword arguments are not supported for user-defined functions in the core")
	}
	if len(args.Positional) != fn.ParamCount {
		vm.dropCallArgs(args)
		return vm.raiseAndContinue(errtax.ExcTypeError, "function takes a different number of arguments")
	}

	locals := make([]value.Value, fn.SlotCount)
	for i := range locals {
		locals[i] = value.Undefined
	}
	copy(locals, args.Positional)

	if fn.IsGenerator {
		id, err := vm.Heap.Allocate(&heap.Generator{Frame: heap.FrameSnapshot{Function: fnID, Locals: locals}})
		if err != nil {
			return FrameExit{}, false, err
		}
		return vm.pushCallResult(value.Ref(id))
	}
	if fn.IsAsync {
		id, err := vm.Heap.Allocate(&heap.Coroutine{Frame: heap.FrameSnapshot{Function: fnID, Locals: locals}, Awaited: value.Undefined})
		if err != nil {
			return FrameExit{}, false, err
		}
		return vm.pushCallResult(value.Ref(id))
	}

	nsDepth := vm.NS.Depth()
	act := vm.NS.PushActivation(fn.SlotCount)
	copy(act, locals)
	frame := vm.acquireFrame(fn.Code, nsDepth, fnID)
	vm.pushFrame(frame)
	return FrameExit{}, false, nil
}

// pushCallResult pushes a synchronously-produced call result (generator/
// coroutine construction) onto whatever frame is current, or reports it
// as the top-level FrameExit if there is none (a bare `gen()` at module
// scope with no enclosing frame never actually happens in practice, but
// mirrors doReturn's own empty-stack handling for symmetry).
func (vm *VM[T]) pushCallResult(v value.Value) (FrameExit, bool, error) {
	if len(vm.frames) == 0 {
		return FrameExit{Kind: PauseReturn, Result: v}, true, nil
	}
	vm.frames[len(vm.frames)-1].push(v)
	return FrameExit{}, false, nil
}

// --- instance construction --------------------------------------------------

// instantiate implements calling a class (§3 "constructing an instance
// calls __init__ for effect, not for its return value"): allocate the
// Instance, resolve __init__ through the MRO, and dispatch it so its
// return value (if any) is discarded and instID substituted instead.
func (vm *VM[T]) instantiate(f *Frame, classVal value.Value, cls *heap.ClassObject, args value.CallArgs) (FrameExit, bool, error) {
	inst := &heap.Instance{Class: classVal.AsHeapID()}
	instID, err := vm.Heap.Allocate(inst)
	if err != nil {
		vm.dropCallArgs(args)
		return FrameExit{}, false, err
	}
	res, ek := GetAttr(vm.Heap, vm.Interner, value.Ref(instID), interner.StaticString(interner.SSInit))
	if ek != nil {
		if vm.isExceptionClass(cls) {
			return vm.callBuiltinInit(f, instID, args)
		}
		vm.dropCallArgs(args)
		f.push(value.Ref(instID))
		return FrameExit{}, false, nil
	}
	return vm.callForInit(f, instID, res, args)
}

func (vm *VM[T]) callBuiltinInit(f *Frame, instID value.HeapID, args value.CallArgs) (FrameExit, bool, error) {
	ctx := vm.builtinCtx()
	callArgs := value.CallArgs{
		Positional: append([]value.Value{value.Ref(instID)}, args.Positional...),
		KwNames:    args.KwNames,
		KwValues:   args.KwValues,
	}
	out, err := builtins.CallTypeMethod(ctx, builtins.TMExceptionInit, callArgs)
	vm.dropCallArgs(args)
	if err != nil {
		return FrameExit{}, false, err
	}
	if out.Exc != nil {
		return vm.raiseAndContinue(out.Exc.Type, out.Exc.Msg)
	}
	f.push(value.Ref(instID))
	return FrameExit{}, false, nil
}

func (vm *VM[T]) callForInit(f *Frame, instID value.HeapID, res AttrCallResult, args value.CallArgs) (FrameExit, bool, error) {
	if res.Kind != ACRDescriptorGet {
		// __init__ resolved to something not directly callable in the
		// representative core (e.g. shadowed by a plain attribute):
		// construction is a no-op, matching object()'s default.
		vm.dropCallArgs(args)
		f.push(value.Ref(instID))
		return FrameExit{}, false, nil
	}
	depthBefore := len(vm.frames)
	pause, done, err := vm.dispatchAttrCall(f, res, value.None, args)
	if err != nil || done {
		return pause, done, err
	}
	if len(vm.frames) > depthBefore {
		top := vm.frames[len(vm.frames)-1]
		top.HasInstantiateResult = true
		top.InstantiateResult = instID
		return FrameExit{}, false, nil
	}
	// __init__ ran synchronously (bound to a builtin-backed callable):
	// its return value is already on f; discard it and substitute instID.
	vm.Heap.DropWithHeap(f.pop())
	f.push(value.Ref(instID))
	return FrameExit{}, false, nil
}

// --- class construction ---------------------------------------------------------

// execBuildClass implements OpBuildClass: instr.A bases sit below the
// namespace dict on the stack, instr.B is the class name's StringID.
// NewClass increfs the namespace and each base internally (§3 "ClassObject
// lifecycle"), so the stack-held references this opcode popped are no
// longer needed once NewClass returns and must be dropped here.
func (vm *VM[T]) execBuildClass(f *Frame, instr Instr) (FrameExit, bool, error) {
	baseCount := int(instr.A)
	nsVal := f.pop()
	bases := make([]value.HeapID, baseCount)
	for i := baseCount - 1; i >= 0; i-- {
		bv := f.pop()
		if !bv.IsRef() {
			vm.Heap.DropWithHeap(nsVal)
			for _, b := range bases[i+1:] {
				vm.Heap.DropWithHeap(value.Ref(b))
			}
			return vm.raiseAndContinue(errtax.ExcTypeError, "bases must be classes")
		}
		bases[i] = bv.AsHeapID()
	}
	name := value.StringID(instr.B)
	id, err := NewClass(vm.Heap, name, value.None, nsVal.AsHeapID(), bases)
	vm.Heap.DropWithHeap(nsVal)
	for _, b := range bases {
		vm.Heap.DropWithHeap(value.Ref(b))
	}
	if err != nil {
		return FrameExit{}, false, err
	}
	f.push(value.Ref(id))
	return FrameExit{}, false, nil
}

// --- generators / coroutines -----------------------------------------------------

// noopDropper satisfies nsframe's PopActivation contract without actually
// releasing anything: GeneratorNext relocates a suspended frame's locals
// into its FrameSnapshot rather than dropping them.
type noopDropper struct{}

func (noopDropper) DropWithHeap(value.Value) {}

// runFrom drives the dispatch loop starting at whatever frame is
// currently on top, stopping as soon as the frame stack depth drops back
// to baseDepth (the generator/coroutine frame, and everything it pushed,
// has fully returned) or a pause/yield/error occurs. This is distinct
// from loop() because loop() would otherwise resume execution of
// whatever unrelated frame happens to sit beneath a suspended
// generator's synthetic resume frame.
func (vm *VM[T]) runFrom(baseDepth int) (FrameExit, error) {
	for len(vm.frames) > baseDepth {
		f := vm.frames[len(vm.frames)-1]
		if f.IP >= len(f.Code.Instrs) {
			if pause, done, err := vm.doReturn(value.None); done {
				return pause, err
			}
			continue
		}
		instr := f.Code.Instrs[f.IP]

		vm.instrSinceDeadlineCheck++
		if vm.instrSinceDeadlineCheck >= deadlinePollInterval {
			vm.instrSinceDeadlineCheck = 0
			if err := vm.Heap.Tracker().CheckDeadline(); err != nil {
				return FrameExit{}, err
			}
		}

		f.IP++
		pause, done, err := vm.execOne(f, instr)
		if err != nil {
			return FrameExit{}, err
		}
		if done {
			return pause, nil
		}
	}
	return FrameExit{}, nil
}

// GeneratorNext resumes a suspended generator one step (§9): more=false
// means the generator is exhausted (StopIteration), matching the ok=false
// convention Advance already uses for native iterators.
func (vm *VM[T]) GeneratorNext(genID value.HeapID) (value.Value, bool, error) {
	gen, ok := vm.Heap.Get(genID).(*heap.Generator)
	if !ok {
		return value.None, false, &errtax.HostProtocolError{Msg: "not a generator"}
	}
	if gen.Frame.Done {
		return value.None, false, nil
	}

	fn := vm.Interner.GetFunction(gen.Frame.Function)
	baseDepth := len(vm.frames)
	nsDepth := vm.NS.Depth()
	act := vm.NS.PushActivation(len(gen.Frame.Locals))
	copy(act, gen.Frame.Locals)

	frame := vm.acquireFrame(fn.Code, nsDepth, gen.Frame.Function)
	frame.IP = gen.Frame.IP
	frame.IsGenerator = true
	frame.IsGeneratorRoot = true
	frame.Operands = append(frame.Operands[:0], gen.Frame.OperandSt...)
	vm.pushFrame(frame)

	savedGenFrameIx := vm.genFrameIx
	vm.genFrameIx = baseDepth
	pause, err := vm.runFrom(baseDepth)
	vm.genFrameIx = savedGenFrameIx

	if err != nil {
		return value.None, false, err
	}
	if len(vm.frames) > baseDepth && vm.frames[baseDepth] == frame {
		gen.Frame.IP = frame.IP
		gen.Frame.Locals = append([]value.Value(nil), vm.NS.Activation(frame.NSDepth)...)
		gen.Frame.OperandSt = append([]value.Value(nil), frame.Operands...)
		vm.frames = vm.frames[:baseDepth]
		vm.NS.PopActivation(noopDropper{})
		vm.framePool = append(vm.framePool, frame)
		return pause.Result, true, nil
	}
	if len(vm.frames) > baseDepth {
		// the generator body issued a pausing host/proxy call before its
		// next yield; interleaving a host round trip with generator
		// suspension is out of scope for the representative core.
		return value.None, false, &errtax.HostProtocolError{Msg: "generator paused on a host call before its next yield"}
	}
	gen.Frame.Done = true
	return pause.Result, false, nil
}

// awaitValue implements OpAwait (§9): a Coroutine is driven to completion
// synchronously, since the full interleaved scheduler (internal/scheduler)
// is out of scope for the representative core - awaiting a coroutine that
// itself performs a pausing host call is a documented gap. Anything else
// is already a resolved value and passes through unchanged.
func (vm *VM[T]) awaitValue(v value.Value) (value.Value, error) {
	co, ok := asHeapType[*heap.Coroutine](vm.Heap, v)
	if !ok {
		return v, nil
	}
	if co.Awaited.Kind() != value.KindUndefined {
		vm.Heap.DropWithHeap(v)
		return value.None, &errtax.HostProtocolError{Msg: "cannot reuse already awaited coroutine"}
	}

	fn := vm.Interner.GetFunction(co.Frame.Function)
	baseDepth := len(vm.frames)
	nsDepth := vm.NS.Depth()
	act := vm.NS.PushActivation(len(co.Frame.Locals))
	copy(act, co.Frame.Locals)

	frame := vm.acquireFrame(fn.Code, nsDepth, co.Frame.Function)
	frame.IP = co.Frame.IP
	frame.IsGeneratorRoot = true
	frame.Operands = append(frame.Operands[:0], co.Frame.OperandSt...)
	vm.pushFrame(frame)

	pause, err := vm.runFrom(baseDepth)
	if err != nil {
		return value.None, err
	}
	if len(vm.frames) > baseDepth {
		return value.None, &errtax.HostProtocolError{Msg: "awaiting a coroutine that performs a host call is not supported"}
	}
	co.Awaited = value.Bool(true)
	vm.Heap.DropWithHeap(v)
	return pause.Result, nil
}
