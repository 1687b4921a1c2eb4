package vm

import (
	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/nsframe"
	"github.com/parcadei/ouros/internal/scheduler"
	"github.com/parcadei/ouros/internal/value"
)

// VM is one execution engine over a heap/namespace/interner triple
// (§4.6). T is threaded through from the owning heap's resource tracker
// so a bounded and an unbounded session use exactly the same VM code.
type VM[T heap.Tracker] struct {
	Heap     *heap.Heap[T]
	NS       *nsframe.Namespaces
	Interner *interner.Interner
	Stdout   builtins.PrintWriter

	frames    []*Frame
	framePool []*Frame

	excClasses map[errtax.ExcType]value.HeapID

	pending    map[value.CallID]pendingCall
	nextCallID uint32

	// genFrameIx, when >= 0, is the index in frames where an OpYield
	// should be intercepted by GeneratorNext rather than escaping as a
	// host-visible pause (§9 "Coroutines and generators").
	genFrameIx int

	// instrSinceDeadlineCheck amortizes CheckDeadline polling: the
	// tracker is consulted every N instructions rather than every one
	// (§5 "Timeouts ... polled periodically, not on every instruction").
	instrSinceDeadlineCheck int

	// Scheduler drives asyncio.gather/create_task (§4.7); vm itself is
	// its Driver (see scheduler_driver.go). taskCoroutine maps each
	// scheduler task to the heap.Coroutine it steps.
	Scheduler    *scheduler.Scheduler
	taskCoroutine map[scheduler.TaskID]value.HeapID
}

const deadlinePollInterval = 256

// New constructs a VM and materializes the builtin exception-class
// hierarchy on h (§7, §4.5 "ExcType dispatch ... against pre-built
// classes").
func New[T heap.Tracker](h *heap.Heap[T], ns *nsframe.Namespaces, in *interner.Interner, stdout builtins.PrintWriter) *VM[T] {
	vm := &VM[T]{
		Heap:          h,
		NS:            ns,
		Interner:      in,
		Stdout:        stdout,
		pending:       make(map[value.CallID]pendingCall),
		genFrameIx:    -1,
		taskCoroutine: make(map[scheduler.TaskID]value.HeapID),
	}
	vm.excClasses = materializeExceptionClasses(h, in)
	vm.Scheduler = scheduler.New(vm)
	return vm
}

// Restore builds a VM over a heap that already contains a materialized
// exception-class hierarchy at the given HeapIDs, skipping the
// allocation New does. Used by ReplSession.Fork (the cloned heap already
// carries clones of the original's exception classes at the same
// indices, via Heap.DeepClone) and by ReplSession.load (the deserialized
// heap carries its own, saved at those same ids).
func Restore[T heap.Tracker](h *heap.Heap[T], ns *nsframe.Namespaces, in *interner.Interner, stdout builtins.PrintWriter, excClasses map[errtax.ExcType]value.HeapID) *VM[T] {
	vm := &VM[T]{
		Heap:          h,
		NS:            ns,
		Interner:      in,
		Stdout:        stdout,
		pending:       make(map[value.CallID]pendingCall),
		genFrameIx:    -1,
		taskCoroutine: make(map[scheduler.TaskID]value.HeapID),
		excClasses:    excClasses,
	}
	vm.Scheduler = scheduler.New(vm)
	return vm
}

// ExcClasses exposes the exception-class HeapID table so ReplSession.Fork
// and .save can carry it across a heap clone/serialize without
// recomputing it.
func (vm *VM[T]) ExcClasses() map[errtax.ExcType]value.HeapID { return vm.excClasses }

// materializeExceptionClasses allocates one ClassObject per ExcType,
// resolving bases depth-first so a child's NewClass call always has an
// already-built parent MRO to linearize against.
func materializeExceptionClasses[T heap.Tracker](h *heap.Heap[T], in *interner.Interner) map[errtax.ExcType]value.HeapID {
	classes := make(map[errtax.ExcType]value.HeapID)
	var ensure func(t errtax.ExcType) value.HeapID
	ensure = func(t errtax.ExcType) value.HeapID {
		if id, ok := classes[t]; ok {
			return id
		}
		mro := errtax.MRO(t)
		var bases []value.HeapID
		if len(mro) > 1 {
			bases = []value.HeapID{ensure(mro[1])}
		}
		nsID, err := h.Allocate(heap.NewDict())
		if err != nil {
			panic(err) // bootstrap allocation: a NoLimitTracker/fresh BoundedTracker never rejects this
		}
		name := in.InternStr(t.String())
		id, err := NewClass(h, name, value.None, nsID, bases)
		if err != nil {
			panic(err)
		}
		classes[t] = id
		return id
	}
	for t := errtax.ExcType(0); t <= errtax.ExcWarning; t++ {
		ensure(t)
	}
	return classes
}

func (vm *VM[T]) acquireFrame(code *Code, nsDepth int, fnID value.FunctionID) *Frame {
	if n := len(vm.framePool); n > 0 {
		f := vm.framePool[n-1]
		vm.framePool = vm.framePool[:n-1]
		f.reset(code, nsDepth, fnID)
		return f
	}
	return newFrame(code, nsDepth, fnID)
}

func (vm *VM[T]) pushFrame(f *Frame) { vm.frames = append(vm.frames, f) }

// popFrame removes and returns the innermost frame, releasing its
// activation (if it pushed one for a function call) and returning it to
// the pool. This is the popFrame exceptions.go's unwind() calls when a
// frame has no matching handler.
func (vm *VM[T]) popFrame() *Frame {
	n := len(vm.frames)
	f := vm.frames[n-1]
	vm.frames = vm.frames[:n-1]
	if f.NSDepth > 0 && f.NSDepth == vm.NS.Depth()-1 {
		vm.NS.PopActivation(vm.Heap)
	}
	vm.framePool = append(vm.framePool, f)
	return f
}

// Run executes code as a fresh top-level frame at the global namespace
// (§4.6 "Return conversion"). It is the entry point a ReplSession uses
// for module/REPL-statement execution; function calls during execution
// push their own frames via doCall and are not reentered through Run.
func (vm *VM[T]) Run(code *Code) (FrameExit, error) {
	f := vm.acquireFrame(code, 0, 0)
	vm.pushFrame(f)
	vm.Heap.Tracker().Begin(nil)
	defer vm.Heap.Tracker().End()
	return vm.loop()
}

// Resume continues execution after a host has answered a pause (§4.8):
// it validates call_id against the pending table, pushes the supplied
// result (or raises the supplied exception) onto the paused frame's
// operand stack, and re-enters the dispatch loop.
func (vm *VM[T]) Resume(callID value.CallID, result value.Value, raised *builtins.ExcSignal) (FrameExit, error) {
	if _, ok := vm.pending[callID]; !ok {
		return FrameExit{}, &errtax.HostProtocolError{Msg: "unknown call_id"}
	}
	delete(vm.pending, callID)
	if len(vm.frames) == 0 {
		return FrameExit{}, &errtax.HostProtocolError{Msg: "resume with no active frame"}
	}
	if raised != nil {
		if err := vm.raisePy(raised.Type, raised.Msg); err != nil {
			if _, ok := err.(*errtax.RunError); ok {
				return FrameExit{}, err
			}
			return FrameExit{}, err
		}
	} else {
		f := vm.frames[len(vm.frames)-1]
		f.push(result)
	}
	return vm.loop()
}

// loop is the opcode dispatch loop shared by Run and Resume (§4.6): a
// flat switch over OpCode, one fetch-decode-execute step per iteration,
// consulting AttrCallResult whenever an operator can fall through to
// user code.
func (vm *VM[T]) loop() (FrameExit, error) {
	for len(vm.frames) > 0 {
		f := vm.frames[len(vm.frames)-1]
		if f.IP >= len(f.Code.Instrs) {
			// fell off the end without an explicit return: implicit
			// `return None`, mirroring CPython's function epilogue.
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

// execOne runs one instruction against the innermost frame. done=true
// means the caller should return pause immediately (either a host pause
// or the module-level Return); done=false means keep looping.
func (vm *VM[T]) execOne(f *Frame, instr Instr) (FrameExit, bool, error) {
	switch instr.Op {
	case OpNop:
		return FrameExit{}, false, nil

	case OpLoadConst:
		v := f.Code.Consts[instr.A]
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpLoadGlobal:
		v := vm.NS.Global()[instr.A]
		if v.Kind() == value.KindUndefined {
			return vm.raiseAndContinue(errtax.ExcNameError, "name is not defined")
		}
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpStoreGlobal:
		v := f.pop()
		g := vm.NS.Global()
		vm.Heap.DropWithHeap(g[instr.A])
		g[instr.A] = v

	case OpLoadLocal:
		act := vm.NS.Activation(f.NSDepth)
		v := act[instr.A]
		if v.Kind() == value.KindUndefined {
			return vm.raiseAndContinue(errtax.ExcUnboundLocalError, "local variable referenced before assignment")
		}
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpStoreLocal:
		v := f.pop()
		act := vm.NS.Activation(f.NSDepth)
		vm.Heap.DropWithHeap(act[instr.A])
		act[instr.A] = v

	case OpLoadFree:
		// Closure cells are resolved against the defining function's
		// captured globals-at-definition-time slots in the
		// representative core: free variables always read through to
		// the global namespace, matching module-level closures; full
		// nested-function cell capture is an external compiler/VM
		// co-design left to a richer Function.Closures encoding.
		v := vm.NS.Global()[instr.A]
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpDeleteLocal:
		nsframe.Delete(vm.NS, vm.Heap, f.NSDepth, int(instr.A))

	case OpDeleteGlobal:
		nsframe.Delete(vm.NS, vm.Heap, 0, int(instr.A))

	case OpPop:
		vm.Heap.DropWithHeap(f.pop())

	case OpDup:
		v := f.top()
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpSwap:
		n := len(f.Operands)
		f.Operands[n-1], f.Operands[n-2] = f.Operands[n-2], f.Operands[n-1]

	case OpBinaryAdd, OpBinarySub, OpBinaryMul, OpBinaryDiv, OpBinaryFloorDiv,
		OpBinaryMod, OpBinaryPow, OpBinaryLShift, OpBinaryRShift,
		OpBinaryAnd, OpBinaryOr, OpBinaryXor:
		return vm.execBinary(f, instr.Op)

	case OpCompareEq, OpCompareNe, OpCompareLt, OpCompareLe, OpCompareGt, OpCompareGe:
		return vm.execCompare(f, instr.Op)

	case OpCompareIs:
		b, a := f.pop(), f.pop()
		r := a.Is(b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		f.push(value.Bool(r))

	case OpCompareIsNot:
		b, a := f.pop(), f.pop()
		r := !a.Is(b)
		vm.Heap.DropWithHeap(a)
		vm.Heap.DropWithHeap(b)
		f.push(value.Bool(r))

	case OpCompareIn, OpCompareNotIn:
		item, container := f.pop(), f.pop()
		r, ok := pyContains(vm.Heap, vm.Interner, container, item)
		vm.Heap.DropWithHeap(item)
		vm.Heap.DropWithHeap(container)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "argument is not iterable")
		}
		if instr.Op == OpCompareNotIn {
			r = !r
		}
		f.push(value.Bool(r))

	case OpUnaryNeg:
		v := f.pop()
		switch v.Kind() {
		case value.KindInt:
			f.push(value.Int(-v.AsInt()))
		case value.KindFloat:
			f.push(value.Float(-v.AsFloat()))
		default:
			vm.Heap.DropWithHeap(v)
			return vm.raiseAndContinue(errtax.ExcTypeError, "bad operand type for unary -")
		}

	case OpUnaryNot:
		v := f.pop()
		r := !truthy(vm.Heap, v)
		vm.Heap.DropWithHeap(v)
		f.push(value.Bool(r))

	case OpUnaryPos:
		v := f.pop()
		if !isNumericImmediate(v) {
			vm.Heap.DropWithHeap(v)
			return vm.raiseAndContinue(errtax.ExcTypeError, "bad operand type for unary +")
		}
		f.push(v)

	case OpBuildList:
		n := int(instr.A)
		items := make([]value.Value, n)
		copy(items, f.Operands[len(f.Operands)-n:])
		f.Operands = f.Operands[:len(f.Operands)-n]
		id, err := vm.Heap.Allocate(&heap.List{Items: items})
		if err != nil {
			return FrameExit{}, false, err
		}
		f.push(value.Ref(id))

	case OpBuildTuple:
		n := int(instr.A)
		items := make([]value.Value, n)
		copy(items, f.Operands[len(f.Operands)-n:])
		f.Operands = f.Operands[:len(f.Operands)-n]
		id, err := vm.Heap.Allocate(&heap.Tuple{Items: items})
		if err != nil {
			return FrameExit{}, false, err
		}
		f.push(value.Ref(id))

	case OpBuildSet:
		n := int(instr.A)
		s := heap.NewSet()
		start := len(f.Operands) - n
		for _, v := range f.Operands[start:] {
			hv := hashValue(vm.Heap, vm.Interner, v)
			dup := false
			for _, idx := range s.Index()[hv] {
				if pyEq(vm.Heap, vm.Interner, s.Items[idx], v) {
					dup = true
					break
				}
			}
			if dup {
				vm.Heap.DropWithHeap(v)
				continue
			}
			idx := len(s.Items)
			s.Items = append(s.Items, v)
			s.Index()[hv] = append(s.Index()[hv], idx)
		}
		f.Operands = f.Operands[:start]
		id, err := vm.Heap.Allocate(s)
		if err != nil {
			return FrameExit{}, false, err
		}
		f.push(value.Ref(id))

	case OpBuildDict:
		n := int(instr.A) // number of key/value pairs; 2*n values on stack
		d := heap.NewDict()
		start := len(f.Operands) - 2*n
		pairs := f.Operands[start:]
		for i := 0; i < n; i++ {
			k, v := pairs[2*i], pairs[2*i+1]
			hv := hashValue(vm.Heap, vm.Interner, k)
			d.Entries = append(d.Entries, heap.DictEntry{Key: k, Val: v, KeyHash: hv})
			d.Index()[hv] = append(d.Index()[hv], len(d.Entries)-1)
		}
		f.Operands = f.Operands[:start]
		id, err := vm.Heap.Allocate(d)
		if err != nil {
			return FrameExit{}, false, err
		}
		f.push(value.Ref(id))

	case OpGetItem:
		key, container := f.pop(), f.pop()
		v, ok, ek := pyGetItem(vm.Heap, vm.Interner, container, key)
		if ok {
			if ek == nil && v.IsRef() {
				vm.Heap.IncRef(v.AsHeapID()) // v aliases an entry still owned by container
			}
			vm.Heap.DropWithHeap(container)
			vm.Heap.DropWithHeap(key)
			if ek != nil {
				return vm.raiseExcKindAndContinue(ek)
			}
			f.push(v)
			return FrameExit{}, false, nil
		}
		res, ek := GetAttr(vm.Heap, vm.Interner, container, interner.StaticString(interner.SSGetItem))
		if ek != nil {
			vm.Heap.DropWithHeap(container)
			vm.Heap.DropWithHeap(key)
			return vm.raiseExcKindAndContinue(ek)
		}
		return vm.dispatchAttrCall(f, res, container, value.CallArgs{Positional: []value.Value{key}})

	case OpSetItem:
		val, key, container := f.pop(), f.pop(), f.pop()
		ok, ek, err := pySetItem(vm.Heap, vm.Interner, container, key, val)
		if err != nil {
			return FrameExit{}, false, err
		}
		vm.Heap.DropWithHeap(container)
		vm.Heap.DropWithHeap(key)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "object does not support item assignment")
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}

	case OpDelItem:
		key, container := f.pop(), f.pop()
		ok, ek := pyDelItem(vm.Heap, vm.Interner, container, key)
		vm.Heap.DropWithHeap(container)
		vm.Heap.DropWithHeap(key)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "object does not support item deletion")
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}

	case OpGetAttr:
		owner := f.pop()
		name := value.StringID(instr.A)
		res, ek := GetAttr(vm.Heap, vm.Interner, owner, name)
		if ek != nil {
			if bound, tok := vm.lookupTypeMethod(owner, name); tok {
				// lookupTypeMethod already consumed owner's reference
				// into the BoundMethod it built; nothing left to drop.
				return vm.dispatchAttrCall(f, bound, value.None, value.CallArgs{})
			}
			vm.Heap.DropWithHeap(owner)
			return vm.raiseExcKindAndContinue(ek)
		}
		return vm.dispatchAttrCall(f, res, owner, value.CallArgs{})

	case OpSetAttr:
		val, owner := f.pop(), f.pop()
		name := value.StringID(instr.A)
		ek, err := SetAttr(vm.Heap, vm.Interner, owner, name, val)
		if err != nil {
			return FrameExit{}, false, err
		}
		vm.Heap.DropWithHeap(owner)
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}

	case OpDelAttr:
		owner := f.pop()
		name := value.StringID(instr.A)
		ek := DelAttr(vm.Heap, vm.Interner, owner, name)
		vm.Heap.DropWithHeap(owner)
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}

	case OpGetIter:
		src := f.pop()
		// A generator is its own iterator (§9): OpForIter drives it
		// through GeneratorNext directly instead of wrapping it in a
		// plain-value Iterator.
		if _, ok := vm.Heap.Get(src.AsHeapID()).(*heap.Generator); src.IsRef() && ok {
			f.push(src)
			return FrameExit{}, false, nil
		}
		id, ek, err := NewIterator(vm.Heap, src)
		vm.Heap.DropWithHeap(src)
		if err != nil {
			return FrameExit{}, false, err
		}
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		f.push(value.Ref(id))

	case OpForIter:
		top := f.top()
		if top.IsRef() {
			if _, ok := vm.Heap.Get(top.AsHeapID()).(*heap.Generator); ok {
				v, more, err := vm.GeneratorNext(top.AsHeapID())
				if err != nil {
					return FrameExit{}, false, err
				}
				if !more {
					vm.Heap.DropWithHeap(f.pop())
					f.IP = int(instr.A)
					return FrameExit{}, false, nil
				}
				f.push(v)
				return FrameExit{}, false, nil
			}
		}
		it, ok := vm.Heap.Get(top.AsHeapID()).(*heap.Iterator)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "not an iterator")
		}
		v, more, ek := Advance(vm.Heap, it)
		if ek != nil {
			return vm.raiseExcKindAndContinue(ek)
		}
		if !more {
			vm.Heap.DropWithHeap(f.pop())
			f.IP = int(instr.A)
			return FrameExit{}, false, nil
		}
		if v.IsRef() {
			vm.Heap.IncRef(v.AsHeapID())
		}
		f.push(v)

	case OpJump:
		f.IP = int(instr.A)

	case OpJumpIfFalse:
		v := f.pop()
		t := truthy(vm.Heap, v)
		vm.Heap.DropWithHeap(v)
		if !t {
			f.IP = int(instr.A)
		}

	case OpJumpIfTrue:
		v := f.pop()
		t := truthy(vm.Heap, v)
		vm.Heap.DropWithHeap(v)
		if t {
			f.IP = int(instr.A)
		}

	case OpJumpIfFalseOrPop:
		if !truthy(vm.Heap, f.top()) {
			f.IP = int(instr.A)
		} else {
			vm.Heap.DropWithHeap(f.pop())
		}

	case OpJumpIfTrueOrPop:
		if truthy(vm.Heap, f.top()) {
			f.IP = int(instr.A)
		} else {
			vm.Heap.DropWithHeap(f.pop())
		}

	case OpCall, OpCallKw:
		return vm.execCall(f, instr)

	case OpMakeFunction:
		fnID := value.FunctionID(instr.A)
		f.push(value.DefFunction(fnID))

	case OpReturnValue:
		v := f.pop()
		return vm.doReturn(v)

	case OpRaise:
		excValue := f.pop()
		typeName := vm.typeNameOf(excValue)
		if err := vm.unwind(excValue, typeName); err != nil {
			return FrameExit{}, true, err
		}
		return FrameExit{}, false, nil

	case OpReraise:
		excValue := f.pop()
		typeName := vm.typeNameOf(excValue)
		if err := vm.unwind(excValue, typeName); err != nil {
			return FrameExit{}, true, err
		}

	case OpPushExceptHandler:
		f.activeHandlers = append(f.activeHandlers, int(instr.A))

	case OpPopExceptHandler:
		if n := len(f.activeHandlers); n > 0 {
			f.activeHandlers = f.activeHandlers[:n-1]
		}

	case OpEndFinally:
		// Control-flow re-dispatch after a finally block (reraise vs.
		// fall through vs. propagate a pending return) is compiled away
		// by the external compiler into explicit jumps/OpRaise/
		// OpReturnValue; this opcode is a no-op marker kept symmetric
		// with PushExceptHandler/PopExceptHandler.

	case OpLoadBuiltin:
		fn := builtins.Function(instr.A)
		f.push(value.Builtin(int64(fn)))

	case OpPrint:
		n := int(instr.A)
		args := value.CallArgs{Positional: append([]value.Value(nil), f.Operands[len(f.Operands)-n:]...)}
		f.Operands = f.Operands[:len(f.Operands)-n]
		out, err := builtins.CallFunction(vm.builtinCtx(), builtins.FnPrint, args)
		for _, v := range args.Positional {
			vm.Heap.DropWithHeap(v)
		}
		if err != nil {
			return FrameExit{}, false, err
		}
		if out.Exc != nil {
			return vm.raiseAndContinue(out.Exc.Type, out.Exc.Msg)
		}

	case OpGetAwaitable:
		// A Coroutine is its own awaitable; anything else is passed
		// through unchanged (representative core, §9).

	case OpAwait:
		v := f.pop()
		result, err := vm.awaitValue(v)
		if err != nil {
			return FrameExit{}, false, err
		}
		f.push(result)

	case OpYield:
		v := f.pop()
		if len(vm.frames) > 0 && vm.genFrameIx == len(vm.frames)-1 {
			return FrameExit{Kind: PauseReturn, Result: v}, true, nil
		}
		// A yield reached outside an active GeneratorNext call is a
		// compiler contract violation (yield only ever appears inside a
		// generator function body); surface it as a host protocol error
		// rather than silently dropping the value.
		return FrameExit{}, true, &errtax.HostProtocolError{Msg: "yield outside generator frame"}

	case OpYieldFrom:
		// Delegating to a sub-iterator's full yield sequence needs the
		// same per-step resumption GeneratorNext provides; the
		// representative core drains the sub-iterable eagerly instead
		// of forwarding each yield individually.
		src := f.pop()
		items, ok := materializeSequenceVM(vm.Heap, src)
		vm.Heap.DropWithHeap(src)
		if !ok {
			return vm.raiseAndContinue(errtax.ExcTypeError, "value after yield from must be an iterable")
		}
		if len(items) == 0 {
			f.push(value.None)
		} else {
			f.push(items[len(items)-1])
		}

	case OpBuildClass:
		return vm.execBuildClass(f, instr)

	case OpImportName:
		// Module resolution is a host/stdlib concern (§1 "modules ...
		// out of scope"); the representative core raises
		// ModuleNotFoundError for any import reaching the VM.
		return vm.raiseAndContinue(errtax.ExcModuleNotFoundError, "no module named that")

	case OpHalt:
		return FrameExit{Kind: PauseReturn, Result: value.None}, true, nil
	}
	return FrameExit{}, false, nil
}

func (vm *VM[T]) builtinCtx() builtins.Context[T] {
	return builtins.Context[T]{Heap: vm.Heap, Interns: vm.Interner, Stdout: vm.Stdout}
}

func truthy[T heap.Tracker](h *heap.Heap[T], v value.Value) bool {
	switch v.Kind() {
	case value.KindNone, value.KindUndefined:
		return false
	case value.KindBool, value.KindInt:
		return v.AsInt() != 0
	case value.KindFloat:
		return v.AsFloat() != 0
	}
	if n, ok := pyLen(h, v); ok {
		return n != 0
	}
	return true
}

// raiseAndContinue is the execOne-level convenience wrapper around
// raisePy: it converts a Go error from raisePy into the (pause, done,
// err) shape execOne's callers expect.
func (vm *VM[T]) raiseAndContinue(t errtax.ExcType, msg string) (FrameExit, bool, error) {
	if err := vm.raisePy(t, msg); err != nil {
		return FrameExit{}, true, err
	}
	return FrameExit{}, false, nil
}

// raiseExcKindAndContinue is raiseAndContinue for the lightweight
// numeric/container excKind signal (exceptions.go's raiseExcKind already
// knows how to turn one into a Python exception).
func (vm *VM[T]) raiseExcKindAndContinue(ek *excKind) (FrameExit, bool, error) {
	if err := vm.raiseExcKind(ek); err != nil {
		return FrameExit{}, true, err
	}
	return FrameExit{}, false, nil
}

// doReturn implements OpReturnValue / falling off the end of a frame's
// code: pop the frame, drop its remaining operands/locals, and either
// push the result onto the caller frame (a nested call returning) or
// report FrameExit::Return if this was the outermost frame (§4.6).
func (vm *VM[T]) doReturn(v value.Value) (FrameExit, bool, error) {
	f := vm.popFrame()
	for _, leftover := range f.Operands {
		vm.Heap.DropWithHeap(leftover)
	}
	if f.HasInstantiateResult {
		vm.Heap.DropWithHeap(v)
		v = value.Ref(f.InstantiateResult)
	}
	if len(vm.frames) == 0 || f.IsGeneratorRoot {
		return FrameExit{Kind: PauseReturn, Result: v}, true, nil
	}
	vm.frames[len(vm.frames)-1].push(v)
	return FrameExit{}, false, nil
}

func (vm *VM[T]) typeNameOf(excValue value.Value) string {
	if !excValue.IsRef() {
		return "Exception"
	}
	inst, ok := vm.Heap.Get(excValue.AsHeapID()).(*heap.Instance)
	if !ok {
		return "Exception"
	}
	cls, ok := vm.Heap.Get(inst.Class).(*heap.ClassObject)
	if !ok {
		return "Exception"
	}
	return vm.Interner.GetStr(cls.Name)
}

func materializeSequenceVM[T heap.Tracker](h *heap.Heap[T], v value.Value) ([]value.Value, bool) {
	if !v.IsRef() {
		return nil, false
	}
	switch d := h.Get(v.AsHeapID()).(type) {
	case *heap.List:
		return d.Items, true
	case *heap.Tuple:
		return d.Items, true
	}
	return nil, false
}
