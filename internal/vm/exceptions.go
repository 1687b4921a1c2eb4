package vm

import (
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/value"
)

// NewException allocates an Instance for a builtin exception type,
// mirroring Exception.__init__'s args-tuple assignment (§4.5, §7 "every
// exception retains a .args tuple").
func NewException[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, excClasses map[errtax.ExcType]value.HeapID, t errtax.ExcType, args []value.Value) (value.HeapID, error) {
	tupleID, err := h.Allocate(&heap.Tuple{Items: append([]value.Value(nil), args...)})
	if err != nil {
		return 0, err
	}
	for _, a := range args {
		if a.IsRef() {
			h.IncRef(a.AsHeapID())
		}
	}
	ns, err := h.Allocate(heap.NewDict())
	if err != nil {
		return 0, err
	}
	_, ek, err := pySetItem(h, in, value.Ref(ns), value.InternString(interner.StaticString(interner.SSArgs)), value.Ref(tupleID))
	_ = ek
	if err != nil {
		return 0, err
	}
	h.IncRef(tupleID)
	inst, err := h.Allocate(&heap.Instance{Class: excClasses[t], HasDict: true, AttrsDict: ns})
	if err != nil {
		return 0, err
	}
	h.IncRef(excClasses[t])
	return inst, nil
}

// ToHostException flattens a raised-exception Instance into the
// host-facing errtax.Exception (§7 "a type name matching Python's
// spelling ... a traceback assembled from the line/column table").
func ToHostException[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, instID value.HeapID, typeName string, tb []errtax.TracebackFrame) *errtax.Exception {
	var args []value.Value
	inst, ok := h.Get(instID).(*heap.Instance)
	if ok && inst.HasDict {
		if v, found := lookupInDict(h, in, inst.AttrsDict, interner.StaticString(interner.SSArgs)); found {
			if v.IsRef() {
				if tup, ok := h.Get(v.AsHeapID()).(*heap.Tuple); ok {
					args = tup.Items
				}
			}
		}
	}
	return &errtax.Exception{TypeName: typeName, Args: args, Traceback: tb, Instance: instID}
}

// raiseExcKind is the bridge from the lightweight excKind signal used by
// numeric.go/container.go to an actual heap exception instance, given the
// VM's table of pre-materialized builtin exception classes.
func (vm *VM[T]) raiseExcKind(ek *excKind) error {
	switch {
	case ek.zeroDivision:
		return vm.raisePy(errtax.ExcZeroDivisionError, "division by zero")
	case ek.valueError != "":
		return vm.raisePy(errtax.ExcValueError, ek.valueError)
	case ek.typeError != "":
		return vm.raisePy(errtax.ExcTypeError, ek.typeError)
	}
	return vm.raisePy(errtax.ExcException, "")
}

func (vm *VM[T]) raisePy(t errtax.ExcType, msg string) error {
	var args []value.Value
	if msg != "" {
		sid := vm.Interner.InternStr(msg)
		args = []value.Value{value.InternString(sid)}
	}
	instID, err := NewException(vm.Heap, vm.Interner, vm.excClasses, t, args)
	if err != nil {
		return err
	}
	return vm.unwind(value.Ref(instID), t.String())
}

// unwind performs §4.6's exception unwinding: pop handlers from the
// innermost active frame outward until one matches by isinstance (MRO
// walk) or the frame stack is exhausted, in which case the caller
// converts this into RunResult::Err (§4.6 "Return conversion").
//
// Every value on the operand stack and every local slot of each popped
// frame is dropped through the heap before moving to the next frame
// (§8.2 "Drop ordering on exceptions").
func (vm *VM[T]) unwind(excValue value.Value, typeName string) error {
	for len(vm.frames) > 0 {
		f := vm.frames[len(vm.frames)-1]
		for i := len(f.activeHandlers) - 1; i >= 0; i-- {
			rangeIdx := f.activeHandlers[i]
			hr := f.Code.ExcRanges[rangeIdx]
			if hr.IsFinally || vm.excMatches(excValue, hr.ExcTypeFilter) {
				f.truncateTo(hr.StackDepth, vm)
				f.IP = hr.Handler
				f.activeHandlers = f.activeHandlers[:i]
				f.push(excValue)
				return nil
			}
		}
		vm.dropFrameContents(f)
		vm.popFrame()
	}
	tb := vm.captureTraceback()
	exc := ToHostException(vm.Heap, vm.Interner, excValue.AsHeapID(), typeName, tb)
	vm.Heap.DropWithHeap(excValue)
	return &errtax.RunError{Exc: exc}
}

// truncateTo drops every operand above depth before a handler resumes,
// then restores the stack to depth (§8.2).
func (f *Frame) truncateTo(depth int, vm interface{ dropOperand(value.Value) }) []value.Value {
	for len(f.Operands) > depth {
		v := f.Operands[len(f.Operands)-1]
		f.Operands = f.Operands[:len(f.Operands)-1]
		vm.dropOperand(v)
	}
	return f.Operands
}

func (vm *VM[T]) dropOperand(v value.Value) { vm.Heap.DropWithHeap(v) }

func (vm *VM[T]) dropFrameContents(f *Frame) {
	for _, v := range f.Operands {
		vm.Heap.DropWithHeap(v)
	}
	f.Operands = f.Operands[:0]
	if f.NSDepth > 0 {
		// non-global activation: its slots are dropped by PopActivation
		// in popFrame, not here, to avoid a double-drop.
		return
	}
}

func (vm *VM[T]) excMatches(excValue value.Value, filter []value.StringID) bool {
	if len(filter) == 0 {
		return true
	}
	if !excValue.IsRef() {
		return false
	}
	inst, ok := vm.Heap.Get(excValue.AsHeapID()).(*heap.Instance)
	if !ok {
		return false
	}
	cls := vm.Heap.Get(inst.Class).(*heap.ClassObject)
	for _, m := range cls.MRO {
		mc := vm.Heap.Get(m).(*heap.ClassObject)
		for _, want := range filter {
			if mc.Name == want {
				return true
			}
		}
	}
	return false
}

func (vm *VM[T]) captureTraceback() []errtax.TracebackFrame {
	tb := make([]errtax.TracebackFrame, 0, len(vm.frames))
	for _, f := range vm.frames {
		line, col := f.Code.PositionFor(f.IP)
		tb = append(tb, errtax.TracebackFrame{FunctionName: f.Code.Name, Line: line, Column: col})
	}
	return tb
}
