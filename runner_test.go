package ouros

import (
	"testing"

	"github.com/parcadei/ouros/internal/bytecode"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// addProgram compiles to: return a + b, where a/b are global slots 0/1.
func addProgram() *vm.Code {
	return &vm.Code{
		Name: "<module>",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadGlobal, A: 0},
			{Op: bytecode.OpLoadGlobal, A: 1},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpReturnValue},
		},
	}
}

func TestRunnerRunAddsInputs(t *testing.T) {
	r := NewRunner[*heap.NoLimitTracker]("add.py", addProgram(), nil, []string{"a", "b"}, nil)
	result, exc, err := RunNoLimits(r, []Object{Int(3), Int(4)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exc != nil {
		t.Fatalf("unexpected exception: %v", exc)
	}
	if result.Kind != KindInt || result.Int != 7 {
		t.Fatalf("want Int(7), got %+v", result)
	}
}

// callExternal compiles to: return ext_fn(a), where a is global slot 0
// and ext_fn is external function 0. OpCall expects the callee pushed
// before its positional arguments (internal/vm/dispatch.go's execCall
// pops the args first, then the callee underneath them).
func callExternalProgram() *vm.Code {
	return &vm.Code{
		Name: "<module>",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, A: 0}, // ExtFunction(0), see Consts below
			{Op: bytecode.OpLoadGlobal, A: 0},
			{Op: bytecode.OpCall, A: 1},
			{Op: bytecode.OpReturnValue},
		},
		Consts: []value.Value{value.ExtFunction(0)},
	}
}

func TestRunnerStartPausesOnExternalCall(t *testing.T) {
	r := NewRunner[*heap.NoLimitTracker]("ext.py", callExternalProgram(), nil, []string{"a"}, []string{"double"})
	prog, err := r.Start([]Object{Int(21)}, &heap.NoLimitTracker{}, discardPrintWriter{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if prog.Kind != FunctionCall {
		t.Fatalf("want FunctionCall pause, got %+v", prog.Kind)
	}
	if prog.ExtFunctionName != "double" {
		t.Fatalf("want external call to %q, got %q", "double", prog.ExtFunctionName)
	}
	if len(prog.Args) != 1 || prog.Args[0].Int != 21 {
		t.Fatalf("want args [21], got %+v", prog.Args)
	}

	done, err := prog.Snapshot.Run(Return(Int(42)), nil)
	if err != nil {
		t.Fatalf("Snapshot.Run: %v", err)
	}
	if done.Kind != Complete || done.Result.Int != 42 {
		t.Fatalf("want Complete(42), got %+v", done)
	}
}

func TestRunnerRunRejectsPause(t *testing.T) {
	r := NewRunner[*heap.NoLimitTracker]("ext.py", callExternalProgram(), nil, []string{"a"}, []string{"double"})
	if _, _, err := r.Run([]Object{Int(1)}, &heap.NoLimitTracker{}, discardPrintWriter{}); err == nil {
		t.Fatal("expected Run to reject a program that pauses")
	}
}
