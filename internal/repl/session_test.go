package repl

import (
	"testing"

	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/bytecode"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

type nullPrintWriter struct{}

func (nullPrintWriter) StdoutWrite(string) *builtins.ExcSignal { return nil }
func (nullPrintWriter) StdoutPush(rune)                        {}

// assignXSnippet compiles to: x = 1, binding global slot 0 to name "x".
func assignXSnippet() Snippet {
	return Snippet{
		Code: &vm.Code{
			Name: "<module>",
			Instrs: []bytecode.Instr{
				{Op: bytecode.OpLoadConst, A: 0},
				{Op: bytecode.OpStoreGlobal, A: 0},
			},
			Consts: []value.Value{value.Int(1)},
		},
		NewGlobalNames: []string{"x"},
	}
}

func TestExecuteAssignsGlobal(t *testing.T) {
	s := New[*heap.NoLimitTracker]("t.py", &heap.NoLimitTracker{}, nullPrintWriter{})
	if _, exc, err := s.Execute(assignXSnippet()); err != nil || exc != nil {
		t.Fatalf("execute: err=%v exc=%v", err, exc)
	}
	v, ok := s.GetVariable("x")
	if !ok || v.AsInt() != 1 {
		t.Fatalf("want x=1, got %v ok=%v", v, ok)
	}
}

func TestForkIsIndependent(t *testing.T) {
	s := New[*heap.NoLimitTracker]("t.py", &heap.NoLimitTracker{}, nullPrintWriter{})
	if _, exc, err := s.Execute(assignXSnippet()); err != nil || exc != nil {
		t.Fatalf("execute: err=%v exc=%v", err, exc)
	}

	forked, err := s.Fork()
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if err := forked.SetVariable("x", value.Int(99)); err != nil {
		t.Fatalf("set on fork: %v", err)
	}

	v, _ := s.GetVariable("x")
	if v.AsInt() != 1 {
		t.Errorf("fork mutation leaked into original: x=%v", v.AsInt())
	}
	fv, _ := forked.GetVariable("x")
	if fv.AsInt() != 99 {
		t.Errorf("fork's own assignment didn't take: x=%v", fv.AsInt())
	}
}

func TestForkRejectsPendingCall(t *testing.T) {
	s := New[*heap.NoLimitTracker]("t.py", &heap.NoLimitTracker{}, nullPrintWriter{})
	s.hasPending = true
	if _, err := s.Fork(); err == nil {
		t.Fatal("expected Fork to reject a session with a call pending")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New[*heap.NoLimitTracker]("t.py", &heap.NoLimitTracker{}, nullPrintWriter{})
	if _, exc, err := s.Execute(assignXSnippet()); err != nil || exc != nil {
		t.Fatalf("execute: err=%v exc=%v", err, exc)
	}

	data, err := s.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load[*heap.NoLimitTracker](data, &heap.NoLimitTracker{}, nullPrintWriter{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, ok := loaded.GetVariable("x")
	if !ok || v.AsInt() != 1 {
		t.Fatalf("loaded session lost x: v=%v ok=%v", v, ok)
	}
	if loaded.SessionID != s.SessionID {
		t.Errorf("SessionID not preserved across save/load")
	}
}

func TestSaveRejectsPendingCall(t *testing.T) {
	s := New[*heap.NoLimitTracker]("t.py", &heap.NoLimitTracker{}, nullPrintWriter{})
	s.hasPending = true
	if _, err := s.Save(); err == nil {
		t.Fatal("expected Save to reject a session with a call pending")
	}
}
