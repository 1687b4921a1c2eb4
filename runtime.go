package ouros

import (
	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/nsframe"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// discardPrintWriter is the sink RunNoLimits uses when the caller
// supplies no PrintWriter of its own (§6 run_no_limits takes no print
// argument). Writes never fail and the newline is simply dropped.
type discardPrintWriter struct{}

func (discardPrintWriter) StdoutWrite(string) *builtins.ExcSignal { return nil }
func (discardPrintWriter) StdoutPush(rune)                        {}

// env bundles one fresh execution environment (heap/namespaces/interner/
// VM), shared by Runner.Run/RunNoLimits/Start and carried forward by
// Snapshot/FutureSnapshot across pauses (§4.9-style session state, but
// scoped to a single Runner.Start call rather than persisting across
// separate top-level runs the way ReplSession does).
type env[T heap.Tracker] struct {
	Heap     *heap.Heap[T]
	NS       *nsframe.Namespaces
	Interner *interner.Interner
	VM       *vm.VM[T]
}

func argsToObjects[T heap.Tracker](h *heap.Heap[T], in *interner.Interner, args value.CallArgs) ([]Object, []KwArg, error) {
	pos, err := fromValueSlice(h, in, args.Positional)
	if err != nil {
		return nil, nil, err
	}
	kw := make([]KwArg, len(args.KwNames))
	for i, name := range args.KwNames {
		v, err := FromValue(h, in, args.KwValues[i])
		if err != nil {
			return nil, nil, err
		}
		kw[i] = KwArg{Name: in.GetStr(name), Value: v}
	}
	return pos, kw, nil
}

// settle turns a raw FrameExit/error pair into a RunProgress, wrapping
// any pause into a Snapshot/FutureSnapshot the caller can answer later.
// Unlike internal/repl's settle, Runner carries no CapabilitySet: §6
// names no capability hook on Runner, only on ReplSession.
func settle[T heap.Tracker](e *env[T], exit vm.FrameExit, err error) (RunProgress[T], error) {
	if err != nil {
		if runErr, ok := err.(*errtax.RunError); ok {
			return RunProgress[T]{Kind: Complete, Err: runErr.Exc}, nil
		}
		return RunProgress[T]{}, err
	}
	switch exit.Kind {
	case vm.PauseReturn:
		obj, err := FromValue(e.Heap, e.Interner, exit.Result)
		if err != nil {
			return RunProgress[T]{}, err
		}
		return RunProgress[T]{Kind: Complete, Result: obj}, nil

	case vm.PauseExternalCall:
		args, kwargs, err := argsToObjects(e.Heap, e.Interner, exit.Args)
		if err != nil {
			return RunProgress[T]{}, err
		}
		name := e.Interner.GetExternalFunctionName(exit.ExtFunctionID)
		return RunProgress[T]{
			Kind:            FunctionCall,
			ExtFunctionName: name,
			Args:            args,
			KwArgs:          kwargs,
			Snapshot:        &Snapshot[T]{env: e, callID: exit.CallID},
		}, nil

	case vm.PauseProxyCall:
		args, kwargs, err := argsToObjects(e.Heap, e.Interner, exit.Args)
		if err != nil {
			return RunProgress[T]{}, err
		}
		return RunProgress[T]{
			Kind:     ProxyCall,
			ProxyID:  exit.ProxyID,
			Method:   e.Interner.GetStr(exit.Method),
			Args:     args,
			KwArgs:   kwargs,
			Snapshot: &Snapshot[T]{env: e, callID: exit.CallID},
		}, nil

	case vm.PauseOsCall:
		args, kwargs, err := argsToObjects(e.Heap, e.Interner, exit.Args)
		if err != nil {
			return RunProgress[T]{}, err
		}
		return RunProgress[T]{
			Kind:            FunctionCall,
			ExtFunctionName: "<os>",
			Args:            args,
			KwArgs:          kwargs,
			Snapshot:        &Snapshot[T]{env: e, callID: exit.CallID},
		}, nil

	case vm.PauseResolveFutures:
		if len(exit.PendingCallIDs) != 1 {
			return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "multiple simultaneous pending futures are not supported by this representative scheduler"}
		}
		return RunProgress[T]{
			Kind:    ResolveFutures,
			Futures: &FutureSnapshot[T]{env: e, pendingCallID: exit.PendingCallIDs[0]},
		}, nil

	default:
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "unknown pause kind"}
	}
}
