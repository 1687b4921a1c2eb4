package ouros

import (
	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/value"
)

// Snapshot is the host's handle on a run paused at a single FunctionCall/
// ProxyCall/OsCall (§6 "Snapshot<T>::run(ExternalResult, print)"). It
// carries everything needed to resume exactly where the pause happened;
// a Snapshot is single-use, like the call_id it answers.
type Snapshot[T heap.Tracker] struct {
	env    *env[T]
	callID value.CallID
	used   bool
}

// Run answers the pause this Snapshot represents with result, optionally
// swapping in a new PrintWriter for the remainder of the run.
func (s *Snapshot[T]) Run(result ExternalResult, print builtins.PrintWriter) (RunProgress[T], error) {
	if s.used {
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "snapshot already resumed"}
	}
	s.used = true
	if print != nil {
		s.env.VM.Stdout = print
	}

	var raised *builtins.ExcSignal
	var rv value.Value
	switch result.Kind {
	case ExtReturn:
		v, err := ToValue(s.env.Heap, s.env.Interner, result.Value)
		if err != nil {
			return RunProgress[T]{}, err
		}
		rv = v
	case ExtError:
		raised = &builtins.ExcSignal{Type: result.ExcType, Msg: result.ExcMsg}
	default:
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "cannot answer a FunctionCall/ProxyCall pause with Future; only resume_futures accepts deferred calls"}
	}

	exit, err := s.env.VM.Resume(s.callID, rv, raised)
	return settle(s.env, exit, err)
}

// FutureSnapshot is the host's handle on a run paused in ResolveFutures
// (§6 "FutureSnapshot<T>::resume(Vec<(u32, ExternalResult)>, print)"). The
// representative scheduler only ever surfaces one outstanding call at the
// top level (see internal/vm/scheduler_driver.go), so Resume requires its
// map to contain exactly that one call_id.
type FutureSnapshot[T heap.Tracker] struct {
	env           *env[T]
	pendingCallID value.CallID
	used          bool
}

// PendingCallIDs returns the call_ids this snapshot is waiting on, for
// hosts that want to inspect which futures are outstanding before
// resolving them.
func (f *FutureSnapshot[T]) PendingCallIDs() []uint32 {
	return []uint32{uint32(f.pendingCallID)}
}

// Resume answers every outstanding call named in results. Per this
// scheduler's single-task-body-at-a-time limitation, results must carry
// exactly the one pending call_id.
func (f *FutureSnapshot[T]) Resume(results map[uint32]ExternalResult, print builtins.PrintWriter) (RunProgress[T], error) {
	if f.used {
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "future snapshot already resumed"}
	}
	res, ok := results[uint32(f.pendingCallID)]
	if !ok || len(results) != 1 {
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "resume requires exactly the pending call_id for this representative scheduler"}
	}
	if res.Kind == ExtFuture {
		return RunProgress[T]{}, &errtax.HostProtocolError{Msg: "a ResolveFutures pause must be answered with Return or Error, not another Future"}
	}
	f.used = true
	if print != nil {
		f.env.VM.Stdout = print
	}

	var raised *builtins.ExcSignal
	var rv value.Value
	if res.Kind == ExtError {
		raised = &builtins.ExcSignal{Type: res.ExcType, Msg: res.ExcMsg}
	} else {
		v, err := ToValue(f.env.Heap, f.env.Interner, res.Value)
		if err != nil {
			return RunProgress[T]{}, err
		}
		rv = v
	}

	exit, err := f.env.VM.Resume(f.pendingCallID, rv, raised)
	return settle(f.env, exit, err)
}
