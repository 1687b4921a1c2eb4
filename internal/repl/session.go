// Package repl implements C9: a persistent execution session over one
// VM/heap/namespace triple, the unit a host embeds for a REPL-style
// workload (as opposed to the single-shot Runner in the root ouros
// package).
// ReplSession owns the interner, function table, external-function name
// table, heap and namespaces for the lifetime of a conversation with a
// host, the same way the teacher's Interp accumulates symbol-table state
// across repeated Eval calls without ever starting over.
package repl

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/nsframe"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// Snippet is one already-compiled unit of work handed to ReplSession.Execute/
// ExecuteInteractive. Ouros has no lexer/parser/compiler of its own (§1
// Non-goals); code/functions/globalNames are produced by an external
// collaborator and only registered/run here.
type Snippet struct {
	Code *vm.Code

	// NewFunctions are freshly compiled function bodies this snippet
	// introduces; they are appended to the interner's function table
	// (existing FunctionIDs from earlier snippets are never renumbered).
	NewFunctions []vm.Function

	// NewGlobalNames are the top-level names this snippet's compile
	// assigned new global slots to, in slot order starting at the
	// session's current global size. Each also appears in exactly one
	// OpStoreGlobal in Code or one of NewFunctions' children.
	NewGlobalNames []string
}

// ProgressKind mirrors FrameExit's pause reasons plus a terminal Complete
// variant, which vm.FrameExit has no use for since Run/Resume only
// return when either a pause or a normal top-level return happens.
type ProgressKind uint8

const (
	Complete ProgressKind = iota
	FunctionCall
	ProxyCall
	ResolveFutures
)

// Progress is what ExecuteInteractive/Resume/ResumeFutures return instead
// of forcing a pause straight back out to Go's error channel: a snippet
// that never pauses looks the same as one that paused and was resumed to
// completion, from the caller's point of view.
type Progress struct {
	Kind ProgressKind

	// Complete
	Result value.Value
	Err    *errtax.Exception

	// FunctionCall
	ExtFunctionName string

	// ProxyCall
	ProxyID uint32
	Method  string

	// FunctionCall / ProxyCall
	Args   value.CallArgs
	CallID value.CallID

	// ResolveFutures
	PendingCallIDs []value.CallID
}

// ReplSession is C9's persistent session (§4.9). T threads the resource
// tracker through the same way the VM and heap do.
type ReplSession[T heap.Tracker] struct {
	SessionID  uuid.UUID
	ScriptName string

	Interner *interner.Interner
	Heap     *heap.Heap[T]
	NS       *nsframe.Namespaces
	VM       *vm.VM[T]

	globalSlot map[string]int // name -> global slot index
	extNames   map[string]bool

	capabilities *CapabilitySet

	pendingCallID value.CallID
	hasPending    bool

	ResumeCount int
}

// New constructs an empty session. tracker is consumed by the session's
// heap; stdout is the sink print() writes through (§6 PrintWriter).
func New[T heap.Tracker](scriptName string, tracker T, stdout builtins.PrintWriter) *ReplSession[T] {
	h := heap.New(tracker)
	ns := nsframe.New(0)
	in := interner.New()
	return &ReplSession[T]{
		SessionID:  uuid.New(),
		ScriptName: scriptName,
		Interner:   in,
		Heap:       h,
		NS:         ns,
		VM:         vm.New(h, ns, in, stdout),
		globalSlot: make(map[string]int),
		extNames:   make(map[string]bool),
	}
}

// SetCapabilities restricts which external-function and proxy-method
// names are callable at the host-call boundary (§4.9). Passing nil lifts
// every restriction.
func (s *ReplSession[T]) SetCapabilities(cs *CapabilitySet) { s.capabilities = cs }

// commit registers a snippet's new functions and global names before any
// VM execution happens (§4.9 "on success, interner/name-map/function-
// table/namespace-size are committed before VM execution"). There is no
// compile step here to fail after commit: compilation already happened
// in the external collaborator that produced the Snippet, so "on
// compilation failure session state is unchanged" is automatically true
// of anything this package does.
func (s *ReplSession[T]) commit(snip Snippet) {
	s.Interner.SetFunctions(snip.NewFunctions)
	base := len(s.globalSlot)
	s.NS.GrowGlobal(base + len(snip.NewGlobalNames))
	for i, name := range snip.NewGlobalNames {
		s.globalSlot[name] = base + i
	}
}

// Execute runs a snippet that must not pause: convenient for hosts that
// never register external functions/proxies and therefore know nothing
// the snippet calls can yield to the host. Use ExecuteInteractive for
// anything that might.
func (s *ReplSession[T]) Execute(snip Snippet) (value.Value, *errtax.Exception, error) {
	p, err := s.ExecuteInteractive(snip)
	if err != nil {
		return value.Undefined, nil, err
	}
	if p.Kind != Complete {
		return value.Undefined, nil, &errtax.HostProtocolError{Msg: "snippet paused on a host call; use ExecuteInteractive"}
	}
	return p.Result, p.Err, nil
}

// ExecuteInteractive runs a snippet, committing its new functions/globals
// first, then returning whatever FrameExit the VM produces — possibly a
// pause the host must answer via Resume/ResumeFutures (§4.9).
func (s *ReplSession[T]) ExecuteInteractive(snip Snippet) (Progress, error) {
	if s.hasPending {
		return Progress{}, &errtax.HostProtocolError{Msg: "a call is already pending on this session"}
	}
	s.commit(snip)
	exit, err := s.VM.Run(snip.Code)
	return s.settle(exit, err)
}

// Resume answers a FunctionCall/ProxyCall pause with a single result or
// raised exception (§4.8/§4.9).
func (s *ReplSession[T]) Resume(callID value.CallID, result value.Value, raised *builtins.ExcSignal) (Progress, error) {
	if !s.hasPending || callID != s.pendingCallID {
		return Progress{}, &errtax.HostProtocolError{Msg: "unknown call_id"}
	}
	s.hasPending = false
	s.ResumeCount++
	exit, err := s.VM.Resume(callID, result, raised)
	return s.settle(exit, err)
}

// ResumeFutures answers a ResolveFutures pause. The representative
// scheduler only ever surfaces one outstanding call at the top level
// (see internal/vm/scheduler_driver.go's Step doc comment on the
// single-task-body-at-a-time limitation), so results must contain
// exactly the one id named by the prior ResolveFutures Progress.
func (s *ReplSession[T]) ResumeFutures(results map[value.CallID]ExternalResult) (Progress, error) {
	if !s.hasPending {
		return Progress{}, &errtax.HostProtocolError{Msg: "no pending futures on this session"}
	}
	res, ok := results[s.pendingCallID]
	if !ok || len(results) != 1 {
		return Progress{}, &errtax.HostProtocolError{Msg: "resume_futures requires exactly the pending call_id for this representative scheduler"}
	}
	s.hasPending = false
	s.ResumeCount++
	var exit vm.FrameExit
	var err error
	switch res.Kind {
	case ExtReturn:
		exit, err = s.VM.Resume(s.pendingCallID, res.Value, nil)
	case ExtError:
		exit, err = s.VM.Resume(s.pendingCallID, value.Undefined, &builtins.ExcSignal{Type: res.ExcType, Msg: res.ExcMsg})
	default:
		return Progress{}, &errtax.HostProtocolError{Msg: "resume_futures result must be Return or Error, not Future"}
	}
	return s.settle(exit, err)
}

// settle turns a raw FrameExit/error pair into a Progress, transparently
// rejecting any pause against a capability name this session disallows
// by injecting a PermissionError and continuing rather than surfacing
// the disallowed pause to the host (§4.9 "Violations surface as
// PermissionError in Python").
func (s *ReplSession[T]) settle(exit vm.FrameExit, err error) (Progress, error) {
	for {
		if err != nil {
			if runErr, ok := err.(*errtax.RunError); ok {
				return Progress{Kind: Complete, Err: runErr.Exc}, nil
			}
			return Progress{}, err
		}
		switch exit.Kind {
		case vm.PauseReturn:
			return Progress{Kind: Complete, Result: exit.Result}, nil
		case vm.PauseExternalCall:
			name := s.Interner.GetExternalFunctionName(exit.ExtFunctionID)
			if !s.capabilities.AllowsFunction(name) {
				exit, err = s.VM.Resume(exit.CallID, value.Undefined, &builtins.ExcSignal{
					Type: errtax.ExcPermissionError,
					Msg:  fmt.Sprintf("external function %q is not permitted", name),
				})
				continue
			}
			s.hasPending, s.pendingCallID = true, exit.CallID
			return Progress{Kind: FunctionCall, ExtFunctionName: name, Args: exit.Args, CallID: exit.CallID}, nil
		case vm.PauseProxyCall:
			method := s.Interner.GetStr(exit.Method)
			if !s.capabilities.AllowsProxyMethod(method) {
				exit, err = s.VM.Resume(exit.CallID, value.Undefined, &builtins.ExcSignal{
					Type: errtax.ExcPermissionError,
					Msg:  fmt.Sprintf("proxy method %q is not permitted", method),
				})
				continue
			}
			s.hasPending, s.pendingCallID = true, exit.CallID
			return Progress{Kind: ProxyCall, ProxyID: exit.ProxyID, Method: method, Args: exit.Args, CallID: exit.CallID}, nil
		case vm.PauseOsCall:
			s.hasPending, s.pendingCallID = true, exit.CallID
			return Progress{Kind: FunctionCall, ExtFunctionName: "<os>", Args: exit.Args, CallID: exit.CallID}, nil
		case vm.PauseResolveFutures:
			if len(exit.PendingCallIDs) != 1 {
				return Progress{}, &errtax.HostProtocolError{Msg: "multiple simultaneous pending futures are not supported by this representative scheduler"}
			}
			s.hasPending, s.pendingCallID = true, exit.PendingCallIDs[0]
			return Progress{Kind: ResolveFutures, PendingCallIDs: exit.PendingCallIDs}, nil
		default:
			return Progress{}, &errtax.HostProtocolError{Msg: "unknown pause kind"}
		}
	}
}

// ExternalResultKind discriminates ExternalResult (§6 "Result<Object,
// Exception>" extended with the scheduler's Future case).
type ExternalResultKind uint8

const (
	ExtReturn ExternalResultKind = iota
	ExtError
	ExtFuture
)

// ExternalResult is what a host hands back through Resume/ResumeFutures
// for one call_id.
type ExternalResult struct {
	Kind    ExternalResultKind
	Value   value.Value
	ExcType errtax.ExcType
	ExcMsg  string
}
