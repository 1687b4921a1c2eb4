package ouros

import (
	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/nsframe"
	"github.com/parcadei/ouros/internal/vm"
)

// Runner is a single-shot execution unit: one compiled program, run once
// per call against a fresh heap/namespace/interner triple (§6
// "Runner::new/run/run_no_limits/start"). Unlike ReplSession, a Runner
// keeps no state across separate Run/Start calls — each call gets its
// own independent environment, the same way invoking a fresh process
// would, just without actually forking one.
type Runner[T heap.Tracker] struct {
	ScriptName        string
	Code              *vm.Code
	Functions         []vm.Function
	InputNames        []string
	ExternalFunctions []string
}

// NewRunner constructs a Runner over an already-compiled program (§1
// Non-goals: Ouros has no lexer/parser/compiler of its own). code/
// functions come from an external collaborator; inputNames names the
// global slots Run/Start bind inputs into, in order; externalFunctions
// pre-registers every external-function name the program may call so
// ExtFunctionIDs are assigned deterministically before the run starts.
func NewRunner[T heap.Tracker](scriptName string, code *vm.Code, functions []vm.Function, inputNames []string, externalFunctions []string) *Runner[T] {
	return &Runner[T]{
		ScriptName:        scriptName,
		Code:              code,
		Functions:         functions,
		InputNames:        inputNames,
		ExternalFunctions: externalFunctions,
	}
}

func (r *Runner[T]) newEnv(tracker T, print builtins.PrintWriter) (*env[T], error) {
	h := heap.New(tracker)
	ns := nsframe.New(len(r.InputNames))
	in := interner.New()
	in.SetFunctions(r.Functions)
	for _, name := range r.ExternalFunctions {
		in.InternExtFunctionName(name)
	}
	return &env[T]{Heap: h, NS: ns, Interner: in, VM: vm.New(h, ns, in, print)}, nil
}

func (r *Runner[T]) bindInputs(e *env[T], inputs []Object) error {
	if len(inputs) != len(r.InputNames) {
		return &errtax.HostProtocolError{Msg: "input count does not match Runner's declared input_names"}
	}
	global := e.NS.Global()
	for i, o := range inputs {
		// ToValue allocates fresh container entries with refcount 1
		// owned by nobody yet; storing the result directly into the
		// global slot transfers that single ownership, matching how
		// OpBuildList et al. move freshly built values without an
		// extra IncRef.
		v, err := ToValue(e.Heap, e.Interner, o)
		if err != nil {
			return err
		}
		global[i] = v
	}
	return nil
}

// Run executes the program to completion; it is a HostProtocolError for
// the run to pause, since a caller using Run has no pending call to
// answer (§6 "run(inputs, tracker, print) -> Result<Object, Exception>").
// Use Start for a program that may call an external function or proxy.
func (r *Runner[T]) Run(inputs []Object, tracker T, print builtins.PrintWriter) (Object, *errtax.Exception, error) {
	p, err := r.Start(inputs, tracker, print)
	if err != nil {
		return Object{}, nil, err
	}
	if p.Kind != Complete {
		return Object{}, nil, &errtax.HostProtocolError{Msg: "run paused on a host call; use Start instead"}
	}
	return p.Result, p.Err, nil
}

// RunNoLimits runs with an unbounded NoLimitTracker and a discarding
// PrintWriter, for offline/batch callers that don't need resource limits
// or captured stdout (§6 "run_no_limits(inputs) -> Result<Object,
// Exception>"). Only usable when T is heap.NoLimitTracker.
func RunNoLimits(r *Runner[*heap.NoLimitTracker], inputs []Object) (Object, *errtax.Exception, error) {
	return r.Run(inputs, &heap.NoLimitTracker{}, discardPrintWriter{})
}

// Start runs the program, returning Complete or a pause the host must
// answer via the returned RunProgress's Snapshot/Futures (§6 "start(...)
// -> Result<RunProgress<T>, Exception>").
func (r *Runner[T]) Start(inputs []Object, tracker T, print builtins.PrintWriter) (RunProgress[T], error) {
	e, err := r.newEnv(tracker, print)
	if err != nil {
		return RunProgress[T]{}, err
	}
	if err := r.bindInputs(e, inputs); err != nil {
		return RunProgress[T]{}, err
	}
	exit, runErr := e.VM.Run(r.Code)
	return settle(e, exit, runErr)
}
