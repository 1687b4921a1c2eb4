package vm

import "github.com/parcadei/ouros/internal/value"

// Frame holds one activation's execution state: its code, instruction
// pointer and operand stack region (§4.6). A frame holds no link to its
// caller; frames are ordered by their position on vm.frames, which
// captureTraceback walks.
type Frame struct {
	Code        *Code
	IP          int
	Operands    []value.Value // long-lived buffer, truncated not reallocated between pushes
	NSDepth     int           // index into Namespaces for this frame's locals (0 = global)
	FunctionID  value.FunctionID
	IsGenerator bool
	// activeHandlers indexes Code.ExcRanges currently "entered" (the IP
	// has passed Start but not End), innermost last, so raise can walk
	// back-to-front for the nearest enclosing handler.
	activeHandlers []int

	// HasInstantiateResult marks a frame pushed to run a `__init__` call
	// (§3 "constructing an instance calls __init__ for effect, not for its
	// return value"): when set, doReturn discards whatever this frame
	// returns and substitutes InstantiateResult instead.
	HasInstantiateResult bool
	InstantiateResult    value.HeapID

	// IsGeneratorRoot marks a frame pushed by GeneratorNext/awaitValue to
	// resume a suspended generator/coroutine body: its return must always
	// be reported to the caller that resumed it, never pushed onto
	// whatever frame happens to sit beneath it on vm.frames (§9).
	IsGeneratorRoot bool
}

func newFrame(code *Code, nsDepth int, fnID value.FunctionID) *Frame {
	return &Frame{Code: code, Operands: make([]value.Value, 0, 8), NSDepth: nsDepth, FunctionID: fnID}
}

func (f *Frame) push(v value.Value) { f.Operands = append(f.Operands, v) }

func (f *Frame) pop() value.Value {
	n := len(f.Operands)
	v := f.Operands[n-1]
	f.Operands = f.Operands[:n-1]
	return v
}

func (f *Frame) top() value.Value { return f.Operands[len(f.Operands)-1] }

// reset clears a frame for reuse from a pool (fast-path across REPL
// executions, §4.6 "kept as long-lived buffers").
func (f *Frame) reset(code *Code, nsDepth int, fnID value.FunctionID) {
	f.Code = code
	f.IP = 0
	f.Operands = f.Operands[:0]
	f.NSDepth = nsDepth
	f.FunctionID = fnID
	f.IsGenerator = false
	f.activeHandlers = f.activeHandlers[:0]
	f.HasInstantiateResult = false
	f.InstantiateResult = 0
	f.IsGeneratorRoot = false
}
