package vm

import "github.com/parcadei/ouros/internal/value"

// PauseKind discriminates FrameExit (§4.6 "Pause reasons").
type PauseKind uint8

const (
	PauseReturn PauseKind = iota
	PauseExternalCall
	PauseProxyCall
	PauseOsCall
	PauseResolveFutures
)

// FrameExit is the VM's Run/Resume return value: either normal
// termination with a value, or one of the three host-call pause reasons,
// or ResolveFutures when the scheduler has nothing runnable (§4.6).
type FrameExit struct {
	Kind PauseKind

	// PauseReturn
	Result value.Value

	// PauseExternalCall
	ExtFunctionID value.ExtFunctionID

	// PauseProxyCall
	ProxyID uint32
	Method  value.StringID

	// PauseExternalCall / PauseProxyCall / PauseOsCall share the same
	// argument/call-id shape.
	Args   value.CallArgs
	CallID value.CallID

	// PauseOsCall
	OsFunc OsFunction

	// PauseResolveFutures
	PendingCallIDs []value.CallID
}

// pendingCall records what a suspended frame was waiting on, so Resume
// can validate the call_id it is given (§4.8 "unknown call_id is a
// HostProtocolError"). Resume does not read frameIx; it pushes the
// answer onto the innermost frame.
type pendingCall struct {
	kind    PauseKind
	frameIx int // index into vm.frames where the pausing CallFunction/OsCall site lives
}
