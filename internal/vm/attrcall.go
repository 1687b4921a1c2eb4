package vm

import "github.com/parcadei/ouros/internal/value"

// AttrCallResultKind discriminates AttrCallResult (§4.6, GLOSSARY).
type AttrCallResultKind uint8

const (
	ACRValue AttrCallResultKind = iota
	ACRCallFunction
	ACROsCall
	ACRPropertyCall
	ACRDescriptorGet
)

// OsFunction enumerates the host-level effect families reachable through
// the OsCall pause reason (§4.6, §4.8). The concrete member set is a
// host/runtime concern; the core only needs a stable tag to thread
// through the pause/resume round trip.
type OsFunction int

// The representative OS-effect families a sandboxed script can request
// (§1 "no native I/O except through the pause boundary"); a host that
// needs more defines further ExtFunctions through C8 instead of growing
// this enum.
const (
	OsTimeNow OsFunction = iota
	OsRandomBytes
	OsEnvGet
	OsFileRead
	OsFileWrite
)

// ArgValues is the VM-side name for value.CallArgs: a plain argument
// vector, with kwargs as parallel name/value slices where a call site
// needs them. Aliased (not redefined) so internal/builtins can accept
// the exact same shape without importing internal/vm.
type ArgValues = value.CallArgs

// AttrCallResult is the return type for any attribute access or
// descriptor invocation (§4.6): it tells the VM whether the answer is an
// immediate Value, whether finishing requires pushing a sub-call onto the
// VM (CallFunction), whether the VM must yield to the host (OsCall), or
// whether a descriptor protocol step (property/__get__) needs to run.
type AttrCallResult struct {
	Kind AttrCallResultKind

	Value value.Value // ACRValue

	Callable value.Value // ACRCallFunction / ACRDescriptorGet target
	Args     ArgValues   // ACRCallFunction

	OsFunc   OsFunction // ACROsCall
	OsArgs   ArgValues  // ACROsCall

	// IsProxy distinguishes a call against a host-side proxy object
	// (ProxyCall, §4.8) from a plain OS-level effect (OsCall): both
	// suspend the VM the same way, differing only in which FrameExit
	// variant and which identifying fields the host sees.
	IsProxy  bool
	ProxyID  uint32
	Method   value.StringID

	// PropertyCall / DescriptorGet: the descriptor instance and the
	// attribute owner, so the VM can invoke __get__/__set__ uniformly.
	Descriptor value.Value
	Owner      value.Value
}

func ValueResult(v value.Value) AttrCallResult {
	return AttrCallResult{Kind: ACRValue, Value: v}
}

func CallFunctionResult(callable value.Value, args ArgValues) AttrCallResult {
	return AttrCallResult{Kind: ACRCallFunction, Callable: callable, Args: args}
}

func OsCallResult(fn OsFunction, args ArgValues) AttrCallResult {
	return AttrCallResult{Kind: ACROsCall, OsFunc: fn, OsArgs: args}
}

func DescriptorGetResult(descriptor, owner value.Value) AttrCallResult {
	return AttrCallResult{Kind: ACRDescriptorGet, Descriptor: descriptor, Owner: owner}
}

func ProxyCallResult(proxyID uint32, method value.StringID, args ArgValues) AttrCallResult {
	return AttrCallResult{Kind: ACROsCall, IsProxy: true, ProxyID: proxyID, Method: method, OsArgs: args}
}
