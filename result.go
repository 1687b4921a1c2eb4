package ouros

import "github.com/parcadei/ouros/internal/errtax"

// ExternalResultKind discriminates ExternalResult (§6 "ExternalResult =
// Return(Object) | Error(Exception) | Future").
type ExternalResultKind uint8

const (
	ExtReturn ExternalResultKind = iota
	ExtError
	ExtFuture
)

// ExternalResult is what a host hands back through Snapshot.Run/
// FutureSnapshot.Resume for one paused call. Only Return and Error are
// accepted; both Snapshot.Run and FutureSnapshot.Resume reject a Future
// result with a HostProtocolError.
type ExternalResult struct {
	Kind    ExternalResultKind
	Value   Object
	ExcType errtax.ExcType
	ExcMsg  string
}

// Return builds a synchronous successful ExternalResult.
func Return(v Object) ExternalResult { return ExternalResult{Kind: ExtReturn, Value: v} }

// RaisedError builds an ExternalResult that injects a Python exception at
// the call site instead of a return value.
func RaisedError(excType errtax.ExcType, msg string) ExternalResult {
	return ExternalResult{Kind: ExtError, ExcType: excType, ExcMsg: msg}
}

// Future builds the ExtFuture result. Snapshot.Run and
// FutureSnapshot.Resume reject it with a HostProtocolError; a call
// cannot be deferred through them.
func Future() ExternalResult { return ExternalResult{Kind: ExtFuture} }
