package ouros

import (
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
)

// ProgressKind discriminates RunProgress (§6 "RunProgress = FunctionCall|
// OsCall|ProxyCall|ResolveFutures|Complete"). OsCall is folded into
// FunctionCall the same way internal/repl does, surfaced under the
// synthetic name "<os>"; neither RunProgress nor Snapshot exposes which
// OsFunction was called.
type ProgressKind uint8

const (
	Complete ProgressKind = iota
	FunctionCall
	ProxyCall
	ResolveFutures
)

// KwArg is one (name, value) pair of a paused call's keyword arguments.
type KwArg struct {
	Name  string
	Value Object
}

// RunProgress is what Runner.Start/Snapshot.Run/FutureSnapshot.Resume
// return instead of forcing every pause straight out to a Go error: a
// run that never pauses looks the same, from the caller's point of view,
// as one that paused any number of times and was carried to completion.
type RunProgress[T heap.Tracker] struct {
	Kind ProgressKind

	// Complete
	Result Object
	Err    *errtax.Exception

	// FunctionCall
	ExtFunctionName string

	// ProxyCall
	ProxyID uint32
	Method  string

	// FunctionCall / ProxyCall
	Args   []Object
	KwArgs []KwArg

	// FunctionCall / ProxyCall: answer via Snapshot.Run.
	Snapshot *Snapshot[T]

	// ResolveFutures: answer via FutureSnapshot.Resume.
	Futures *FutureSnapshot[T]
}
