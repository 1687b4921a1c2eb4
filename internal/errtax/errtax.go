// Package errtax implements the error taxonomy of §7: the closed set of
// Python runtime exception kinds, traceback frames, and the Go error
// types used to report parse/prepare/compile/host-protocol failures that
// never reach Python's try/except.
package errtax

import (
	"fmt"

	"github.com/parcadei/ouros/internal/value"
)

// ExcType enumerates the builtin exception hierarchy (§7 "Runtime
// exceptions — a closed set mirroring Python's builtin hierarchy").
// Values are stable across a process because Builtins/ExcType dispatch
// switches on this enum directly (§4.5).
type ExcType int

const (
	ExcException ExcType = iota
	ExcBaseException
	ExcStopIteration
	ExcStopAsyncIteration
	ExcArithmeticError
	ExcZeroDivisionError
	ExcOverflowError
	ExcAssertionError
	ExcAttributeError
	ExcBufferError
	ExcEOFError
	ExcImportError
	ExcModuleNotFoundError
	ExcLookupError
	ExcIndexError
	ExcKeyError
	ExcMemoryError
	ExcNameError
	ExcUnboundLocalError
	ExcNotImplementedError
	ExcRecursionError
	ExcReferenceError
	ExcRuntimeError
	ExcSyntaxError
	ExcIndentationError
	ExcSystemError
	ExcTypeError
	ExcValueError
	ExcUnicodeError
	ExcUnicodeDecodeError
	ExcUnicodeEncodeError
	ExcPermissionError
	ExcTimeoutError
	ExcOSError
	ExcIOError // alias of OSError
	ExcFileNotFoundError
	ExcFileExistsError
	ExcInterruptedError
	ExcConnectionError
	ExcConnectionResetError
	ExcConnectionAbortedError
	ExcConnectionRefusedError
	ExcBrokenPipeError
	ExcIsADirectoryError
	ExcNotADirectoryError
	ExcProcessLookupError
	ExcChildProcessError
	ExcGeneratorExit
	ExcKeyboardInterrupt
	ExcSystemExit
	ExcWarning // catch-all target for every *Warning subclass (§7)
	excTypeCount
)

var excNames = [excTypeCount]string{
	ExcException: "Exception", ExcBaseException: "BaseException",
	ExcStopIteration: "StopIteration", ExcStopAsyncIteration: "StopAsyncIteration",
	ExcArithmeticError: "ArithmeticError", ExcZeroDivisionError: "ZeroDivisionError",
	ExcOverflowError: "OverflowError", ExcAssertionError: "AssertionError",
	ExcAttributeError: "AttributeError", ExcBufferError: "BufferError",
	ExcEOFError: "EOFError", ExcImportError: "ImportError",
	ExcModuleNotFoundError: "ModuleNotFoundError", ExcLookupError: "LookupError",
	ExcIndexError: "IndexError", ExcKeyError: "KeyError", ExcMemoryError: "MemoryError",
	ExcNameError: "NameError", ExcUnboundLocalError: "UnboundLocalError",
	ExcNotImplementedError: "NotImplementedError", ExcRecursionError: "RecursionError",
	ExcReferenceError: "ReferenceError", ExcRuntimeError: "RuntimeError",
	ExcSyntaxError: "SyntaxError", ExcIndentationError: "IndentationError",
	ExcSystemError: "SystemError", ExcTypeError: "TypeError", ExcValueError: "ValueError",
	ExcUnicodeError: "UnicodeError", ExcUnicodeDecodeError: "UnicodeDecodeError",
	ExcUnicodeEncodeError: "UnicodeEncodeError", ExcPermissionError: "PermissionError",
	ExcTimeoutError: "TimeoutError", ExcOSError: "OSError", ExcIOError: "IOError",
	ExcFileNotFoundError: "FileNotFoundError", ExcFileExistsError: "FileExistsError",
	ExcInterruptedError: "InterruptedError", ExcConnectionError: "ConnectionError",
	ExcConnectionResetError: "ConnectionResetError", ExcConnectionAbortedError: "ConnectionAbortedError",
	ExcConnectionRefusedError: "ConnectionRefusedError", ExcBrokenPipeError: "BrokenPipeError",
	ExcIsADirectoryError: "IsADirectoryError", ExcNotADirectoryError: "NotADirectoryError",
	ExcProcessLookupError: "ProcessLookupError", ExcChildProcessError: "ChildProcessError",
	ExcGeneratorExit: "GeneratorExit", ExcKeyboardInterrupt: "KeyboardInterrupt",
	ExcSystemExit: "SystemExit", ExcWarning: "Warning",
}

func (e ExcType) String() string {
	if e < 0 || e >= excTypeCount {
		return "Exception"
	}
	return excNames[e]
}

// bases gives each ExcType's direct parent in the builtin hierarchy, for
// isinstance/MRO construction of the pre-materialized exception classes.
// BaseException has no parent (reported as itself, the walk stops there).
var bases = map[ExcType]ExcType{
	ExcException:              ExcBaseException,
	ExcStopIteration:          ExcException,
	ExcStopAsyncIteration:     ExcException,
	ExcArithmeticError:        ExcException,
	ExcZeroDivisionError:      ExcArithmeticError,
	ExcOverflowError:          ExcArithmeticError,
	ExcAssertionError:         ExcException,
	ExcAttributeError:         ExcException,
	ExcBufferError:            ExcException,
	ExcEOFError:               ExcException,
	ExcImportError:            ExcException,
	ExcModuleNotFoundError:    ExcImportError,
	ExcLookupError:            ExcException,
	ExcIndexError:             ExcLookupError,
	ExcKeyError:               ExcLookupError,
	ExcMemoryError:            ExcException,
	ExcNameError:              ExcException,
	ExcUnboundLocalError:      ExcNameError,
	ExcRuntimeError:           ExcException,
	ExcNotImplementedError:    ExcRuntimeError,
	ExcRecursionError:         ExcRuntimeError,
	ExcReferenceError:         ExcException,
	ExcSyntaxError:            ExcException,
	ExcIndentationError:       ExcSyntaxError,
	ExcSystemError:            ExcException,
	ExcTypeError:              ExcException,
	ExcValueError:             ExcException,
	ExcUnicodeError:           ExcValueError,
	ExcUnicodeDecodeError:     ExcUnicodeError,
	ExcUnicodeEncodeError:     ExcUnicodeError,
	ExcOSError:                ExcException,
	ExcIOError:                ExcOSError,
	ExcPermissionError:        ExcOSError,
	ExcTimeoutError:           ExcOSError,
	ExcFileNotFoundError:      ExcOSError,
	ExcFileExistsError:        ExcOSError,
	ExcInterruptedError:       ExcOSError,
	ExcConnectionError:        ExcOSError,
	ExcConnectionResetError:   ExcConnectionError,
	ExcConnectionAbortedError: ExcConnectionError,
	ExcConnectionRefusedError: ExcConnectionError,
	ExcBrokenPipeError:        ExcConnectionError,
	ExcIsADirectoryError:      ExcOSError,
	ExcNotADirectoryError:     ExcOSError,
	ExcProcessLookupError:     ExcOSError,
	ExcChildProcessError:      ExcOSError,
	ExcGeneratorExit:          ExcBaseException,
	ExcKeyboardInterrupt:      ExcBaseException,
	ExcSystemExit:             ExcBaseException,
	ExcWarning:                ExcException,
}

// MRO returns the C3-linearized (trivial here: a straight chain, since
// the builtin hierarchy is single-inheritance) method resolution order
// for a builtin exception type, ending in BaseException.
func MRO(t ExcType) []ExcType {
	mro := []ExcType{t}
	cur := t
	for {
		parent, ok := bases[cur]
		if !ok {
			break
		}
		mro = append(mro, parent)
		cur = parent
	}
	return mro
}

// IsSubtype reports whether t is t itself or a descendant of base,
// walking the MRO chain (used by isinstance/except matching).
func IsSubtype(t, base ExcType) bool {
	cur := t
	for {
		if cur == base {
			return true
		}
		parent, ok := bases[cur]
		if !ok {
			return false
		}
		cur = parent
	}
}

// TracebackFrame is one entry of the traceback assembled from the
// line/column table recorded on each VM frame (§7).
type TracebackFrame struct {
	FunctionName string
	Line, Column int
}

// Exception is the host-facing view of a raised Python exception (§6,
// §7): it retains .args, a type name matching Python's spelling, and a
// traceback. Internally, exceptions are ordinary Instance heap values
// (§4.6); Exception is the flattened, host-safe projection of one taken
// at the point it crosses the frame-exit boundary.
type Exception struct {
	TypeName  string
	Args      []value.Value
	Traceback []TracebackFrame
	// Instance is the originating heap Instance, valid only while the
	// owning heap/session is still alive; hosts should not retain it
	// past the call that produced this Exception.
	Instance value.HeapID
}

func (e *Exception) Error() string {
	if len(e.Traceback) == 0 {
		return fmt.Sprintf("%s: %v", e.TypeName, e.Args)
	}
	top := e.Traceback[len(e.Traceback)-1]
	return fmt.Sprintf("%s: %v (line %d)", e.TypeName, e.Args, top.Line)
}

// RunError wraps an Exception so it satisfies error and can flow through
// normal Go error-handling (errors.As) at the Runner/Snapshot boundary
// (§6 "Result<Object, Exception>").
type RunError struct{ Exc *Exception }

func (e *RunError) Error() string { return e.Exc.Error() }
func (e *RunError) Unwrap() error { return nil }

// HostProtocolError covers the host-protocol-only failures of §7: unknown
// call_id, executing while a call is pending, mutating a global while a
// call is pending. These never reach Python; they surface as a Go error
// (RuntimeError to the host, not to Python, per §7).
type HostProtocolError struct{ Msg string }

func (e *HostProtocolError) Error() string { return "RuntimeError: " + e.Msg }

// InvalidInputError is raised when a host supplies or requests an Object
// form that cannot be converted to/from Value (§6, e.g. an output-only
// Repr form).
type InvalidInputError struct{ Msg string }

func (e *InvalidInputError) Error() string { return "InvalidInputError: " + e.Msg }

// ParseError/PrepareError/CompileError front the external
// lexer/parser/AST-prep/compiler stages (§1, §7): the core never
// constructs these itself, only propagates whatever the collaborator
// returned, tagged with script name/line/column. They are never caught
// by Python try/except (§7).
type ParseError struct {
	ScriptName    string
	Line, Column  int
	Msg           string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.ScriptName, e.Line, e.Column, e.Msg)
}

type PrepareError struct {
	ScriptName   string
	Line, Column int
	Msg          string
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.ScriptName, e.Line, e.Column, e.Msg)
}

type CompileError struct {
	ScriptName   string
	Line, Column int
	Msg          string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.ScriptName, e.Line, e.Column, e.Msg)
}
