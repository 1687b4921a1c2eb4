package repl

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"math/big"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"

	"github.com/parcadei/ouros/internal/builtins"
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/interner"
	"github.com/parcadei/ouros/internal/nsframe"
	"github.com/parcadei/ouros/internal/value"
	"github.com/parcadei/ouros/internal/vm"
)

// saveFormatVersion is the semver tag prefixing every save() stream
// (§4.9 "save() prefixes the serialized stream with a semver-checked
// format-version tag"). Bump the minor version for backward-compatible
// additions; load() rejects anything it cannot parse or whose major
// component it does not recognize.
const saveFormatVersion = "v1.0.0"

func init() {
	for _, d := range []heap.HeapData{
		&heap.Str{}, &heap.Bytes{}, &heap.Bytearray{}, &heap.LongInt{}, &heap.Fraction{}, &heap.Decimal{},
		&heap.List{}, &heap.Tuple{}, &heap.NamedTuple{},
		&heap.Dict{}, &heap.OrderedDict{}, &heap.DefaultDict{}, &heap.Counter{}, &heap.ChainMap{},
		&heap.Set{}, &heap.FrozenSet{},
		heap.Range{}, &heap.Slice{}, &heap.Path{},
		&heap.ClassObject{}, &heap.Instance{}, &heap.BoundMethod{}, &heap.StaticMethod{}, &heap.ClassMethod{},
		&heap.UserProperty{}, &heap.ItemGetter{}, &heap.AttrGetter{}, &heap.MethodCaller{},
		&heap.Module{}, &heap.StdlibObject{},
		&heap.Iterator{}, &heap.Generator{}, &heap.Coroutine{}, &heap.AsyncGenerator{},
		&heap.WeakRef{}, heap.Placeholder{},
	} {
		gob.Register(d)
	}
}

// wireSession is the gob shape save()/load() round-trip. Only persistent
// state crosses this boundary (§4.9): no frame stack, no vm.pending
// table, no scheduler task/future state. A session with a call pending
// cannot be saved (see Save).
type wireSession struct {
	SessionID   uuid.UUID
	ScriptName  string
	ResumeCount int

	Entries      []heap.HeapEntry
	FreeList     []value.HeapID
	NextClassUID uint64
	CyclePending bool
	BuiltinClass map[heap.BuiltinType]value.HeapID

	Activations [][]value.Value

	Strings   []string
	ByteLits  [][]byte
	BigInts   []*big.Int
	Functions []interner.Function
	ExtNames  []string

	GlobalSlot   map[string]int
	SessionExtFn map[string]bool
	Capabilities *CapabilitySet

	ExcClasses map[errtax.ExcType]value.HeapID
}

// Save serializes every persistent field of the session into a
// zstd-compressed, blake2b-checksummed, semver-tagged byte stream (§4.9,
// C8). It fails if a call is currently pending: a session is only
// saveable at a quiescent point between top-level Execute calls.
func (s *ReplSession[T]) Save() ([]byte, error) {
	if s.hasPending {
		return nil, &errtax.HostProtocolError{Msg: "cannot save a session with a call pending"}
	}
	entries, freeList, nextClassUID, cyclePending, builtinClass := s.Heap.ExportState()
	strings, byteLits, bigints, functions, extNames := s.Interner.ExportState()

	w := wireSession{
		SessionID:    s.SessionID,
		ScriptName:   s.ScriptName,
		ResumeCount:  s.ResumeCount,
		Entries:      entries,
		FreeList:     freeList,
		NextClassUID: nextClassUID,
		CyclePending: cyclePending,
		BuiltinClass: builtinClass,
		Activations:  s.NS.ExportActivations(),
		Strings:      strings,
		ByteLits:     byteLits,
		BigInts:      bigints,
		Functions:    functions,
		ExtNames:     extNames,
		GlobalSlot:   s.globalSlot,
		SessionExtFn: s.extNames,
		Capabilities: s.capabilities,
		ExcClasses:   s.VM.ExcClasses(),
	}

	var gobBuf bytes.Buffer
	if err := gob.NewEncoder(&gobBuf).Encode(&w); err != nil {
		return nil, fmt.Errorf("repl: encode session: %w", err)
	}

	var zBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zBuf)
	if err != nil {
		return nil, fmt.Errorf("repl: zstd writer: %w", err)
	}
	if _, err := zw.Write(gobBuf.Bytes()); err != nil {
		zw.Close()
		return nil, fmt.Errorf("repl: zstd write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("repl: zstd close: %w", err)
	}

	sum := blake2b.Sum256(zBuf.Bytes())

	out := make([]byte, 0, len(saveFormatVersion)+1+len(sum)+zBuf.Len())
	out = append(out, []byte(saveFormatVersion)...)
	out = append(out, '\n')
	out = append(out, sum[:]...)
	out = append(out, zBuf.Bytes()...)
	return out, nil
}

// Load reconstructs a ReplSession from a Save() stream: it validates the
// format-version tag, the blake2b checksum, then decompresses and
// gob-decodes. stdout is supplied fresh by the host the way New's is,
// since a PrintWriter is not itself serializable state.
func Load[T heap.Tracker](data []byte, tracker T, stdout builtins.PrintWriter) (*ReplSession[T], error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, &errtax.HostProtocolError{Msg: "load: malformed save stream (no version tag)"}
	}
	version, rest := string(data[:nl]), data[nl+1:]
	if !semver.IsValid(version) {
		return nil, &errtax.HostProtocolError{Msg: "load: invalid format-version tag " + version}
	}
	if semver.Major(version) != semver.Major(saveFormatVersion) {
		return nil, &errtax.HostProtocolError{Msg: fmt.Sprintf("load: incompatible save format %s (runner is %s)", version, saveFormatVersion)}
	}
	if len(rest) < blake2b.Size256 {
		return nil, &errtax.HostProtocolError{Msg: "load: truncated save stream (no checksum)"}
	}
	wantSum, body := rest[:blake2b.Size256], rest[blake2b.Size256:]
	gotSum := blake2b.Sum256(body)
	if !bytes.Equal(wantSum, gotSum[:]) {
		return nil, &errtax.HostProtocolError{Msg: "load: checksum mismatch (corrupted or truncated save)"}
	}

	zr, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("repl: zstd reader: %w", err)
	}
	defer zr.Close()
	gobBytes, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("repl: zstd read: %w", err)
	}

	var w wireSession
	if err := gob.NewDecoder(bytes.NewReader(gobBytes)).Decode(&w); err != nil {
		return nil, fmt.Errorf("repl: decode session: %w", err)
	}

	h := heap.ImportState(tracker, w.Entries, w.FreeList, w.NextClassUID, w.CyclePending, w.BuiltinClass)
	ns := nsframe.ImportActivations(w.Activations)
	in := interner.ImportState(w.Strings, w.ByteLits, w.BigInts, w.Functions, w.ExtNames)
	rebuildContainerIndices(h, in)

	s := &ReplSession[T]{
		SessionID:   w.SessionID,
		ScriptName:  w.ScriptName,
		ResumeCount: w.ResumeCount,
		Interner:    in,
		Heap:        h,
		NS:          ns,
		globalSlot:  w.GlobalSlot,
		extNames:    w.SessionExtFn,
	}
	s.VM = vm.Restore(h, ns, in, stdout, w.ExcClasses)
	s.capabilities = w.Capabilities
	return s, nil
}

// rebuildContainerIndices recomputes the hash-bucket index on every
// Dict/Set-family entry after a gob round trip, since those indexes are
// unexported caches gob never carries (§4.9 save/load).
func rebuildContainerIndices[T heap.Tracker](h *heap.Heap[T], in *interner.Interner) {
	entries := h.Entries()
	for i := range entries {
		if entries[i].Free() {
			continue
		}
		switch d := entries[i].Data.(type) {
		case *heap.Dict:
			d.RebuildIndex()
		case *heap.OrderedDict:
			d.RebuildIndex()
		case *heap.DefaultDict:
			d.RebuildIndex()
		case *heap.Counter:
			d.RebuildIndex()
		case *heap.Set:
			d.RebuildIndex(func(v value.Value) uint64 { return vm.HashValue(h, in, v) })
		case *heap.FrozenSet:
			d.RebuildIndex(func(v value.Value) uint64 { return vm.HashValue(h, in, v) })
		}
	}
}
