// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package table defines the external interfaces the scan pipeline
// consumes and exposes: the reader side it is handed (CursorFactory,
// PageFrameCursor), the reducer capability it invokes per frame, the
// execution context it is given, and the record cursor it hands back to
// a caller. Nothing in this package touches ring buffers or shards;
// those live in bus and frameseq. frameseq imports table; table refers
// to bus only as the type ExecutionContext.Bus returns.
package table

import (
	"math/rand/v2"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/rowid"
)

// SizeUnknown is returned by RecordCursor.Size when the cursor cannot
// report a row count ahead of iteration, which is always true for this
// pipeline: rows surviving a predicate aren't known until reduced.
const SizeUnknown int64 = -1

// Frame is one page-aligned row range of a single partition, exactly as
// produced by the reader: its column base addresses and row bounds.
type Frame struct {
	PartitionLo, PartitionHi uint32
	ColumnAddrs              []uintptr
	RowLo, RowHi             uint32
}

// RowCount returns the number of rows spanned by the frame.
func (f *Frame) RowCount() uint32 {
	return f.RowHi - f.RowLo
}

// Record is a cursor position bound to one row of one frame. Reducers
// and the output RecordCursor both read through it; Frame is a value, not
// a pointer, so rebinding a Record to a new row or frame never allocates.
type Record struct {
	Frame    Frame
	RowIndex uint32
}

// PageFrameCursor is a lazy, restartable sequence of page frames over a
// snapshot of the table.
type PageFrameCursor interface {
	// Next advances to and returns the next frame, or (nil, false) when
	// the cursor is exhausted.
	Next() (*Frame, bool)
	// ToTop rewinds the cursor to its first frame.
	ToTop()
	// Close releases the reader snapshot. Only the owning frame
	// sequence's cleanup stage may call this.
	Close() error
}

// SymbolTable resolves interned dictionary-encoded column values.
type SymbolTable interface {
	Value(key int32) string
}

// Metadata describes the shape of the table a CursorFactory reads.
type Metadata struct {
	ColumnNames []string
}

// CursorFactory produces page-frame cursors over a consistent snapshot
// of the table.
type CursorFactory interface {
	Cursor() (PageFrameCursor, error)
	Metadata() Metadata
	SymbolTableSource() SymbolTableSource
}

// SymbolTableSource resolves a column index to its symbol table.
type SymbolTableSource interface {
	SymbolTable(col int) SymbolTable
}

// RowSink receives surviving row identifiers from a Reducer. A reduce
// task slot implements this directly so a reducer never allocates.
type RowSink interface {
	Append(id rowid.ID)
}

// Reducer is the opaque per-frame computation, typically a row
// predicate, invoked once per dispatched frame. It must be
// side-effect-free beyond sink and whatever it reads from atom; a fatal
// data error must be signaled by returning a non-nil error, which the
// reduce worker turns into fs.Invalidate() rather than propagating.
type Reducer interface {
	Reduce(rec *Record, atom any, sink RowSink) error
}

// ReducerFunc adapts a plain function to Reducer.
type ReducerFunc func(rec *Record, atom any, sink RowSink) error

// Reduce calls f.
func (f ReducerFunc) Reduce(rec *Record, atom any, sink RowSink) error {
	return f(rec, atom, sink)
}

// ExecutionContext is handed to a frame sequence at dispatch time: a
// random source for shard selection, a worker-count hint, and the shared
// message bus. No package in this module reads the worker-count hint;
// each reduce worker and each foreground stealer owns its own scratch
// Record instead.
type ExecutionContext interface {
	Rand() *rand.Rand
	WorkerCount() int
	Bus() *bus.Bus
}

// RecordCursor is the collector's public surface handed back to the
// caller driving the scan.
type RecordCursor interface {
	HasNext() bool
	Record() *Record
	RecordB() *Record
	RecordAt(rec *Record, id rowid.ID)
	ToTop()
	Size() int64
	SymbolTable(col int) SymbolTable
	Close() error
}
