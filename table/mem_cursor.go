// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package table

import "unsafe"

// MemCursorFactory is an in-memory reference CursorFactory/PageFrameCursor
// implementation, used by tests and cmd/scanexecd to exercise the full
// pipeline without a real storage engine. Columns are plain int64 slices;
// ColumnAddrs are the addresses of their first elements, exactly the
// shape a real columnar reader would hand the pipeline, reinterpreted by
// ReadInt64.
//
// ColumnAddrs are only valid while the MemCursorFactory that produced
// them is reachable: the factory is what keeps the backing arrays alive
// for as long as any in-flight Frame references them.
type MemCursorFactory struct {
	columnNames []string
	pageSize    uint32
	partitions  [][][]int64
	symtabs     map[int]SymbolTable
}

// NewMemCursorFactory creates an empty factory over the named columns,
// paginating each partition's rows into frames of pageSize rows.
func NewMemCursorFactory(columnNames []string, pageSize uint32) *MemCursorFactory {
	if pageSize == 0 {
		pageSize = 1
	}
	return &MemCursorFactory{columnNames: columnNames, pageSize: pageSize}
}

// AddPartition appends one partition's column data. columns must have
// one entry per column name, and every column in the partition must have
// the same length.
func (f *MemCursorFactory) AddPartition(columns [][]int64) {
	f.partitions = append(f.partitions, columns)
}

// SetSymbolTable registers the symbol table for column index col.
func (f *MemCursorFactory) SetSymbolTable(col int, st SymbolTable) {
	if f.symtabs == nil {
		f.symtabs = make(map[int]SymbolTable)
	}
	f.symtabs[col] = st
}

// Cursor opens a fresh page-frame cursor over the current partitions.
func (f *MemCursorFactory) Cursor() (PageFrameCursor, error) {
	return &memCursor{factory: f}, nil
}

// Metadata reports the column names configured at construction.
func (f *MemCursorFactory) Metadata() Metadata {
	return Metadata{ColumnNames: f.columnNames}
}

// SymbolTableSource returns f itself if any symbol tables were
// registered, or nil otherwise.
func (f *MemCursorFactory) SymbolTableSource() SymbolTableSource {
	if len(f.symtabs) == 0 {
		return nil
	}
	return memSymbolSource{f}
}

type memSymbolSource struct{ f *MemCursorFactory }

func (s memSymbolSource) SymbolTable(col int) SymbolTable {
	return s.f.symtabs[col]
}

// memCursor walks a MemCursorFactory's partitions in order, paginating
// each into pageSize-row frames.
type memCursor struct {
	factory   *MemCursorFactory
	partition int
	rowInPart uint32
	frame     Frame
}

// Next returns the next page-aligned frame, or (nil, false) once every
// partition has been fully walked.
func (c *memCursor) Next() (*Frame, bool) {
	for c.partition < len(c.factory.partitions) {
		cols := c.factory.partitions[c.partition]
		rowCount := partitionRowCount(cols)
		if c.rowInPart >= rowCount {
			c.partition++
			c.rowInPart = 0
			continue
		}

		lo := c.rowInPart
		hi := lo + c.factory.pageSize
		if hi > rowCount {
			hi = rowCount
		}
		c.rowInPart = hi

		c.frame.PartitionLo = uint32(c.partition)
		c.frame.PartitionHi = uint32(c.partition)
		c.frame.ColumnAddrs = columnAddrs(cols)
		c.frame.RowLo = lo
		c.frame.RowHi = hi
		return &c.frame, true
	}
	return nil, false
}

// ToTop rewinds the cursor to the first partition.
func (c *memCursor) ToTop() {
	c.partition = 0
	c.rowInPart = 0
}

// Close is a no-op: a MemCursorFactory holds no external resource to
// release, only the backing slices it already owns.
func (c *memCursor) Close() error {
	return nil
}

func partitionRowCount(cols [][]int64) uint32 {
	if len(cols) == 0 {
		return 0
	}
	return uint32(len(cols[0]))
}

func columnAddrs(cols [][]int64) []uintptr {
	addrs := make([]uintptr, len(cols))
	for i, c := range cols {
		if len(c) == 0 {
			continue
		}
		addrs[i] = uintptr(unsafe.Pointer(&c[0]))
	}
	return addrs
}

// ReadInt64 reinterprets addr as the base of an int64 column and reads
// the value at row. Used by reducers working against MemCursorFactory
// data, mirroring how a reducer over a real columnar store would
// reinterpret a Frame's ColumnAddrs for its known column types.
func ReadInt64(addr uintptr, row uint32) int64 {
	if addr == 0 {
		return 0
	}
	return *(*int64)(unsafe.Pointer(addr + uintptr(row)*unsafe.Sizeof(int64(0))))
}
