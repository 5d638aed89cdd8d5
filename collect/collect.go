// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package collect implements the collect cursor: the foreground consumer
// that drains completed reduce tasks belonging to one specific frame
// sequence off a shard it shares with other, concurrently running
// queries, filters by identity, yields surviving rows to the caller,
// honors LIMIT, and triggers cleanup as each frame is fully consumed.
package collect

import (
	"math"

	"code.hybscloud.com/spin"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/cleanup"
	"github.com/vectorframe/scanexec/frameseq"
	"github.com/vectorframe/scanexec/pagecache"
	"github.com/vectorframe/scanexec/reduceworker"
	"github.com/vectorframe/scanexec/ring"
	"github.com/vectorframe/scanexec/rowid"
	"github.com/vectorframe/scanexec/table"
)

// NoLimit means the cursor yields every surviving row; pass it (or any
// value <= 0) to NewCursor for an unbounded scan.
const NoLimit int64 = 0

// OnWorkSteal, if set, is called once per foreground work-stealing
// iteration this package performs while busy-helping dispatch, reduce,
// or cleanup make progress. It exists purely so an embedder (scanengine
// sets it to its own Metrics.AddWorkSteal) can observe foreground steal
// pressure without this package importing scanengine, the same
// package-level hook shape as telemetry.Errorf.
var OnWorkSteal func()

func stole() {
	if OnWorkSteal != nil {
		OnWorkSteal()
	}
}

// Cursor is a row-by-row iterator over the surviving rows of one frame
// sequence, implementing table.RecordCursor. It is not safe for
// concurrent use: it is the foreground object driving one SQL scan.
type Cursor struct {
	fs  *frameseq.FrameSequence
	sub *ring.SCSubscriber

	limit         int64
	rowsRemaining int64

	heldCursor  int64 // -1 when no reduce task slot is held
	heldTask    *bus.ReduceTask
	entry       pagecache.Entry
	frameIndex  int
	framesSeen  int // count of fs's own frames this cursor has disposed of, owned or discarded
	rowInFrame  int
	rowCount    int

	rec, recB table.Record
	stealRec  table.Record
}

// NewCursor creates a collect cursor over fs, which must already have
// been dispatched (fs.Dispatch must have succeeded). limit bounds the
// number of rows the cursor will yield before fast-draining the rest of
// the pipeline; pass NoLimit for an unbounded scan.
func NewCursor(fs *frameseq.FrameSequence, limit int64) *Cursor {
	rem := limit
	if rem <= 0 {
		rem = math.MaxInt64
	}
	return &Cursor{
		fs:            fs,
		sub:           fs.CollectSub(),
		limit:         limit,
		rowsRemaining: rem,
		heldCursor:    -1,
		frameIndex:    -1,
	}
}

// HasNext advances the cursor to the next surviving row, binding it so
// Record/RecordB describe it, and reports whether one was found.
func (c *Cursor) HasNext() bool {
	if c.rowInFrame < c.rowCount {
		id := c.heldTask.Rows[c.rowInFrame]
		c.rowInFrame++
		c.rowsRemaining--
		if c.rowsRemaining < 0 {
			c.fs.Invalidate()
			return false
		}
		c.bindRecord(id)
		return true
	}

	c.release()
	if c.fetchNextFrame(false) {
		return c.HasNext()
	}
	return false
}

// fetchNextFrame walks the shard's reduce-completion stream looking for
// the next frame owned by fs, skipping tasks owned by other queries
// sharing the shard and busy-helping dispatch and reduce while nothing is
// yet available. Every task found to belong to fs counts toward
// framesSeen and gets exactly one cleanup task published for it, whether
// its rows are kept or discarded here; that is the only way the
// per-frame cleanup count (frameseq.AdvanceCleanup) ever reaches
// frameCount, so a frame is never dropped without telling cleanup about
// it. If discardAll is true even an otherwise-keepable frame (valid,
// rows > 0) is discarded immediately without being held for the caller,
// used by Close's fast-drain of whatever the caller never got around to
// consuming. Returns false once every one of fs's frames has been seen.
func (c *Cursor) fetchNextFrame(discardAll bool) bool {
	sw := spin.Wait{}
	for c.framesSeen < c.fs.FrameCount() {
		cur := c.sub.Next()
		if ring.IsWouldBlock(cur) {
			c.fs.DispatchStep()
			reduceworker.ConsumeOne(c.fs.Shard(), &c.stealRec)
			stole()
			sw.Once()
			continue
		}

		task := c.fs.Shard().ReduceQueue.At(cur)
		if task.FrameSeq != c.fs {
			c.sub.Done(cur)
			continue
		}
		c.framesSeen++

		if discardAll || !c.fs.Valid() || len(task.Rows) == 0 {
			task.Collected.StoreRelease(true)
			c.sub.Done(cur)
			c.publishCleanup()
			continue
		}

		c.heldCursor = cur
		c.heldTask = task
		c.rowCount = len(task.Rows)
		c.rowInFrame = 0
		c.frameIndex = task.FrameIndex
		c.entry = c.fs.PageAddressCache().Get(c.frameIndex)
		return true
	}
	return false
}

// release hands a fully-consumed reduce task slot back: marks it
// collected, advances the subscriber past it, and queues one cleanup
// task for fs. Clearing heldCursor is mandatory to avoid a double
// release.
func (c *Cursor) release() {
	if c.heldCursor < 0 {
		return
	}
	c.heldTask.Collected.StoreRelease(true)
	c.sub.Done(c.heldCursor)
	c.heldCursor = -1
	c.heldTask = nil
	c.rowCount = 0
	c.rowInFrame = 0
	c.publishCleanup()
}

// publishCleanup enqueues one cleanup task referencing fs, busy-helping
// the shard's own cleanup stage while its cleanup queue is full.
func (c *Cursor) publishCleanup() {
	shard := c.fs.Shard()
	sw := spin.Wait{}
	for {
		cur := shard.CleanupPub.Next()
		if !ring.IsWouldBlock(cur) {
			*shard.CleanupQueue.At(cur) = bus.CleanupTask{FrameSeq: c.fs}
			shard.CleanupPub.Done(cur)
			return
		}
		cleanup.ConsumeOne(shard)
		stole()
		sw.Once()
	}
}

// bindRecord points rec at the row id within the currently held frame.
func (c *Cursor) bindRecord(id rowid.ID) {
	c.rec.Frame = table.Frame{
		PartitionLo: c.entry.Partition,
		PartitionHi: c.entry.Partition,
		ColumnAddrs: c.entry.ColumnAddrs,
		RowLo:       c.entry.RowLo,
		RowHi:       c.entry.RowHi,
	}
	c.rec.RowIndex = id.Local()
}

// Record returns the record bound by the most recent HasNext.
func (c *Cursor) Record() *table.Record {
	return &c.rec
}

// RecordB returns a second scratch record a caller may populate
// independently (via RecordAt) without disturbing Record's binding, e.g.
// to hold a comparison row while iterating.
func (c *Cursor) RecordB() *table.Record {
	return &c.recB
}

// RecordAt binds rec to an arbitrary row id previously observed from
// this cursor, reconstructing its frame addressing from the page address
// cache by the id's encoded partition and row bounds. id must belong to
// a frame this query has already dispatched.
func (c *Cursor) RecordAt(rec *table.Record, id rowid.ID) {
	cache := c.fs.PageAddressCache()
	partition := id.Partition()
	local := id.Local()
	for i := 0; i < cache.Len(); i++ {
		e := cache.Get(i)
		if e.Partition != partition {
			continue
		}
		if local < e.RowLo || local >= e.RowHi {
			continue
		}
		rec.Frame = table.Frame{
			PartitionLo: e.Partition,
			PartitionHi: e.Partition,
			ColumnAddrs: e.ColumnAddrs,
			RowLo:       e.RowLo,
			RowHi:       e.RowHi,
		}
		rec.RowIndex = local
		return
	}
}

// Size always reports table.SizeUnknown: rows surviving a predicate
// aren't known until reduced.
func (c *Cursor) Size() int64 {
	return table.SizeUnknown
}

// SymbolTable delegates to the reader's symbol table source.
func (c *Cursor) SymbolTable(col int) table.SymbolTable {
	src := c.fs.SymbolTableSource()
	if src == nil {
		return nil
	}
	return src.SymbolTable(col)
}

// ToTop rewinds the cursor to the first frame, re-dispatching fs if the
// cursor had already made progress.
func (c *Cursor) ToTop() {
	if c.frameIndex == -1 && c.rowInFrame == 0 && c.heldCursor < 0 {
		return
	}
	c.release()
	_ = c.fs.ToTop()

	rem := c.limit
	if rem <= 0 {
		rem = math.MaxInt64
	}
	c.rowsRemaining = rem
	c.frameIndex = -1
	c.framesSeen = 0
	c.rowCount = 0
	c.rowInFrame = 0
	c.sub = c.fs.CollectSub()
}

// Close releases any held slot, fast-drains any frames the caller never
// got around to consuming (discarding their rows but still publishing
// their cleanup tasks, so a LIMIT-exhausted or otherwise abandoned scan
// still reaches frameCount cleanup acknowledgments), busy-helps the frame
// sequence to quiescence, then clears it for pooled reuse.
func (c *Cursor) Close() error {
	c.release()
	c.fetchNextFrame(true)
	c.fs.Await()
	c.fs.Clear()
	return nil
}
