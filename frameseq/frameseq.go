// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package frameseq implements the per-query frame sequence state object
// and its rentable dispatch step: the object a caller configures and
// drives through dispatch, await, and collection, shared across the
// reduce and collect stages purely by identity.
package frameseq

import (
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
	"github.com/google/uuid"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/cleanup"
	"github.com/vectorframe/scanexec/pagecache"
	"github.com/vectorframe/scanexec/reduceworker"
	"github.com/vectorframe/scanexec/ring"
	"github.com/vectorframe/scanexec/table"
)

// ErrNoReader is returned by ToTop when called before a successful
// Dispatch has opened a page-frame cursor.
var ErrNoReader = errors.New("frameseq: no open reader")

// OnWorkSteal, if set, is called once per foreground work-stealing
// iteration Await or a blocked dispatch publish performs. See
// collect.OnWorkSteal for why this is a package-level hook rather than a
// dependency on scanengine.
var OnWorkSteal func()

func stole() {
	if OnWorkSteal != nil {
		OnWorkSteal()
	}
}

// FrameSequence is the per-query state object: identity, shard, frame
// count, validity, reduce counter, dispatch resume index, and the
// reader/cache/collect-subscriber references a query threads through
// dispatch, reduce, collect, and cleanup.
type FrameSequence struct {
	id    uuid.UUID
	bus   *bus.Bus
	shard *bus.Shard

	factory table.CursorFactory
	cursor  table.PageFrameCursor
	reducer table.Reducer
	atom    any

	frameCount       int
	frameRowCounts   []uint32
	pageAddressCache *pagecache.Cache

	valid              atomix.Bool
	reduceCounter      atomix.Int64
	cleanedCount       atomix.Int64
	dispatchStartIndex atomix.Int64
	dispatching        atomix.Bool

	doneLatch     *latch
	collectSubSeq *ring.SCSubscriber
	scratch       table.Record
}

// New creates an idle frame sequence bound to reducer. A FrameSequence
// is reusable across many query executions via ToTop/Clear; reducer is
// fixed for the lifetime of the Go value since it corresponds to one
// compiled query plan.
func New(reducer table.Reducer) *FrameSequence {
	fs := &FrameSequence{reducer: reducer, id: uuid.New()}
	fs.valid.StoreRelease(true)
	fs.doneLatch = newLatch(1)
	return fs
}

// ID returns the query identity distinguishing this sequence from any
// other concurrently sharing its shard.
func (fs *FrameSequence) ID() uuid.UUID {
	return fs.id
}

// Valid reports whether the query is still valid, i.e. has not been
// cancelled. Implements bus.FrameSequenceRef.
func (fs *FrameSequence) Valid() bool {
	return fs.valid.LoadAcquire()
}

// Invalidate is the sole cancellation primitive: monotonic, CAS-guarded
// so a second caller never flips it back.
func (fs *FrameSequence) Invalidate() {
	fs.valid.CompareAndSwapAcqRel(true, false)
}

// ReduceCounter returns the number of reduce tasks whose reducer has
// finished, successfully or not.
func (fs *FrameSequence) ReduceCounter() int64 {
	return fs.reduceCounter.LoadAcquire()
}

// BumpReduceCounter records that one more frame's reducer has finished,
// successfully or not. Implements reduceworker's reducible interface.
func (fs *FrameSequence) BumpReduceCounter() {
	fs.reduceCounter.AddAcqRel(1)
}

// FrameCount returns the frame count captured at dispatch.
func (fs *FrameSequence) FrameCount() int {
	return fs.frameCount
}

// Shard returns the shard this query is bound to.
func (fs *FrameSequence) Shard() *bus.Shard {
	return fs.shard
}

// PageAddressCache returns the per-frame addressing table.
func (fs *FrameSequence) PageAddressCache() *pagecache.Cache {
	return fs.pageAddressCache
}

// Reducer returns the query's reducer.
func (fs *FrameSequence) Reducer() table.Reducer {
	return fs.reducer
}

// Atom returns the query's opaque reducer scratch/parameters.
func (fs *FrameSequence) Atom() any {
	return fs.atom
}

// CollectSub returns the per-query collect subscriber attached to the
// shard's collect fan-out.
func (fs *FrameSequence) CollectSub() *ring.SCSubscriber {
	return fs.collectSubSeq
}

// SymbolTableSource returns the reader's symbol table source, or nil if
// no reader is currently open.
func (fs *FrameSequence) SymbolTableSource() table.SymbolTableSource {
	if fs.factory == nil {
		return nil
	}
	return fs.factory.SymbolTableSource()
}

// Dispatch opens factory's cursor, walks every frame once to populate
// the page-address cache, picks a shard from ctx, attaches a fresh
// collect subscriber to it, and publishes one dispatch task referencing
// this sequence.
func (fs *FrameSequence) Dispatch(factory table.CursorFactory, ctx table.ExecutionContext, atom any) error {
	cursor, err := factory.Cursor()
	if err != nil {
		return err
	}

	var rowCounts []uint32
	var entries []pagecache.Entry
	for {
		frame, ok := cursor.Next()
		if !ok {
			break
		}
		entries = append(entries, pagecache.Entry{Partition: frame.PartitionLo, ColumnAddrs: frame.ColumnAddrs, RowLo: frame.RowLo, RowHi: frame.RowHi})
		rowCounts = append(rowCounts, frame.RowCount())
	}

	fs.factory = factory
	fs.cursor = cursor
	fs.atom = atom
	fs.frameCount = len(entries)
	fs.frameRowCounts = rowCounts
	fs.pageAddressCache = pagecache.New(fs.frameCount)
	for i, e := range entries {
		fs.pageAddressCache.Set(i, e)
	}

	fs.bus = ctx.Bus()
	shardIdx := ctx.Rand().IntN(fs.bus.ShardCount())
	fs.shard = fs.bus.Shard(shardIdx)

	fs.valid.StoreRelease(true)
	fs.reduceCounter.StoreRelease(0)
	fs.cleanedCount.StoreRelease(0)
	fs.dispatchStartIndex.StoreRelease(0)
	fs.doneLatch = newLatch(1)

	// Join the shard's reduce completion stream at its current position,
	// not at the beginning: the ring is a fixed-size circular buffer a
	// long-running shard may have wrapped many times over, so cursor 0
	// may no longer hold cursor 0's data (see NewSCSubscriberAt).
	joinAt := fs.shard.ReducePub.Published().Current()
	fs.collectSubSeq = ring.NewSCSubscriberAt(fs.shard.ReduceSub, joinAt)
	fs.shard.CollectFan.Attach(fs.collectSubSeq)

	if fs.frameCount == 0 {
		fs.Finalize()
		return nil
	}

	return fs.publishDispatchTask()
}

// publishDispatchTask publishes one dispatch task referencing fs,
// work-stealing this sequence's own dispatch step while the process-wide
// dispatch queue is full.
func (fs *FrameSequence) publishDispatchTask() error {
	sw := spin.Wait{}
	for {
		c := fs.bus.DispatchPub.Next()
		if !ring.IsWouldBlock(c) {
			*fs.bus.DispatchQueue.At(c) = bus.DispatchTask{FrameSeq: fs}
			fs.bus.DispatchPub.Done(c)
			return nil
		}
		fs.DispatchStep()
		stole()
		sw.Once()
	}
}

// DispatchStep runs one rentable iteration of the dispatch loop: publish
// a reduce task per remaining frame starting from the saved resume
// index, stopping (and saving the resume index)
// the moment the shard's reduce publisher reports Full. Idempotent and
// safe to call from any thread; a guard bool ensures only one caller
// actually runs the loop body at a time, so concurrent re-entrant calls
// from a dispatch worker and a work-stealing foreground never duplicate
// a frame's reduce task.
func (fs *FrameSequence) DispatchStep() {
	if !fs.dispatching.CompareAndSwapAcqRel(false, true) {
		return
	}
	defer fs.dispatching.StoreRelease(false)

	start := fs.dispatchStartIndex.LoadAcquire()
	for i := start; i < int64(fs.frameCount); i++ {
		c := fs.shard.ReducePub.Next()
		if ring.IsWouldBlock(c) {
			fs.dispatchStartIndex.StoreRelease(i)
			return
		}
		slot := fs.shard.ReduceQueue.At(c)
		slot.Reset()
		slot.FrameSeq = fs
		slot.FrameIndex = int(i)
		fs.shard.ReducePub.Done(c)
	}
	fs.dispatchStartIndex.StoreRelease(int64(fs.frameCount))
}

// dispatchDone reports whether every frame has been published.
func (fs *FrameSequence) dispatchDone() bool {
	return fs.dispatchStartIndex.LoadAcquire() >= int64(fs.frameCount)
}

// Await busy-helps until the done-latch releases, re-entering this
// sequence's own dispatch step and opportunistically draining one reduce
// and one cleanup task on its shard, the foreground's contribution to
// forward progress.
func (fs *FrameSequence) Await() {
	sw := spin.Wait{}
	for !fs.doneLatch.done() {
		fs.DispatchStep()
		reduceworker.ConsumeOne(fs.shard, &fs.scratch)
		cleanup.ConsumeOne(fs.shard)
		stole()
		sw.Once()
	}
}

// ToTop rewinds the reader and republishes a dispatch task with
// dispatchStartIndex reset to 0, reusing this sequence's identity.
func (fs *FrameSequence) ToTop() error {
	if fs.cursor == nil {
		return ErrNoReader
	}
	fs.cursor.ToTop()
	fs.dispatchStartIndex.StoreRelease(0)
	fs.reduceCounter.StoreRelease(0)
	fs.cleanedCount.StoreRelease(0)
	fs.valid.StoreRelease(true)
	fs.doneLatch = newLatch(1)

	if fs.collectSubSeq != nil {
		fs.shard.CollectFan.Detach(fs.collectSubSeq)
	}
	joinAt := fs.shard.ReducePub.Published().Current()
	fs.collectSubSeq = ring.NewSCSubscriberAt(fs.shard.ReduceSub, joinAt)
	fs.shard.CollectFan.Attach(fs.collectSubSeq)

	return fs.publishDispatchTask()
}

// AdvanceCleanup records one more reclaimed frame and reports whether
// this was the last outstanding one. Implements bus.CleanableFrameSequence.
func (fs *FrameSequence) AdvanceCleanup() bool {
	return fs.cleanedCount.AddAcqRel(1) == int64(max(fs.frameCount, 1))
}

// Finalize performs the one-time terminal release: clears the page
// cache, detaches the collect subscriber, releases the reader, and
// counts down the done-latch. Implements bus.CleanableFrameSequence.
func (fs *FrameSequence) Finalize() {
	if fs.pageAddressCache != nil {
		fs.pageAddressCache.Clear()
	}
	if fs.collectSubSeq != nil {
		fs.shard.CollectFan.Detach(fs.collectSubSeq)
	}
	if fs.cursor != nil {
		fs.cursor.Close()
		fs.cursor = nil
	}
	fs.doneLatch.countDown()
}

// Clear performs the final reset after Await() returns, readying the
// sequence for pooled reuse.
func (fs *FrameSequence) Clear() {
	fs.frameCount = 0
	fs.frameRowCounts = nil
	fs.pageAddressCache = nil
	fs.collectSubSeq = nil
	fs.atom = nil
	fs.factory = nil
	fs.reduceCounter.StoreRelease(0)
	fs.cleanedCount.StoreRelease(0)
	fs.dispatchStartIndex.StoreRelease(0)
	fs.valid.StoreRelease(true)
}

