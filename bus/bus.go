// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus implements the process-wide message bus: a
// read-only-after-construction registry of shards, each owning a reduce
// queue, a collect fan-out, and a cleanup queue with their sequences,
// plus one process-wide dispatch queue. No per-query state lives here;
// that belongs to frameseq.FrameSequence, which references a Shard by
// index.
package bus

import (
	"code.hybscloud.com/atomix"

	"github.com/vectorframe/scanexec/ring"
	"github.com/vectorframe/scanexec/rowid"
)

// FrameSequenceRef is the minimal identity a queue slot needs to carry
// for a consumer to tell which query it belongs to. Go interface
// comparison gives reference-equality for free when both sides hold the
// same concrete pointer, so consumers compare with plain ==.
type FrameSequenceRef interface {
	// Valid reports whether the owning query is still valid, i.e. has not
	// been cancelled.
	Valid() bool
}

// ReduceTask is a reduce queue slot: a grow-on-write row list owned by
// the slot and logically transferred to a query for the span between a
// reducer populating it and a collector releasing it.
type ReduceTask struct {
	FrameSeq   FrameSequenceRef
	FrameIndex int
	Rows       []rowid.ID
	Collected  atomix.Bool
}

// Append adds a surviving row id. Implements table.RowSink structurally
// so reducers never allocate per row beyond slice growth.
func (t *ReduceTask) Append(id rowid.ID) {
	t.Rows = append(t.Rows, id)
}

// Reset clears a slot for reuse without freeing its backing array.
func (t *ReduceTask) Reset() {
	t.FrameSeq = nil
	t.FrameIndex = 0
	t.Rows = t.Rows[:0]
	t.Collected.StoreRelease(false)
}

// DispatchTask is the process-wide dispatch queue's slot: a reference to
// the frame sequence whose dispatch step should run next.
type DispatchTask struct {
	FrameSeq DispatchableFrameSequence
}

// DispatchableFrameSequence is the subset of *frameseq.FrameSequence the
// dispatch queue and its consumers need, kept here (rather than an
// import of frameseq) to avoid a bus<->frameseq import cycle: frameseq
// depends on bus, not the other way around.
type DispatchableFrameSequence interface {
	FrameSequenceRef
	// DispatchStep runs one rentable dispatch iteration.
	DispatchStep()
}

// CleanupTask is a per-shard cleanup queue slot.
type CleanupTask struct {
	FrameSeq CleanableFrameSequence
}

// CleanableFrameSequence is the subset of *frameseq.FrameSequence the
// cleanup stage needs. Kept to this minimal shape (rather than an import
// of frameseq) so package cleanup never depends on frameseq at all,
// only on bus and ring.
type CleanableFrameSequence interface {
	FrameSequenceRef
	// AdvanceCleanup records that one more frame's cleanup task has been
	// reclaimed and reports whether this was the last outstanding frame
	// for the query, in which case the caller must call Finalize exactly
	// once. Safe to call from multiple cleanup consumers concurrently.
	AdvanceCleanup() (last bool)
	// Finalize performs the one-time terminal release: clears the page
	// cache, detaches the collect subscriber, releases the reader, and
	// counts down the done-latch.
	Finalize()
}

// Shard owns one reduce queue, one collect fan-out, and one cleanup
// queue, with their sequences. Each query binds to exactly one shard for
// its lifetime.
type Shard struct {
	Index int

	ReduceQueue *ring.RingQueue[ReduceTask]
	ReducePub   *ring.MPPublisher
	ReduceSub   *ring.MCSubscriber
	CollectFan  *ring.FanOut

	CleanupQueue *ring.RingQueue[CleanupTask]
	CleanupPub   *ring.MPPublisher
	CleanupSub   *ring.MCSubscriber
}

func newShard(index int, reduceCap, cleanupCap int) *Shard {
	s := &Shard{Index: index, CollectFan: ring.NewFanOut()}

	s.ReduceQueue = ring.NewRingQueue[ReduceTask](reduceCap)
	s.ReducePub = ring.NewMPPublisher(s.ReduceQueue.Cap(), s.CollectFan)
	s.ReduceSub = ring.NewMCSubscriber(s.ReduceQueue.Cap(), s.ReducePub.Published())

	s.CleanupQueue = ring.NewRingQueue[CleanupTask](cleanupCap)
	// The cleanup publisher's only gate is its own consumer, which in
	// turn needs the publisher's Published() as its source: break the
	// cycle by gating through an empty FanOut and attaching the
	// subscriber once it exists.
	cleanupGate := ring.NewFanOut()
	s.CleanupPub = ring.NewMPPublisher(s.CleanupQueue.Cap(), cleanupGate)
	s.CleanupSub = ring.NewMCSubscriber(s.CleanupQueue.Cap(), s.CleanupPub.Published())
	cleanupGate.Attach(s.CleanupSub)

	return s
}

// Bus is the process-wide registry of shards and the dispatch queue.
// Read-only after NewBus returns.
type Bus struct {
	Shards []*Shard

	DispatchQueue *ring.RingQueue[DispatchTask]
	DispatchPub   *ring.MPPublisher
	DispatchSub   *ring.MCSubscriber
}

// NewBus builds a bus with shardCount shards, each with the given reduce
// and cleanup queue capacities, and one dispatch queue of dispatchCap.
// Capacities are rounded to a power of two by ring.NewRingQueue.
func NewBus(shardCount, reduceCap, cleanupCap, dispatchCap int) *Bus {
	b := &Bus{Shards: make([]*Shard, shardCount)}
	for i := range b.Shards {
		b.Shards[i] = newShard(i, reduceCap, cleanupCap)
	}

	b.DispatchQueue = ring.NewRingQueue[DispatchTask](dispatchCap)
	dispatchGate := ring.NewFanOut()
	b.DispatchPub = ring.NewMPPublisher(b.DispatchQueue.Cap(), dispatchGate)
	b.DispatchSub = ring.NewMCSubscriber(b.DispatchQueue.Cap(), b.DispatchPub.Published())
	dispatchGate.Attach(b.DispatchSub)

	return b
}

// Shard returns the shard at index, panicking if out of range. The bus
// is sized once at construction and every caller already picked the
// index from [0, len(Shards)).
func (b *Bus) Shard(index int) *Shard {
	return b.Shards[index]
}

// ShardCount returns the number of shards in the bus.
func (b *Bus) ShardCount() int {
	return len(b.Shards)
}
