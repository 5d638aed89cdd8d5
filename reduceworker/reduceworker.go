// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reduceworker implements the reduce job: the worker-thread loop
// that consumes reduce tasks across shards in a per-worker shuffled
// order, invokes the query's reducer on each frame, and lets the task
// flow downstream into the collect fan-out. It depends on bus, pagecache,
// ring, and table, never on frameseq, so frameseq can import it for its own
// work-stealing Await step without an import cycle.
package reduceworker

import (
	"math/rand/v2"

	"code.hybscloud.com/spin"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/pagecache"
	"github.com/vectorframe/scanexec/ring"
	"github.com/vectorframe/scanexec/table"
)

// Outcome reports what ConsumeOne did, mirroring cleanup.Outcome.
type Outcome int

const (
	// Empty means the shard's reduce queue has nothing claimable.
	Empty Outcome = iota
	// Collision means a concurrent MC claim lost a race; retry.
	Collision
	// Done means one reduce task was consumed and its reducer ran (or was
	// skipped because the owning query had already been invalidated).
	Done
)

// reducible is the subset of *frameseq.FrameSequence this package needs.
// Kept as a narrow local interface (rather than importing frameseq) so
// reduceworker never depends on frameseq; frameseq depends on
// reduceworker, not the other way around.
type reducible interface {
	bus.FrameSequenceRef
	Reducer() table.Reducer
	PageAddressCache() *pagecache.Cache
	Atom() any
	// BumpReduceCounter records that this frame's reducer has finished,
	// successfully or not. It counts completions, not successes.
	BumpReduceCounter()
	// Invalidate is the reducer-failure escape hatch: a reducer signaling
	// a fatal data error sets valid=false via this method rather than
	// propagating an error across threads.
	Invalidate()
}

// ConsumeOne drains one reduce task from shard, if any, and runs its
// reducer. rec is the caller's scratch Record, owned by this worker (or
// the foreground, for work-stealing calls) and rebound in place on every
// call; no per-frame allocation happens here.
func ConsumeOne(shard *bus.Shard, rec *table.Record) Outcome {
	c := shard.ReduceSub.Next()
	switch {
	case ring.IsCollision(c):
		return Collision
	case ring.IsWouldBlock(c):
		return Empty
	}
	defer shard.ReduceSub.Done(c)

	task := shard.ReduceQueue.At(c)
	fs, ok := task.FrameSeq.(reducible)
	if !ok || fs == nil {
		return Done
	}

	if fs.Valid() {
		e := fs.PageAddressCache().Get(task.FrameIndex)
		rec.Frame = table.Frame{
			PartitionLo: e.Partition,
			PartitionHi: e.Partition,
			ColumnAddrs: e.ColumnAddrs,
			RowLo:       e.RowLo,
			RowHi:       e.RowHi,
		}
		rec.RowIndex = e.RowLo
		if err := fs.Reducer().Reduce(rec, fs.Atom(), task); err != nil {
			fs.Invalidate()
		}
	}
	fs.BumpReduceCounter()
	return Done
}

// Job is a long-lived worker: each tick visits every shard in a
// per-worker shuffled order, reporting whether any shard yielded useful
// work.
type Job struct {
	bus   *bus.Bus
	rng   *rand.Rand
	order []int
	rec   table.Record
}

// NewJob creates a reduce worker over b with a shard-visit order shuffled
// from seed, so distinct workers don't all hammer shard 0 first.
func NewJob(b *bus.Bus, seed uint64) *Job {
	j := &Job{bus: b, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	j.order = make([]int, b.ShardCount())
	for i := range j.order {
		j.order[i] = i
	}
	j.rng.Shuffle(len(j.order), func(a, c int) { j.order[a], j.order[c] = j.order[c], j.order[a] })
	return j
}

// Tick visits every shard once in this worker's shuffled order,
// consuming at most one reduce task per shard, and reports whether any
// shard yielded useful work.
func (j *Job) Tick() bool {
	didWork := false
	for _, idx := range j.order {
		if ConsumeOne(j.bus.Shard(idx), &j.rec) == Done {
			didWork = true
		}
	}
	return didWork
}

// Run drives Tick in a loop until stop is closed, backing off with
// spin.Wait whenever a full pass over every shard finds no work.
func (j *Job) Run(stop <-chan struct{}) {
	sw := spin.Wait{}
	for {
		select {
		case <-stop:
			return
		default:
		}
		if j.Tick() {
			sw = spin.Wait{}
			continue
		}
		sw.Once()
	}
}
