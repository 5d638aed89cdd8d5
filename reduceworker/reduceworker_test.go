// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reduceworker_test

import (
	"testing"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/pagecache"
	"github.com/vectorframe/scanexec/reduceworker"
	"github.com/vectorframe/scanexec/rowid"
	"github.com/vectorframe/scanexec/table"
)

// stubFS is the minimal stand-in for *frameseq.FrameSequence reduceworker
// needs: package reduceworker never imports frameseq, so its tests don't
// either.
type stubFS struct {
	valid   bool
	reducer table.Reducer
	cache   *pagecache.Cache
	atom    any
	bumped  int
}

func (s *stubFS) Valid() bool                        { return s.valid }
func (s *stubFS) Reducer() table.Reducer             { return s.reducer }
func (s *stubFS) PageAddressCache() *pagecache.Cache { return s.cache }
func (s *stubFS) Atom() any                          { return s.atom }
func (s *stubFS) BumpReduceCounter()                 { s.bumped++ }
func (s *stubFS) Invalidate()                        { s.valid = false }

// keepAllRows appends one row id per frame, the row at the frame's RowLo.
type keepAllRows struct{}

func (keepAllRows) Reduce(rec *table.Record, atom any, sink table.RowSink) error {
	sink.Append(rowid.Pack(rec.Frame.PartitionLo, rec.RowIndex))
	return nil
}

func publishReduceTask(t *testing.T, shard *bus.Shard, fs bus.FrameSequenceRef, frameIndex int) {
	t.Helper()
	c := shard.ReducePub.Next()
	if c < 0 {
		t.Fatalf("reduce publisher unexpectedly Full")
	}
	slot := shard.ReduceQueue.At(c)
	slot.Reset()
	slot.FrameSeq = fs
	slot.FrameIndex = frameIndex
	shard.ReducePub.Done(c)
}

func TestConsumeOneRunsReducerAndAppendsRows(t *testing.T) {
	b := bus.NewBus(1, 8, 8, 4)
	shard := b.Shard(0)

	cache := pagecache.New(1)
	cache.Set(0, pagecache.Entry{Partition: 7, RowLo: 3, RowHi: 4})
	fs := &stubFS{valid: true, reducer: keepAllRows{}, cache: cache}

	publishReduceTask(t, shard, fs, 0)

	var rec table.Record
	if got := reduceworker.ConsumeOne(shard, &rec); got != reduceworker.Done {
		t.Fatalf("ConsumeOne() = %v, want Done", got)
	}
	if fs.bumped != 1 {
		t.Fatalf("BumpReduceCounter called %d times, want 1", fs.bumped)
	}

	slot := shard.ReduceQueue.At(0)
	if len(slot.Rows) != 1 {
		t.Fatalf("task.Rows = %v, want one row", slot.Rows)
	}
	want := rowid.Pack(7, 3)
	if slot.Rows[0] != want {
		t.Fatalf("task.Rows[0] = %d, want %d", slot.Rows[0], want)
	}
}

func TestConsumeOneSkipsReducerOnceInvalidated(t *testing.T) {
	b := bus.NewBus(1, 8, 8, 4)
	shard := b.Shard(0)

	cache := pagecache.New(1)
	cache.Set(0, pagecache.Entry{RowLo: 0, RowHi: 1})
	fs := &stubFS{valid: false, reducer: keepAllRows{}, cache: cache}

	publishReduceTask(t, shard, fs, 0)

	var rec table.Record
	if got := reduceworker.ConsumeOne(shard, &rec); got != reduceworker.Done {
		t.Fatalf("ConsumeOne() = %v, want Done", got)
	}
	if fs.bumped != 1 {
		t.Fatalf("BumpReduceCounter called %d times, want 1 (must still count invalidated frames)", fs.bumped)
	}
	if rows := shard.ReduceQueue.At(0).Rows; len(rows) != 0 {
		t.Fatalf("invalidated query's reducer should not have run, got rows %v", rows)
	}
}

func TestConsumeOneReportsEmptyOnIdleShard(t *testing.T) {
	b := bus.NewBus(1, 8, 8, 4)
	var rec table.Record
	if got := reduceworker.ConsumeOne(b.Shard(0), &rec); got != reduceworker.Empty {
		t.Fatalf("ConsumeOne() on idle shard = %v, want Empty", got)
	}
}

func TestJobTickDrainsEveryShardOnce(t *testing.T) {
	b := bus.NewBus(3, 8, 8, 4)
	cache := pagecache.New(1)
	cache.Set(0, pagecache.Entry{RowLo: 0, RowHi: 1})
	for _, shard := range b.Shards {
		fs := &stubFS{valid: true, reducer: keepAllRows{}, cache: cache}
		publishReduceTask(t, shard, fs, 0)
	}

	job := reduceworker.NewJob(b, 42)
	if !job.Tick() {
		t.Fatalf("Tick() = false, want true with work queued on every shard")
	}
	for i, shard := range b.Shards {
		if c := shard.ReduceSub.Next(); c >= 0 {
			t.Fatalf("shard %d still has an undrained reduce task after Tick()", i)
		}
	}
	if job.Tick() {
		t.Fatalf("Tick() = true on an idle bus, want false")
	}
}
