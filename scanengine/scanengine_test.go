// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanengine_test

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/collect"
	"github.com/vectorframe/scanexec/frameseq"
	"github.com/vectorframe/scanexec/rowid"
	"github.com/vectorframe/scanexec/scanconfig"
	"github.com/vectorframe/scanexec/scanengine"
	"github.com/vectorframe/scanexec/table"
	"github.com/vectorframe/scanexec/telemetry"
)

// These six tests cover end-to-end scan scenarios, driven against a real
// scanengine.Engine (background worker pools included) rather than
// against frameseq/collect in isolation. Each test constructs its own
// *frameseq.FrameSequence directly against engine.Bus() instead of going
// through Engine.Scan, purely so the assertions can reach
// fs.ReduceCounter()/fs.Valid(), a capability
// Engine.Scan's table.RecordCursor return type deliberately hides from
// callers. This is the same dispatch/collect surface Engine.Scan itself
// drives; it is not a bypass of the engine, only of its narrower public
// return type.

// thresholdReducer appends every row of its frame whose "value" column
// exceeds atom (an int64 threshold), mirroring cmd/scanexecd's own
// reducer: one Reduce call handles an entire frame's row range.
type thresholdReducer struct{}

func (thresholdReducer) Reduce(rec *table.Record, atom any, sink table.RowSink) error {
	threshold, _ := atom.(int64)
	addr := rec.Frame.ColumnAddrs[0]
	for row := rec.Frame.RowLo; row < rec.Frame.RowHi; row++ {
		if table.ReadInt64(addr, row) > threshold {
			sink.Append(rowid.Pack(rec.Frame.PartitionLo, row))
		}
	}
	return nil
}

// sequentialFactory builds a single-partition table whose "value" column
// holds 0..rowCount-1, paginated into pageSize-row frames.
func sequentialFactory(rowCount int, pageSize uint32) *table.MemCursorFactory {
	f := table.NewMemCursorFactory([]string{"value"}, pageSize)
	values := make([]int64, rowCount)
	for i := range values {
		values[i] = int64(i)
	}
	f.AddPartition([][]int64{values})
	return f
}

// execCtx is the table.ExecutionContext a caller building a
// *frameseq.FrameSequence directly against an engine's bus must supply;
// Engine.Scan builds the equivalent internally but does not export it.
type execCtx struct {
	b *bus.Bus
	r *rand.Rand
	w int
}

func (c *execCtx) Rand() *rand.Rand { return c.r }
func (c *execCtx) WorkerCount() int { return c.w }
func (c *execCtx) Bus() *bus.Bus    { return c.b }

func newTestEngine(t *testing.T, opts scanconfig.Options) *scanengine.Engine {
	t.Helper()
	e, err := scanengine.New(opts, telemetry.NewNop())
	require.NoError(t, err)
	return e
}

func dispatch(t *testing.T, e *scanengine.Engine, reducer table.Reducer, factory table.CursorFactory, atom any, workers int) *frameseq.FrameSequence {
	t.Helper()
	fs := frameseq.New(reducer)
	ctx := &execCtx{b: e.Bus(), r: rand.New(rand.NewPCG(1, 2)), w: workers}
	require.NoError(t, fs.Dispatch(factory, ctx, atom))
	return fs
}

// 1. Table of 5 rows, single partition, predicate x = 0 (always true), 1
// shard, 4 workers, no LIMIT: emits 5 rows in ascending order;
// reduceCounter reaches 1 (a single frame).
func TestScenario1_SingleFrameAllRowsSurvive(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 1
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	e := newTestEngine(t, opts)
	e.Start()
	defer e.Stop()

	fs := dispatch(t, e, thresholdReducer{}, sequentialFactory(5, 10), int64(-1), opts.WorkerCount)
	require.Equal(t, 1, fs.FrameCount())

	cur := collect.NewCursor(fs, collect.NoLimit)
	var got []rowid.ID
	for cur.HasNext() {
		r := cur.Record()
		got = append(got, rowid.Pack(r.Frame.PartitionLo, r.RowIndex))
	}
	require.NoError(t, cur.Close())

	require.Len(t, got, 5)
	for i, id := range got {
		require.Equal(t, rowid.Pack(0, uint32(i)), id)
	}
	require.EqualValues(t, 1, fs.ReduceCounter())
}

// 2. Table of 1,000,000 rows across 10 frames, predicate x > 9_999_999
// (zero matches): emits 0 rows; no deadlock; doneLatch releases;
// reduceCounter == 10.
func TestScenario2_ZeroMatchesNoDeadlock(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 2
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	e := newTestEngine(t, opts)
	e.Start()
	defer e.Stop()

	const rowCount = 1_000_000
	const frames = 10
	fs := dispatch(t, e, thresholdReducer{}, sequentialFactory(rowCount, rowCount/frames), int64(9_999_999), opts.WorkerCount)
	require.Equal(t, frames, fs.FrameCount())

	cur := collect.NewCursor(fs, collect.NoLimit)
	require.False(t, cur.HasNext(), "a predicate matching nothing must yield zero rows")
	require.NoError(t, cur.Close())

	require.EqualValues(t, frames, fs.ReduceCounter())
}

// 3. Two concurrent queries on the same shard, each 100 frames, each
// with predicate always-true: each emits exactly its own 100 ×
// frameRowCount rows; the collectors never misattribute frames.
func TestScenario3_TwoConcurrentQueriesNeverMisattribute(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 1
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	e := newTestEngine(t, opts)
	e.Start()
	defer e.Stop()

	const frameRowCount = 10
	const frames = 100
	rowCount := frameRowCount * frames

	fsA := dispatch(t, e, thresholdReducer{}, sequentialFactory(rowCount, frameRowCount), int64(-1), opts.WorkerCount)
	fsB := dispatch(t, e, thresholdReducer{}, sequentialFactory(rowCount, frameRowCount), int64(-1), opts.WorkerCount)
	require.Equal(t, frames, fsA.FrameCount())
	require.Equal(t, frames, fsB.FrameCount())

	collectAll := func(fs *frameseq.FrameSequence) []rowid.ID {
		cur := collect.NewCursor(fs, collect.NoLimit)
		var got []rowid.ID
		for cur.HasNext() {
			r := cur.Record()
			got = append(got, rowid.Pack(r.Frame.PartitionLo, r.RowIndex))
		}
		require.NoError(t, cur.Close())
		return got
	}

	var wg sync.WaitGroup
	var gotA, gotB []rowid.ID
	wg.Add(2)
	go func() { defer wg.Done(); gotA = collectAll(fsA) }()
	go func() { defer wg.Done(); gotB = collectAll(fsB) }()
	wg.Wait()

	require.Len(t, gotA, rowCount)
	require.Len(t, gotB, rowCount)
	for i := 0; i < rowCount; i++ {
		want := rowid.Pack(0, uint32(i))
		require.Equal(t, want, gotA[i], "query A row %d misattributed", i)
		require.Equal(t, want, gotB[i], "query B row %d misattributed", i)
	}
}

// 4. Query with LIMIT 3 over 10 frames of 1,000 rows each: exactly 3
// rows emitted; valid observed false on close; in-flight reducers
// allowed to complete without crashing.
func TestScenario4_LimitExhaustionInvalidates(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 1
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	e := newTestEngine(t, opts)
	e.Start()
	defer e.Stop()

	fs := dispatch(t, e, thresholdReducer{}, sequentialFactory(10_000, 1_000), int64(-1), opts.WorkerCount)
	require.Equal(t, 10, fs.FrameCount())

	cur := collect.NewCursor(fs, 3)
	var count int
	for cur.HasNext() {
		count++
	}
	require.Equal(t, 3, count)
	require.False(t, fs.Valid(), "overflowing LIMIT must invalidate the query")

	// In-flight reducers for the remaining frames must still be allowed
	// to finish (and be discarded) without Close hanging or panicking.
	require.NoError(t, cur.Close())
}

// 5. setValid(false) injected after dispatch publishes but before any
// reducer runs: collector emits 0 rows; reduceCounter == frameCount; no
// leaked reader.
func TestScenario5_InvalidateBeforeAnyReduce(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 1
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	// Deliberately do not Start the engine: nothing may drive dispatch or
	// reduce in the background, so invalidating immediately after
	// Dispatch returns is guaranteed to land before any reducer runs.
	e := newTestEngine(t, opts)
	defer e.Stop()

	closed := false
	factory := &trackedFactory{n: 6, closed: &closed}
	fs := dispatch(t, e, thresholdReducer{}, factory, int64(-1), opts.WorkerCount)
	require.Equal(t, 6, fs.FrameCount())

	fs.Invalidate()

	cur := collect.NewCursor(fs, collect.NoLimit)
	require.False(t, cur.HasNext(), "an invalidated query must yield no rows")
	require.NoError(t, cur.Close())

	require.EqualValues(t, 6, fs.ReduceCounter())
	require.True(t, closed, "the reader must be closed once the query finalizes")
}

// 6. toTop() called after consuming 2 out of 10 frames: subsequent full
// consumption yields all 10 frames' rows in order.
func TestScenario6_ToTopReplaysAllRows(t *testing.T) {
	opts := scanconfig.Defaults()
	opts.ShardCount = 1
	opts.WorkerCount = 4
	require.NoError(t, opts.Validate())

	e := newTestEngine(t, opts)
	e.Start()
	defer e.Stop()

	fs := dispatch(t, e, thresholdReducer{}, sequentialFactory(10, 1), int64(-1), opts.WorkerCount)
	require.Equal(t, 10, fs.FrameCount())

	cur := collect.NewCursor(fs, collect.NoLimit)
	for i := 0; i < 2; i++ {
		require.True(t, cur.HasNext())
		_ = cur.Record()
	}

	cur.ToTop()

	var got []rowid.ID
	for cur.HasNext() {
		r := cur.Record()
		got = append(got, rowid.Pack(r.Frame.PartitionLo, r.RowIndex))
	}
	require.NoError(t, cur.Close())

	require.Len(t, got, 10)
	for i, id := range got {
		require.Equal(t, rowid.Pack(0, uint32(i)), id)
	}
}

// trackedCursor/trackedFactory are a minimal PageFrameCursor whose Close
// is observable, used only where a test needs to confirm the reader was
// actually released (scenario 5's "no leaked reader").
type trackedCursor struct {
	n, pos int
	closed *bool
}

func (c *trackedCursor) Next() (*table.Frame, bool) {
	if c.pos >= c.n {
		return nil, false
	}
	f := &table.Frame{PartitionLo: 0, PartitionHi: 0, RowLo: uint32(c.pos), RowHi: uint32(c.pos + 1)}
	c.pos++
	return f, true
}
func (c *trackedCursor) ToTop()      { c.pos = 0 }
func (c *trackedCursor) Close() error { *c.closed = true; return nil }

type trackedFactory struct {
	n      int
	closed *bool
}

func (f *trackedFactory) Cursor() (table.PageFrameCursor, error) {
	return &trackedCursor{n: f.n, closed: f.closed}, nil
}
func (f *trackedFactory) Metadata() table.Metadata                  { return table.Metadata{} }
func (f *trackedFactory) SymbolTableSource() table.SymbolTableSource { return nil }
