// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanengine is the top-level wiring for the pipeline: it
// builds the message bus, starts the reduce/dispatch/cleanup worker
// pools, and exposes the synchronous Scan and asynchronous Submit APIs
// a caller drives a SQL scan through.
package scanengine

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"code.hybscloud.com/spin"
	"go.uber.org/atomic"

	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/cleanup"
	"github.com/vectorframe/scanexec/collect"
	"github.com/vectorframe/scanexec/frameseq"
	"github.com/vectorframe/scanexec/internal/lfq"
	"github.com/vectorframe/scanexec/reduceworker"
	"github.com/vectorframe/scanexec/ring"
	"github.com/vectorframe/scanexec/scanconfig"
	"github.com/vectorframe/scanexec/table"
	"github.com/vectorframe/scanexec/telemetry"
)

// execContext is the table.ExecutionContext handed to every dispatched
// frame sequence. Rand is per-call so concurrent Scan calls never share
// a *rand.Rand, which is not itself concurrency-safe.
type execContext struct {
	bus    *bus.Bus
	rnd    *rand.Rand
	worker int
}

func (c *execContext) Rand() *rand.Rand    { return c.rnd }
func (c *execContext) WorkerCount() int    { return c.worker }
func (c *execContext) Bus() *bus.Bus       { return c.bus }

// ScanRequest is one asynchronously submitted scan: the reader, the
// reducer and its opaque parameters, a row limit, and where to deliver
// the resulting cursor.
type ScanRequest struct {
	Factory table.CursorFactory
	Reducer table.Reducer
	Atom    any
	Limit   int64
	Result  chan<- ScanResult
}

// ScanResult is delivered on a ScanRequest's Result channel once its scan
// has been dispatched, not once it has completed: Scan only blocks on
// dispatch, the only path on which an error can surface to the caller.
type ScanResult struct {
	Cursor table.RecordCursor
	Err    error
}

// Engine owns the message bus and the background worker pools that
// drive reduce, dispatch, and cleanup for every query running against it.
type Engine struct {
	bus     *bus.Bus
	opts    scanconfig.Options
	log     telemetry.Logger
	Metrics *Metrics

	seed atomic.Uint64

	submissions *lfq.MPSC[ScanRequest]

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an Engine over a fresh bus sized per opts. Call Start to
// launch its worker pools before driving any Scan/Submit call that
// depends on background progress (foreground work-stealing alone is
// enough to make progress with zero workers, but is far slower).
func New(opts scanconfig.Options, log telemetry.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = telemetry.NewNop()
	}
	e := &Engine{
		bus:         bus.NewBus(opts.ShardCount, opts.ReduceQueueCapacity, opts.CleanupQueueCapacity, opts.DispatchQueueCapacity),
		opts:        opts,
		log:         log,
		Metrics:     NewMetrics(),
		submissions: lfq.NewMPSC[ScanRequest](256),
		stop:        make(chan struct{}),
	}
	// frameseq and collect never import scanengine (scanengine depends on
	// them, not the reverse), so their foreground work-steal counter is
	// wired through a package-level hook rather than a constructor
	// argument, the same shape as telemetry.Errorf.
	frameseq.OnWorkSteal = e.Metrics.AddWorkSteal
	collect.OnWorkSteal = e.Metrics.AddWorkSteal
	return e, nil
}

// Bus returns the engine's message bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

func (e *Engine) nextSeed() uint64 {
	return e.seed.Add(0x9e3779b97f4a7c15)
}

// Start launches opts.WorkerCount reduce workers plus one dispatch
// worker and one cleanup worker per shard. Safe to call once per Engine.
func (e *Engine) Start() {
	for i := 0; i < e.opts.WorkerCount; i++ {
		job := reduceworker.NewJob(e.bus, e.nextSeed())
		e.wg.Add(1)
		go e.runReduceWorker(job)
	}

	e.wg.Add(1)
	go e.runDispatchWorker()

	for _, shard := range e.bus.Shards {
		e.wg.Add(1)
		go e.runCleanupWorker(shard)
	}

	e.log.Infow("scanengine: started", "workerCount", e.opts.WorkerCount, "shardCount", e.opts.ShardCount)
}

// Stop signals every worker goroutine to exit and waits for them to do
// so. In-flight queries must already have reached quiescence (via
// collect.Cursor.Close) before Stop is called, or they will stall
// without the background workers driving their reduce/cleanup steps.
// Foreground work-stealing alone can still finish them if the caller
// keeps calling HasNext/Close.
func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
}

func (e *Engine) runReduceWorker(job *reduceworker.Job) {
	defer e.wg.Done()
	sw := spin.Wait{}
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		if job.Tick() {
			e.Metrics.AddFramesReduced(1)
			sw = spin.Wait{}
			continue
		}
		sw.Once()
	}
}

func (e *Engine) runDispatchWorker() {
	defer e.wg.Done()
	sw := spin.Wait{}
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		if e.drainSubmissions() {
			sw = spin.Wait{}
			continue
		}
		if e.consumeDispatch() {
			sw = spin.Wait{}
			continue
		}
		sw.Once()
	}
}

// consumeDispatch drains one dispatch task, running its frame
// sequence's rentable dispatch step.
func (e *Engine) consumeDispatch() bool {
	c := e.bus.DispatchSub.Next()
	switch {
	case ring.IsCollision(c):
		return true
	case ring.IsWouldBlock(c):
		return false
	}
	task := e.bus.DispatchQueue.At(c)
	if task.FrameSeq != nil {
		task.FrameSeq.DispatchStep()
	}
	task.FrameSeq = nil
	e.bus.DispatchSub.Done(c)
	return true
}

// drainSubmissions dispatches one queued async ScanRequest, if any.
func (e *Engine) drainSubmissions() bool {
	req, err := e.submissions.Dequeue()
	if err != nil {
		return false
	}
	cur, err := e.scan(req.Factory, req.Reducer, req.Atom, req.Limit)
	req.Result <- ScanResult{Cursor: cur, Err: err}
	return true
}

func (e *Engine) runCleanupWorker(shard *bus.Shard) {
	defer e.wg.Done()
	sw := spin.Wait{}
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		if cleanup.ConsumeOne(shard) == cleanup.Done {
			sw = spin.Wait{}
			continue
		}
		sw.Once()
	}
}

// Scan dispatches a synchronous scan of factory's rows through reducer
// and returns a ready-to-drive table.RecordCursor. The only error this
// can return is a factory/dispatch failure; everything after dispatch is
// best-effort and reported through fs.Valid().
func (e *Engine) Scan(factory table.CursorFactory, reducer table.Reducer, atom any, limit int64) (table.RecordCursor, error) {
	return e.scan(factory, reducer, atom, limit)
}

func (e *Engine) scan(factory table.CursorFactory, reducer table.Reducer, atom any, limit int64) (table.RecordCursor, error) {
	fs := frameseq.New(reducer)
	ctx := &execContext{
		bus:    e.bus,
		rnd:    rand.New(rand.NewPCG(e.nextSeed(), e.nextSeed())),
		worker: e.opts.WorkerCount,
	}
	if err := fs.Dispatch(factory, ctx, atom); err != nil {
		return nil, fmt.Errorf("scanengine: dispatch: %w", err)
	}
	e.Metrics.AddFramesDispatched(int64(fs.FrameCount()))
	return &countingCursor{RecordCursor: collect.NewCursor(fs, limit), metrics: e.Metrics}, nil
}

// countingCursor wraps a table.RecordCursor to count surviving rows as
// the caller walks them, the only point in the pipeline that knows a row
// was actually handed to a caller rather than discarded internally.
type countingCursor struct {
	table.RecordCursor
	metrics *Metrics
}

func (c *countingCursor) HasNext() bool {
	ok := c.RecordCursor.HasNext()
	if ok {
		c.metrics.AddRowsCollected(1)
	}
	return ok
}

// Submit queues an asynchronous scan request, returning immediately.
// The dispatch worker goroutine drains it and delivers a ScanResult on
// req.Result. Returns an error if the submission queue is full; the
// caller should retry.
func (e *Engine) Submit(req ScanRequest) error {
	return e.submissions.Enqueue(&req)
}
