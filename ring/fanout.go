// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"sync"
	"sync/atomic"
)

// FanOut composes multiple subscriber-like gating sequences behind one
// publisher-facing view: its Current() is the minimum across all
// currently attached members, so a publisher gated on a FanOut never
// overwrites a slot a slow member hasn't released.
//
// Attach/Detach rebuild an immutable snapshot slice and swap it in with
// a single atomic pointer store, so Current(), called from the hot
// publish path, never blocks behind a concurrent attach/detach and never
// observes a half-built slice.
type FanOut struct {
	snapshot atomic.Pointer[[]GatingSequence]
	writerMu sync.Mutex // serializes Attach/Detach writers only; Current never locks
}

// NewFanOut creates an empty fan-out barrier. With no members attached,
// Current() reports no gating pressure (math.MaxInt64), matching the
// collect fan-out of a shard with no active queries.
func NewFanOut() *FanOut {
	f := &FanOut{}
	empty := []GatingSequence{}
	f.snapshot.Store(&empty)
	return f
}

// Current returns the minimum Current() across attached members.
func (f *FanOut) Current() int64 {
	return minOf(*f.snapshot.Load())
}

// Len reports how many subscribers are currently attached.
func (f *FanOut) Len() int {
	return len(*f.snapshot.Load())
}

// Attach adds g to the fan-out. Safe to call concurrently with Current
// and with other Attach/Detach calls.
func (f *FanOut) Attach(g GatingSequence) {
	f.writerMu.Lock()
	defer f.writerMu.Unlock()

	old := *f.snapshot.Load()
	next := make([]GatingSequence, len(old)+1)
	copy(next, old)
	next[len(old)] = g
	f.snapshot.Store(&next)
}

// Detach removes g from the fan-out. It is a no-op if g is not a member.
// Detachment is asynchronous with respect to readers already holding the
// prior snapshot: a reader that loaded the snapshot just before Detach
// may still observe g for one more Current() call.
func (f *FanOut) Detach(g GatingSequence) {
	f.writerMu.Lock()
	defer f.writerMu.Unlock()

	old := *f.snapshot.Load()
	next := make([]GatingSequence, 0, len(old))
	for _, m := range old {
		if m != g {
			next = append(next, m)
		}
	}
	f.snapshot.Store(&next)
}
