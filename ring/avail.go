// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/atomix"

// availTracker tracks which cursors in a bounded range have been marked
// done and exposes the highest cursor that is done contiguously from the
// start. It backs both MPPublisher.Done (marking publication) and
// MCSubscriber.Done (marking consumption), the two directions of the same
// problem: turn arbitrarily-ordered per-cursor completions into one
// monotonic gating position. A plain per-cursor flag, reset once consumed
// by the scan, is enough since the range here is gating-sequence space
// rather than physical-slot space.
type availTracker struct {
	_      pad
	contig atomix.Int64
	_      pad
	flags  []atomix.Bool
	mask   uint64
}

func newAvailTracker(capacity uint64) *availTracker {
	t := &availTracker{flags: make([]atomix.Bool, capacity), mask: capacity - 1}
	t.contig.StoreRelease(-1)
	return t
}

// mark records cursor as complete and opportunistically advances contig
// past any now-contiguous run, clearing each flag as it passes so the
// slot is ready for the next generation.
func (t *availTracker) mark(cursor int64) {
	t.flags[uint64(cursor)&t.mask].StoreRelease(true)
	for {
		cur := t.contig.LoadAcquire()
		idx := uint64(cur+1) & t.mask
		if !t.flags[idx].LoadAcquire() {
			return
		}
		if !t.contig.CompareAndSwapAcqRel(cur, cur+1) {
			continue
		}
		t.flags[idx].StoreRelease(false)
	}
}

// Current returns the highest cursor done contiguously from the start.
func (t *availTracker) Current() int64 {
	return t.contig.LoadAcquire()
}
