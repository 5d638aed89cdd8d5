// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package frameseq

import "code.hybscloud.com/atomix"

// latch is a single-shot count-down latch: released once its count
// reaches zero, never re-armed in place. A new one is installed by
// Dispatch/ToTop each time a frame sequence starts a fresh run. Await
// busy-helps rather than blocking, so done() is a plain poll rather than
// a wait/notify primitive.
type latch struct {
	remaining atomix.Int64
}

// newLatch creates a latch that releases after n count-downs.
func newLatch(n int64) *latch {
	l := &latch{}
	l.remaining.StoreRelease(n)
	return l
}

// countDown records one count-down. Safe to call concurrently; further
// calls past zero are harmless no-ops, so a cleanup replay stays
// idempotent.
func (l *latch) countDown() {
	for {
		cur := l.remaining.LoadAcquire()
		if cur <= 0 {
			return
		}
		if l.remaining.CompareAndSwapAcqRel(cur, cur-1) {
			return
		}
	}
}

// done reports whether the latch has released.
func (l *latch) done() bool {
	return l.remaining.LoadAcquire() <= 0
}
