// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cleanup implements the cleanup stage: draining a shard's
// cleanup queue, reclaiming a query's final state once every one of its
// frames has been accounted for. It depends only on bus and ring, never
// on frameseq, so frameseq, reduceworker, and collect can all use it
// without an import cycle.
package cleanup

import (
	"github.com/vectorframe/scanexec/bus"
	"github.com/vectorframe/scanexec/ring"
)

// Outcome reports what ConsumeOne did.
type Outcome int

const (
	// Empty means nothing was published to the cleanup queue.
	Empty Outcome = iota
	// Collision means a concurrent claim lost a race; the caller should retry.
	Collision
	// Done means one cleanup task was consumed.
	Done
)

// ConsumeOne drains one cleanup task from shard, if any, advancing the
// owning frame sequence's cleanup count and finalizing it exactly once
// that count reaches its frame count. Idempotent: a task whose owning
// sequence has already finalized is simply consumed and discarded.
func ConsumeOne(shard *bus.Shard) Outcome {
	c := shard.CleanupSub.Next()
	switch {
	case ring.IsCollision(c):
		return Collision
	case ring.IsWouldBlock(c):
		return Empty
	}

	slot := shard.CleanupQueue.At(c)
	if fs := slot.FrameSeq; fs != nil {
		if last := fs.AdvanceCleanup(); last {
			fs.Finalize()
		}
	}
	slot.FrameSeq = nil
	shard.CleanupSub.Done(c)
	return Done
}

// Drain calls ConsumeOne until the shard's cleanup queue reports Empty,
// used by a dedicated cleanup worker loop.
func Drain(shard *bus.Shard) {
	for ConsumeOne(shard) != Empty {
	}
}
