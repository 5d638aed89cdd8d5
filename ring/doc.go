// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the bounded ring buffer and cursor-sequence
// primitives that the rest of scanexec builds its dispatch/reduce/collect
// pipeline on.
//
// Unlike a plain Enqueue/Dequeue queue, ring exposes the producer and
// consumer sides as independent [Sequence]-backed cursors so that callers
// can compose multiple consumers behind one [FanOut] barrier, gate a
// publisher on an arbitrary set of downstream cursors, and resume a
// claim from a saved cursor value after back-pressure (see the frameseq
// package's rentable dispatch).
//
// # Cursor contract
//
//	queue := NewRingQueue[Task](capacity)
//	pub := NewMPPublisher(queue.Cap(), gates...)
//	cursor := pub.Next()       // -1 if the slowest gate leaves the ring full
//	if cursor >= 0 {
//	    *queue.At(cursor) = x
//	    pub.Done(cursor)
//	}
//
//	sub := NewMCSubscriber(queue.Cap(), pub.Published())
//	cursor := sub.Next()       // -1 empty, -2 transient CAS collision (retry)
//	if cursor >= 0 {
//	    x := *queue.At(cursor)
//	    sub.Done(cursor)
//	}
//
// # Fan-out
//
// A [FanOut] composes several [Subscriber]s behind one [GatingSequence]:
// its Current() is the minimum of all attached members, so a publisher
// gated on a FanOut never overwrites a slot a slow member hasn't released
// yet. Attach/Detach swap an immutable snapshot slice under a single
// atomic pointer so Current() never blocks a concurrent attach/detach.
//
// # Memory model
//
// Every cursor is a cache-line-padded [code.hybscloud.com/atomix.Int64]
// to avoid false sharing between producer and consumer cache lines;
// retries spin with [code.hybscloud.com/spin.Wait] rather than parking.
package ring
