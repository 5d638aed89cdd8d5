// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Publisher is the producer side of a ring: Next claims the next
// available cursor or returns [Full], Done publishes it so gated
// subscribers may observe it.
type Publisher interface {
	// Next claims the next cursor, or returns Full if the slowest gating
	// sequence leaves the ring no free slot.
	Next() int64
	// Done publishes a cursor previously returned by Next.
	Done(cursor int64)
	// Published returns this publisher's own position as a
	// GatingSequence, so a downstream Subscriber can gate on it.
	Published() GatingSequence
}

// SPPublisher is a single-producer publisher: plain load/store, no CAS.
type SPPublisher struct {
	_         pad
	claimed   int64 // touched only by the single producer goroutine
	_         pad
	published Sequence
	_         pad
	capacity  int64
	gates     []GatingSequence
}

// NewSPPublisher creates a single-producer publisher gated on gates.
// capacity must be a power of two (use RingQueue.Cap()).
func NewSPPublisher(capacity int64, gates ...GatingSequence) *SPPublisher {
	p := &SPPublisher{claimed: -1, capacity: capacity, gates: gates}
	p.published.value.StoreRelease(-1)
	return p
}

// Next returns the next cursor to claim, or Full if the slowest gate
// hasn't released enough slack.
func (p *SPPublisher) Next() int64 {
	next := p.claimed + 1
	if next-p.capacity > minOf(p.gates) {
		return Full
	}
	p.claimed = next
	return next
}

// Done publishes cursor with release semantics. Single-producer claims
// are always in order, so a plain store suffices.
func (p *SPPublisher) Done(cursor int64) {
	p.published.value.StoreRelease(cursor)
}

// Published returns the publisher's own position.
func (p *SPPublisher) Published() GatingSequence {
	return &p.published
}

// MPPublisher is a multi-producer publisher. Next reserves a cursor via
// CAS, spinning through collisions rather than surfacing them (only the
// MC subscriber surfaces Collision); Done marks a per-slot availability
// bit that a subscriber probes and opportunistically advances the
// highest contiguous published cursor, so out-of-order producer commits
// still expose a monotonic gating position.
type MPPublisher struct {
	_        pad
	claim    atomix.Int64
	_        pad
	avail    *availTracker
	capacity int64
	gates    []GatingSequence
}

// NewMPPublisher creates a multi-producer publisher gated on gates.
func NewMPPublisher(capacity int64, gates ...GatingSequence) *MPPublisher {
	p := &MPPublisher{capacity: capacity, gates: gates, avail: newAvailTracker(uint64(capacity))}
	p.claim.StoreRelease(-1)
	return p
}

// Next claims the next cursor or returns Full.
func (p *MPPublisher) Next() int64 {
	sw := spin.Wait{}
	for {
		c := p.claim.LoadAcquire()
		next := c + 1
		if next-p.capacity > minOf(p.gates) {
			return Full
		}
		if p.claim.CompareAndSwapAcqRel(c, next) {
			return next
		}
		sw.Once()
	}
}

// Done marks cursor as published.
func (p *MPPublisher) Done(cursor int64) {
	p.avail.mark(cursor)
}

// Published returns the highest contiguous published cursor.
func (p *MPPublisher) Published() GatingSequence {
	return p.avail
}
