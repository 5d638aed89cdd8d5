// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/atomix"

// Subscriber is the consumer side of a ring: Next claims the next
// claimable cursor (Empty if nothing published, Collision if a
// multi-consumer CAS claim lost a race), Done releases it and advances
// the subscriber's own gating position.
type Subscriber interface {
	GatingSequence
	// Next claims the next cursor, or Empty/Collision.
	Next() int64
	// Done releases cursor, advancing this subscriber's visible position.
	Done(cursor int64)
}

// SCSubscriber is a single-consumer subscriber: atomic load/store, no CAS.
type SCSubscriber struct {
	_      pad
	pos    atomix.Int64 // written only by the single consumer goroutine; read by gating publishers via Current
	_      pad
	source GatingSequence
}

// NewSCSubscriber creates a single-consumer subscriber gated on source
// (typically a Publisher.Published()), starting from the very beginning
// of source's cursor space. Only correct when source has never advanced
// past capacity, e.g. a ring that has not yet wrapped. A subscriber
// joining a long-lived shared ring after other traffic has already
// flowed through it must start from source's current position instead;
// use [NewSCSubscriberAt].
func NewSCSubscriber(source GatingSequence) *SCSubscriber {
	return NewSCSubscriberAt(source, -1)
}

// NewSCSubscriberAt creates a single-consumer subscriber gated on source,
// starting immediately after pos. A query attaching its collect
// subscriber to a shard it shares with other, longer-running queries must
// start here rather than at the beginning: the ring is a fixed-size
// circular buffer, so any cursor already behind the publisher by more
// than capacity has had its physical slot overwritten, and replaying it
// would read unrelated live data instead of nothing.
func NewSCSubscriberAt(source GatingSequence, pos int64) *SCSubscriber {
	s := &SCSubscriber{source: source}
	s.pos.StoreRelease(pos)
	return s
}

// Next returns the next claimable cursor or Empty.
func (s *SCSubscriber) Next() int64 {
	next := s.pos.LoadAcquire() + 1
	if next > s.source.Current() {
		return Empty
	}
	return next
}

// Done releases cursor.
func (s *SCSubscriber) Done(cursor int64) {
	s.pos.StoreRelease(cursor)
}

// Current returns this subscriber's own position.
func (s *SCSubscriber) Current() int64 {
	return s.pos.LoadAcquire()
}

// MCSubscriber is a multi-consumer subscriber: Next claims a cursor via
// CAS and returns Collision on a lost race, letting the caller spin or
// yield; Done marks the slot's own completion bit so Current() reports
// the highest cursor every member has finished, exactly like
// MPPublisher's availability tracker but in the consume direction.
type MCSubscriber struct {
	_      pad
	claim  atomix.Int64
	_      pad
	avail  *availTracker
	source GatingSequence
}

// NewMCSubscriber creates a multi-consumer subscriber of a ring with the
// given capacity, gated on source.
func NewMCSubscriber(capacity int64, source GatingSequence) *MCSubscriber {
	s := &MCSubscriber{source: source, avail: newAvailTracker(uint64(capacity))}
	s.claim.StoreRelease(-1)
	return s
}

// Next claims the next cursor, or Empty/Collision.
func (s *MCSubscriber) Next() int64 {
	c := s.claim.LoadAcquire()
	next := c + 1
	if next > s.source.Current() {
		return Empty
	}
	if s.claim.CompareAndSwapAcqRel(c, next) {
		return next
	}
	return Collision
}

// Done releases cursor.
func (s *MCSubscriber) Done(cursor int64) {
	s.avail.mark(cursor)
}

// Current returns the highest cursor every concurrent claimant has
// finished, contiguous from the start.
func (s *MCSubscriber) Current() int64 {
	return s.avail.Current()
}
