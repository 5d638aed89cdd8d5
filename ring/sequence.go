// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
)

// Special cursor values returned by [Publisher.Next] and [Subscriber.Next].
const (
	// Full is returned by a publisher when the slowest of its gating
	// sequences leaves the ring no free slot.
	Full int64 = -1
	// Empty is returned by a subscriber when nothing has been published
	// past its current position.
	Empty int64 = -1
	// Collision is returned by a multi-consumer subscriber when its CAS
	// claim lost a race; the caller should retry.
	Collision int64 = -2
)

// pad prevents false sharing between a hot cursor and its neighbors in a
// struct.
type pad [64]byte

// Sequence is a cache-line-padded monotonic cursor. It is the building
// block for every publisher and subscriber in this package, and also
// implements [GatingSequence] directly so a bare Sequence can sit in a
// gating chain.
type Sequence struct {
	_     pad
	value atomix.Int64
	_     pad
}

// NewSequence returns a Sequence initialized to v.
func NewSequence(v int64) *Sequence {
	s := &Sequence{}
	s.value.StoreRelease(v)
	return s
}

// Current returns the current cursor value with acquire semantics.
func (s *Sequence) Current() int64 {
	return s.value.LoadAcquire()
}

// Store sets the cursor value with release semantics. Used to bridge a
// gate across two sequences that can't reference each other at
// construction time (a publisher's gate and the subscriber built from
// that publisher's own Published()), and by tests driving a bare
// Sequence as a stand-in gate.
func (s *Sequence) Store(v int64) {
	s.value.StoreRelease(v)
}

// GatingSequence is anything a publisher can gate its advance on. A
// [Subscriber] and a [FanOut] barrier both implement it; a publisher
// refuses to hand out a cursor that would overwrite a slot still visible
// to the minimum of its gating sequences.
type GatingSequence interface {
	Current() int64
}

// minOf returns the minimum Current() across gates, or math.MaxInt64 if
// gates is empty. An ungated publisher, or one gated only on a FanOut
// with no members attached, never blocks on downstream consumption.
func minOf(gates []GatingSequence) int64 {
	if len(gates) == 0 {
		return 1<<63 - 1
	}
	m := gates[0].Current()
	for _, g := range gates[1:] {
		if c := g.Current(); c < m {
			m = c
		}
	}
	return m
}
