// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring_test

import (
	"testing"

	"github.com/vectorframe/scanexec/ring"
)

func TestRingQueueCapRoundsToPowerOfTwo(t *testing.T) {
	cases := map[int]int64{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024, 1024: 1024}
	for in, want := range cases {
		q := ring.NewRingQueue[int](in)
		if got := q.Cap(); got != want {
			t.Fatalf("NewRingQueue(%d).Cap() = %d, want %d", in, got, want)
		}
	}
}

func TestSPSCRoundTrip(t *testing.T) {
	q := ring.NewRingQueue[string](4)
	gate := ring.NewFanOut()
	pub := ring.NewSPPublisher(q.Cap(), gate)
	sub := ring.NewSCSubscriber(pub.Published())
	gate.Attach(sub)

	for i := 0; i < 4; i++ {
		c := pub.Next()
		if ring.IsWouldBlock(c) {
			t.Fatalf("unexpected Full at i=%d", i)
		}
		*q.At(c) = "v"
		pub.Done(c)
	}
	if c := pub.Next(); !ring.IsWouldBlock(c) {
		t.Fatalf("Next() on full ring = %d, want Full", c)
	}

	for i := 0; i < 4; i++ {
		c := sub.Next()
		if ring.IsWouldBlock(c) {
			t.Fatalf("unexpected Empty at i=%d", i)
		}
		if *q.At(c) != "v" {
			t.Fatalf("slot %d payload corrupted", c)
		}
		sub.Done(c)
	}
	if c := sub.Next(); !ring.IsWouldBlock(c) {
		t.Fatalf("Next() on empty ring = %d, want Empty", c)
	}

	// Releasing consumed slots un-gates the publisher.
	if c := pub.Next(); ring.IsWouldBlock(c) {
		t.Fatalf("publisher still gated after subscriber drained")
	}
}

func TestMPPublisherGatesOnDownstreamSubscriber(t *testing.T) {
	q := ring.NewRingQueue[int](2)

	// NewMPPublisher needs its gates up front, but a subscriber needs the
	// publisher's Published() as its source. Break the cycle with a
	// tiny adapter sequence the publisher gates on, then attach the real
	// subscriber to the publisher once it exists.
	gate := ring.NewSequence(ring.Empty)
	pub := ring.NewMPPublisher(q.Cap(), gate)
	sub := ring.NewMCSubscriber(q.Cap(), pub.Published())

	for i := 0; i < 2; i++ {
		c := pub.Next()
		if ring.IsWouldBlock(c) {
			t.Fatalf("unexpected Full at i=%d", i)
		}
		*q.At(c) = i
		pub.Done(c)
	}
	if c := pub.Next(); !ring.IsWouldBlock(c) {
		t.Fatalf("Next() on full ring = %d, want Full (gated by empty subscriber progress)", c)
	}

	c := sub.Next()
	if ring.IsWouldBlock(c) {
		t.Fatalf("subscriber reports Empty despite two published slots")
	}
	sub.Done(c)
	gate.Store(sub.Current())

	if c := pub.Next(); ring.IsWouldBlock(c) {
		t.Fatalf("publisher still gated after one slot released")
	}
}

func TestMCSubscriberCollisionIsTransient(t *testing.T) {
	q := ring.NewRingQueue[int](8)
	pub := ring.NewSPPublisher(q.Cap())
	sub := ring.NewMCSubscriber(q.Cap(), pub.Published())

	for i := 0; i < 4; i++ {
		c := pub.Next()
		*q.At(c) = i
		pub.Done(c)
	}

	seen := map[int64]bool{}
	for len(seen) < 4 {
		c := sub.Next()
		switch {
		case ring.IsCollision(c):
			continue
		case ring.IsWouldBlock(c):
			t.Fatalf("ran out of published work before claiming 4 cursors, got %d", len(seen))
		default:
			if seen[c] {
				t.Fatalf("cursor %d claimed twice", c)
			}
			seen[c] = true
			sub.Done(c)
		}
	}
}

func TestFanOutGatesOnSlowestMember(t *testing.T) {
	fo := ring.NewFanOut()
	a := ring.NewSequence(5)
	b := ring.NewSequence(2)
	fo.Attach(a)
	fo.Attach(b)
	if got := fo.Current(); got != 2 {
		t.Fatalf("FanOut.Current() = %d, want 2 (slowest member)", got)
	}

	fo.Detach(b)
	if got := fo.Current(); got != 5 {
		t.Fatalf("FanOut.Current() after Detach(b) = %d, want 5", got)
	}
	if fo.Len() != 1 {
		t.Fatalf("FanOut.Len() = %d, want 1", fo.Len())
	}
}

func TestFanOutWithNoMembersDoesNotGate(t *testing.T) {
	fo := ring.NewFanOut()
	q := ring.NewRingQueue[int](2)
	pub := ring.NewMPPublisher(q.Cap(), fo)

	for i := 0; i < 2; i++ {
		if c := pub.Next(); ring.IsWouldBlock(c) {
			t.Fatalf("unexpected Full with no fan-out members at i=%d", i)
		} else {
			pub.Done(c)
		}
	}
}

func TestClassifyCursor(t *testing.T) {
	if err := ring.ClassifyCursor(ring.Full); err != ring.ErrFull {
		t.Fatalf("ClassifyCursor(Full) = %v, want ErrFull", err)
	}
	if err := ring.ClassifyCursor(ring.Collision); err != ring.ErrCollision {
		t.Fatalf("ClassifyCursor(Collision) = %v, want ErrCollision", err)
	}
	if err := ring.ClassifyCursor(0); err != nil {
		t.Fatalf("ClassifyCursor(0) = %v, want nil", err)
	}
}
