// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

// RingQueue is a fixed-capacity array of slots addressed by cursor modulo
// capacity. Capacity rounds up to the next power of two. The slot payload
// is intentionally mutable and shared across producer/consumer handoffs;
// no per-message allocation happens on the hot path.
type RingQueue[T any] struct {
	buf      []T
	mask     uint64
	capacity uint64
}

// NewRingQueue creates a ring of the given capacity (rounded up to the
// next power of two). Every slot is zero-valued; callers that need a
// reusable payload (e.g. bus.ReduceTask's row list) initialize it
// lazily on first use and clear-not-free it between reuses.
func NewRingQueue[T any](capacity int) *RingQueue[T] {
	if capacity < 1 {
		panic("ring: capacity must be >= 1")
	}
	n := uint64(roundToPow2(capacity))
	return &RingQueue[T]{
		buf:      make([]T, n),
		mask:     n - 1,
		capacity: n,
	}
}

// Cap returns the physical slot count (a power of two).
func (q *RingQueue[T]) Cap() int64 {
	return int64(q.capacity)
}

// At returns a pointer to the slot addressed by cursor mod capacity. The
// caller must own the cursor (a publisher between Next and Done, or a
// subscriber between Next and Done) before touching the returned slot.
func (q *RingQueue[T]) At(cursor int64) *T {
	return &q.buf[uint64(cursor)&q.mask]
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
