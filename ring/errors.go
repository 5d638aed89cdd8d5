// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/iox"

// ErrFull and ErrEmpty alias the same underlying semantic error, exactly
// like Full and Empty alias the same cursor sentinel (-1): whether it
// means "no free slot" or "nothing published" depends on which side of
// the ring asked. ErrCollision aliases iox's retry-signal error.
//
// These exist only to let an embedding service that already classifies
// errors through [code.hybscloud.com/iox] fold ring's cursor sentinels
// into that same classification, via [ClassifyCursor]. The pipeline
// packages built on top of ring never call ClassifyCursor themselves: a
// Full/Empty/Collision cursor is control flow, not a failure, so they
// switch on the cursor value directly.
var (
	ErrFull      = iox.ErrWouldBlock
	ErrEmpty     = iox.ErrWouldBlock
	ErrCollision = iox.ErrMore
)

// ClassifyCursor maps a sentinel cursor value to its semantic error, or
// nil if cursor is a real, claimed position.
func ClassifyCursor(cursor int64) error {
	switch cursor {
	case Collision:
		return ErrCollision
	case Full: // == Empty
		return ErrFull
	default:
		return nil
	}
}

// IsWouldBlock reports whether cursor is the Full/Empty sentinel.
func IsWouldBlock(cursor int64) bool {
	return cursor == Full
}

// IsCollision reports whether cursor is the Collision sentinel.
func IsCollision(cursor int64) bool {
	return cursor == Collision
}
