// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pagecache implements the per-query page-address cache: a
// pre-sized, indexed table of per-frame column base addresses and row
// bounds, written once by dispatch before any reduce task for that frame
// is published, then read concurrently by reducers and collectors until
// cleanup clears it for reuse.
package pagecache

// Entry is the captured addressing for one frame: its partition, column
// base pointers, and the row range they cover, exactly as table.Frame
// describes it at dispatch time.
type Entry struct {
	Partition    uint32
	ColumnAddrs  []uintptr
	RowLo, RowHi uint32
}

// Cache is an append-only, indexed table of Entry, sized to a query's
// frame count at dispatch. There is no internal locking: the happens-
// before edge is the reduce queue handoff itself. A frame's Entry is
// written before its reduce task is published, and a reducer or
// collector never touches frame i before observing its task.
type Cache struct {
	entries []Entry
}

// New allocates a cache sized for frameCount frames, index 0..frameCount-1.
func New(frameCount int) *Cache {
	return &Cache{entries: make([]Entry, frameCount)}
}

// Set records e as frame index's addressing. Must happen before any
// reduce task referencing frameIndex is published.
func (c *Cache) Set(frameIndex int, e Entry) {
	c.entries[frameIndex] = e
}

// Get returns the addressing recorded for frameIndex.
func (c *Cache) Get(frameIndex int) Entry {
	return c.entries[frameIndex]
}

// Len returns the frame count the cache was sized for.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Clear resets every entry to its zero value for reuse, without
// shrinking the backing array.
func (c *Cache) Clear() {
	for i := range c.entries {
		c.entries[i] = Entry{}
	}
}
