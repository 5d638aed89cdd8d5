// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rowid_test

import (
	"testing"

	"github.com/vectorframe/scanexec/rowid"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct{ partition, local uint32 }{
		{0, 0},
		{1, 0},
		{0, 1},
		{42, 1337},
		{0xffffffff, 0xffffffff},
	}
	for _, c := range cases {
		id := rowid.Pack(c.partition, c.local)
		if got := id.Partition(); got != c.partition {
			t.Fatalf("Pack(%d,%d).Partition() = %d, want %d", c.partition, c.local, got, c.partition)
		}
		if got := id.Local(); got != c.local {
			t.Fatalf("Pack(%d,%d).Local() = %d, want %d", c.partition, c.local, got, c.local)
		}
	}
}

func TestPackIsBijective(t *testing.T) {
	seen := map[rowid.ID]bool{}
	for p := uint32(0); p < 4; p++ {
		for l := uint32(0); l < 4; l++ {
			id := rowid.Pack(p, l)
			if seen[id] {
				t.Fatalf("collision packing (%d,%d)", p, l)
			}
			seen[id] = true
		}
	}
}
