// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rowmerge

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// TestHorizontalMergeInvariants builds a random handful of rowsets with
// random (possibly duplicate) keys and checks, for many seeds, that the
// merge output is non-decreasing by key and conserves the total row
// count — invariant 1 (global sortedness) and invariant 2 (row
// conservation).
func TestHorizontalMergeInvariants(t *testing.T) {
	for seed := int64(0); seed < 40; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		schema := intKeySchema()

		numRowsets := 1 + rnd.Intn(8)
		var rowsets []rowset.Rowset
		var totalIn int

		for i := 0; i < numRowsets; i++ {
			keys := make([]int, 1+rnd.Intn(12))
			for j := range keys {
				keys[j] = rnd.Intn(50)
			}
			// sort ascending (a single-segment rowset must already be
			// internally sorted; the merger does not sort, only merges).
			for a := 1; a < len(keys); a++ {
				for b := a; b > 0 && keys[b-1] > keys[b]; b-- {
					keys[b-1], keys[b] = keys[b], keys[b-1]
				}
			}
			var seg [][][]byte
			for _, k := range keys {
				seg = append(seg, intKeyRow(int32(k), "v"))
			}
			rowsets = append(rowsets, &memRowset{segID: uint32(i + 1), segments: [][][][]byte{seg}})
			totalIn += len(keys)
		}

		w := newMemWriter(schema)
		stats := &rowset.ReadStats{}
		m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
			rowsets, w, stats, 1+rnd.Intn(6), false, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		written, err := m.WriteAll(context.Background())
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if int(written) != totalIn {
			t.Fatalf("seed %d: wrote %d rows, want %d", seed, written, totalIn)
		}
		if len(w.rows) != totalIn {
			t.Fatalf("seed %d: writer saw %d rows, want %d", seed, len(w.rows), totalIn)
		}
		got := keysOf(t, w)
		for i := 1; i < len(got); i++ {
			if got[i-1] > got[i] {
				t.Fatalf("seed %d: output not sorted at %d: %v", seed, i, got)
			}
		}
	}
}
