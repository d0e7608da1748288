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
	"bytes"
	"context"
	"testing"

	"github.com/dchest/siphash"

	"github.com/sneller-contrib/rowmerge/rowset"
)

func rowHash(row [][]byte) uint64 {
	var buf bytes.Buffer
	for _, cell := range row {
		buf.Write(cell)
		buf.WriteByte(0)
	}
	lo, _ := siphash.Hash128(0, 0, buf.Bytes())
	return lo
}

// TestVerticalAlignment cross-checks the vertical-alignment invariant: a
// whole-row hash computed from the key pass plus every non-key column
// group's output, read back row by row, must equal the hash of the same
// logical row as originally stored — independent confirmation that
// replayGroup lined every column group up with the key pass, not just an
// assertion on individual field values.
func TestVerticalAlignment(t *testing.T) {
	schema := wideSchema()
	rsA := &memRowset{segID: 1, schema: schema, segments: [][][][]byte{{wideRow(1), wideRow(3), wideRow(5)}}}
	rsB := &memRowset{segID: 2, schema: schema, segments: [][][][]byte{{wideRow(2), wideRow(4), wideRow(6)}}}

	want := make(map[uint64]bool, 6)
	for _, k := range []int32{1, 2, 3, 4, 5, 6} {
		want[rowHash(wideRow(k))] = true
	}

	w := newMemWriter(schema)
	vm := NewVerticalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, 1<<20, 16, 2, false, 7, t.TempDir(), nil)
	if _, err := vm.WriteAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(w.rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(w.rows))
	}
	for i, row := range w.rows {
		h := rowHash(row)
		if !want[h] {
			t.Fatalf("row %d hash %x matches no expected input row %v", i, h, row)
		}
		delete(want, h)
	}
	if len(want) != 0 {
		t.Fatalf("%d expected rows never appeared in output", len(want))
	}
}
