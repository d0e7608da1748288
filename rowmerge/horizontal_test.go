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
	"encoding/binary"
	"testing"

	"github.com/sneller-contrib/rowmerge/rowset"
)

func intKeySchema() *rowset.Schema {
	return &rowset.Schema{
		Fields: []rowset.Field{
			{Name: "k", Type: rowset.Int},
			{Name: "v", Type: rowset.Varchar, IsChar: false},
		},
		SortKeyIdxes: []int{0},
	}
}

func intKeyRow(k int32, v string) [][]byte {
	return [][]byte{i32Cell(k), strCell(v)}
}

func keysOf(t *testing.T, w *memWriter) []int32 {
	t.Helper()
	keys := make([]int32, len(w.rows))
	for i, row := range w.rows {
		keys[i] = int32(binary.LittleEndian.Uint32(row[0]))
	}
	return keys
}

// Scenario: non-overlapping horizontal merge of two disjoint-key rowsets
// exercises the zero-copy whole-chunk swap fast path, since each
// rowset's entire contribution sorts ahead of (or behind) the other's.
func TestHorizontalNonOverlapping(t *testing.T) {
	schema := intKeySchema()
	rsA := &memRowset{segID: 1, segments: [][][][]byte{{
		intKeyRow(1, "a1"), intKeyRow(2, "a2"), intKeyRow(3, "a3"),
	}}}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{
		intKeyRow(4, "b4"), intKeyRow(5, "b5"), intKeyRow(6, "b6"),
	}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 16, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	written, err := m.WriteAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written != 6 {
		t.Fatalf("wrote %d rows, want 6", written)
	}
	got := keysOf(t, w)
	want := []int32{1, 2, 3, 4, 5, 6}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("row %d: got key %d, want %d (full: %v)", i, got[i], k, got)
		}
	}
	if !rsA.released || !rsB.released {
		t.Fatal("merge did not release its rowsets")
	}
}

// Scenario: keys interleaved across two rowsets, with a chunk size
// smaller than either rowset, merge into one sorted sequence across
// several output chunks, mixing elementwise, bulk-copy and swap rounds.
func TestHorizontalInterleaved(t *testing.T) {
	schema := intKeySchema()
	rsA := &memRowset{segID: 1, segments: [][][][]byte{{
		intKeyRow(1, "a1"), intKeyRow(4, "a4"), intKeyRow(7, "a7"), intKeyRow(8, "a8"),
	}}}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{
		intKeyRow(2, "b2"), intKeyRow(3, "b3"), intKeyRow(5, "b5"), intKeyRow(6, "b6"),
	}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 2, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	written, err := m.WriteAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written != 8 {
		t.Fatalf("wrote %d rows, want 8", written)
	}
	got := keysOf(t, w)
	want := []int32{1, 2, 3, 4, 5, 6, 7, 8}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("row %d: got key %d, want %d (full: %v)", i, got[i], k, got)
		}
	}
}

// Scenario: equal keys across rowsets break ties by the rowsets' input
// order, not by any property of the key itself.
func TestHorizontalEqualKeyTieBreak(t *testing.T) {
	schema := intKeySchema()
	rsA := &memRowset{segID: 1, segments: [][][][]byte{{intKeyRow(5, "first")}}}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{intKeyRow(5, "second")}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 16, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(w.rows) != 2 {
		t.Fatalf("wrote %d rows, want 2", len(w.rows))
	}
	if string(w.rows[0][1]) != "first" || string(w.rows[1][1]) != "second" {
		t.Fatalf("tie-break order wrong: got %q then %q", w.rows[0][1], w.rows[1][1])
	}
}

func varcharKeySchema() *rowset.Schema {
	return &rowset.Schema{
		Fields: []rowset.Field{
			{Name: "k", Type: rowset.Varchar},
			{Name: "v", Type: rowset.Int},
		},
		SortKeyIdxes: []int{0},
	}
}

// Scenario: variable-length byte-string keys merge lexicographically.
func TestHorizontalVarcharKeys(t *testing.T) {
	schema := varcharKeySchema()
	row := func(k string, v int32) [][]byte { return [][]byte{strCell(k), i32Cell(v)} }

	rsA := &memRowset{segID: 1, segments: [][][][]byte{{row("apple", 1), row("mango", 3)}}}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{row("banana", 2), row("pear", 4)}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[Bytes](schema, schema.SortKeyIdxes, nil, VarcharCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 16, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"apple", "banana", "mango", "pear"}
	for i, k := range want {
		if string(w.rows[i][0]) != k {
			t.Fatalf("row %d: got key %q, want %q", i, w.rows[i][0], k)
		}
	}
}

// Scenario: a rowset whose own segments overlap in key range drives an
// inner merge, and the inner provenance log it records has exactly as
// many entries as rows it contributed.
func TestHorizontalOverlappingSegments(t *testing.T) {
	schema := intKeySchema()
	rsA := &memRowset{
		segID: 1,
		segments: [][][][]byte{
			{intKeyRow(1, "a1"), intKeyRow(5, "a5")},
			{intKeyRow(2, "a2"), intKeyRow(6, "a6")},
		},
		overlapping: true,
	}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{intKeyRow(3, "b3"), intKeyRow(4, "b4")}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 16, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	written, err := m.WriteAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written != 6 {
		t.Fatalf("wrote %d rows, want 6", written)
	}
	got := keysOf(t, w)
	want := []int32{1, 2, 3, 4, 5, 6}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("row %d: got key %d, want %d (full: %v)", i, got[i], k, got)
		}
	}
	if inner := m.InnerMask(0); len(inner) != 4 {
		t.Fatalf("inner mask for overlapping rowset has %d entries, want 4", len(inner))
	}
	if inner := m.InnerMask(1); inner != nil {
		t.Fatalf("non-overlapping rowset should have no inner mask, got %d entries", len(inner))
	}
}

// Scenario: needRowIdents requests (rssid, rowid) provenance for every
// output row, the trail light PK compaction publish needs to reconcile
// delete bitmaps against a rowset it hasn't fully re-read yet.
func TestHorizontalRowIdentForwarding(t *testing.T) {
	schema := intKeySchema()
	rsA := &memRowset{segID: 1, segments: [][][][]byte{{
		intKeyRow(1, "a1"), intKeyRow(2, "a2"), intKeyRow(3, "a3"),
	}}}
	rsB := &memRowset{segID: 2, segments: [][][][]byte{{
		intKeyRow(4, "b4"), intKeyRow(5, "b5"), intKeyRow(6, "b6"),
	}}}

	w := newMemWriter(schema)
	stats := &rowset.ReadStats{}
	m, err := NewHorizontalMerger[int32](schema, schema.SortKeyIdxes, nil, IntCodec(),
		[]rowset.Rowset{rsA, rsB}, w, stats, 16, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	written, err := m.WriteAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []rowset.RowIdent{
		{RSSID: 1, RowID: 0}, {RSSID: 1, RowID: 1}, {RSSID: 1, RowID: 2},
		{RSSID: 2, RowID: 0}, {RSSID: 2, RowID: 1}, {RSSID: 2, RowID: 2},
	}
	if int64(len(want)) != written {
		t.Fatalf("wrote %d rows, want %d", written, len(want))
	}
	if len(w.idents) != len(want) {
		t.Fatalf("got %d idents, want %d", len(w.idents), len(want))
	}
	for i, id := range want {
		if w.idents[i] != id {
			t.Fatalf("ident %d: got %+v, want %+v", i, w.idents[i], id)
		}
	}
}
