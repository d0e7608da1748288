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
	"encoding/binary"
	"io"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// memRowset is an in-memory rowset.Rowset: one or more segments, each a
// plain row-major [][]cell matrix sliced into columns on demand. It is
// test-only plumbing, not a stand-in for a real segment reader.
type memRowset struct {
	segID       uint32
	schema      *rowset.Schema // this rowset's native, full-width column layout
	segments    [][][][]byte   // segment -> row -> column -> cell, indexed by native schema
	overlapping bool
	released    bool
}

func i32Cell(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func strCell(s string) []byte { return []byte(s) }

func (r *memRowset) RowsetSegID() uint32 { return r.segID }

func (r *memRowset) NumRows() int {
	n := 0
	for _, seg := range r.segments {
		n += len(seg)
	}
	return n
}

func (r *memRowset) NumSegments() int { return len(r.segments) }

func (r *memRowset) DataDiskSize() uint64 { return uint64(r.NumRows() * 16) }

func (r *memRowset) SegmentsOverlapping() bool { return r.overlapping }

// projection resolves, for each field of a requested (possibly
// column-group-projected) schema, which native column index holds it —
// matched by name, standing in for the field-UID lookup a real rowset
// would do.
func (r *memRowset) projection(want *rowset.Schema) []int {
	if r.schema == nil {
		idx := make([]int, want.NumFields())
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, want.NumFields())
	for i := 0; i < want.NumFields(); i++ {
		name := want.Field(i).Name
		for j := 0; j < r.schema.NumFields(); j++ {
			if r.schema.Field(j).Name == name {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func (r *memRowset) SegmentIterators(schema *rowset.Schema, chunkSize int, stats *rowset.ReadStats) ([]rowset.ChunkIterator, error) {
	proj := r.projection(schema)
	iters := make([]rowset.ChunkIterator, len(r.segments))
	for i, seg := range r.segments {
		iters[i] = &memSegIterator{
			rsid:      r.segID,
			rows:      seg,
			proj:      proj,
			chunkSize: chunkSize,
			stats:     stats,
		}
	}
	return iters, nil
}

func (r *memRowset) Release() { r.released = true }

type memSegIterator struct {
	rsid      uint32
	rows      [][][]byte
	proj      []int // requested schema field i -> native column index
	pos       int
	chunkSize int
	stats     *rowset.ReadStats
}

func (m *memSegIterator) Next(dst *rowset.Chunk, _ *[]rowset.RowSourceMask, idents *[]rowset.RowIdent) error {
	if m.pos >= len(m.rows) {
		return io.EOF
	}
	n := m.chunkSize
	if rem := len(m.rows) - m.pos; n > rem {
		n = rem
	}
	for i := 0; i < n; i++ {
		native := m.rows[m.pos+i]
		cells := make([][]byte, len(m.proj))
		for f, col := range m.proj {
			cells[f] = native[col]
		}
		dst.AppendRow(cells)
		if idents != nil {
			*idents = append(*idents, rowset.RowIdent{RSSID: m.rsid, RowID: uint32(m.pos + i)})
		}
	}
	if m.stats != nil {
		m.stats.RawRowsRead += int64(n)
	}
	m.pos += n
	return nil
}

func (m *memSegIterator) Close() error { return nil }

// memWriter collects whatever HorizontalMerger/VerticalMerger write,
// either as full rows (AddChunk) or column group slices (AddColumns), so
// a test can assert on the reassembled output.
type memWriter struct {
	schema       *rowset.Schema
	rows         [][][]byte
	idents       []rowset.RowIdent
	dataSz       uint64
	nonKeyCursor int
}

func newMemWriter(schema *rowset.Schema) *memWriter {
	return &memWriter{schema: schema}
}

func (w *memWriter) AddChunk(chunk *rowset.Chunk, idents []rowset.RowIdent) error {
	n := chunk.NumRows()
	for i := 0; i < n; i++ {
		row := make([][]byte, w.schema.NumFields())
		for f := range row {
			row[f] = chunk.Column(f)[i]
			w.dataSz += uint64(len(row[f]))
		}
		w.rows = append(w.rows, row)
	}
	w.idents = append(w.idents, idents...)
	return nil
}

func (w *memWriter) AddColumns(chunk *rowset.Chunk, columnIdxes []int, isKey bool, idents []rowset.RowIdent) error {
	n := chunk.NumRows()
	base := len(w.rows)
	if isKey {
		for i := 0; i < n; i++ {
			w.rows = append(w.rows, make([][]byte, w.schema.NumFields()))
		}
		w.idents = append(w.idents, idents...)
	} else {
		base = w.nonKeyCursor
		w.nonKeyCursor += n
	}
	for i := 0; i < n; i++ {
		for ci, colIdx := range columnIdxes {
			cell := chunk.Column(ci)[i]
			w.rows[base+i][colIdx] = cell
			w.dataSz += uint64(len(cell))
		}
	}
	return nil
}

func (w *memWriter) Flush() error { return nil }
func (w *memWriter) FlushColumns() error {
	w.nonKeyCursor = 0
	return nil
}
func (w *memWriter) FinalFlush() error  { return nil }
func (w *memWriter) TotalDataSize() uint64 { return w.dataSz }
