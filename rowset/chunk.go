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

package rowset

// Chunk is a column-oriented batch of up to some caller-chosen number of
// rows. Cell payloads are opaque to the merger — it never interprets a
// non-key cell's bytes, only copies them — so a Chunk keeps each column
// as a plain slice of raw cell bytes, the same "the merger doesn't care
// what a column holds" contract Chunk::append/swap_chunk have in the
// original.
//
// Chunks are reused: Reset truncates every column back to zero rows
// without releasing the backing arrays, so a small fixed pool of chunks
// (one per input rowset, one for the output) can be recycled across the
// whole merge.
type Chunk struct {
	schema *Schema
	cols   [][][]byte
}

// NewChunk allocates a Chunk for schema with room for capacity rows per
// column.
func NewChunk(schema *Schema, capacity int) *Chunk {
	c := &Chunk{
		schema: schema,
		cols:   make([][][]byte, schema.NumFields()),
	}
	for i := range c.cols {
		c.cols[i] = make([][]byte, 0, capacity)
	}
	return c
}

// Schema returns the chunk's schema.
func (c *Chunk) Schema() *Schema { return c.schema }

// NumRows reports how many rows are currently buffered.
func (c *Chunk) NumRows() int {
	if len(c.cols) == 0 {
		return 0
	}
	return len(c.cols[0])
}

// Reset truncates every column to zero rows, keeping backing capacity.
func (c *Chunk) Reset() {
	for i := range c.cols {
		c.cols[i] = c.cols[i][:0]
	}
}

// Column returns the raw cell bytes for field idx, one entry per row.
func (c *Chunk) Column(idx int) [][]byte { return c.cols[idx] }

// AppendRow appends one row's cells (len(cells) == schema.NumFields()) to
// the chunk.
func (c *Chunk) AppendRow(cells [][]byte) {
	for i, cell := range cells {
		c.cols[i] = append(c.cols[i], cell)
	}
}

// Append copies rows [start, start+n) of src onto the end of c, column
// by column. This is the bulk-copy primitive the horizontal merger's
// run-extension fast paths rely on.
func (c *Chunk) Append(src *Chunk, start, n int) {
	for i := range c.cols {
		c.cols[i] = append(c.cols[i], src.cols[i][start:start+n]...)
	}
}

// Swap exchanges the contents of c and other in place — the zero-copy
// "whole-entry run" fast path swaps an exhausted source chunk directly
// into the output chunk this way instead of copying every cell.
func (c *Chunk) Swap(other *Chunk) {
	c.cols, other.cols = other.cols, c.cols
}

// PadCharColumns space-pads every CHAR column named in idxes out to its
// declared width. Called once per emitted chunk, after the merge and
// before handing the chunk to the writer, matching
// ChunkHelper::padding_char_columns in the original.
func PadCharColumns(schema *Schema, idxes []int, c *Chunk) {
	for _, idx := range idxes {
		width := schema.Field(idx).CharWidth
		col := c.cols[idx]
		for i, cell := range col {
			if len(cell) >= width {
				continue
			}
			padded := make([]byte, width)
			copy(padded, cell)
			for j := len(cell); j < width; j++ {
				padded[j] = ' '
			}
			col[i] = padded
		}
	}
}
