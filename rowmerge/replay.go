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
	"io"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// maskReplayIterator reproduces a previously recorded row order across a
// set of sources without any key comparisons: for every row, mask names
// which source it came from, and that source's next physical row is
// taken verbatim. It is how a VerticalMerger's non-key column groups
// line up with the key pass's output — those groups carry no sort key,
// so they have no way to recompute the interleaving themselves.
type maskReplayIterator struct {
	schema    *rowset.Schema
	mask      *MaskBuffer
	srcs      []rowset.ChunkIterator
	chunkSize int

	cur []*rowset.Chunk
	pos []int
}

func newMaskReplayIterator(schema *rowset.Schema, mask *MaskBuffer, srcs []rowset.ChunkIterator, chunkSize int) *maskReplayIterator {
	cur := make([]*rowset.Chunk, len(srcs))
	for i := range cur {
		cur[i] = rowset.NewChunk(schema, chunkSize)
	}
	return &maskReplayIterator{
		schema:    schema,
		mask:      mask,
		srcs:      srcs,
		chunkSize: chunkSize,
		cur:       cur,
		pos:       make([]int, len(srcs)),
	}
}

func (r *maskReplayIterator) Next(dst *rowset.Chunk, _ *[]rowset.RowSourceMask, _ *[]rowset.RowIdent) error {
	appended := 0
	for {
		tag, err := r.mask.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		src := int(tag.SourceOrder)
		if r.pos[src] >= r.cur[src].NumRows() {
			r.cur[src].Reset()
			if err := r.srcs[src].Next(r.cur[src], nil, nil); err != nil {
				return err
			}
			r.pos[src] = 0
		}

		cells := make([][]byte, r.schema.NumFields())
		for f := 0; f < r.schema.NumFields(); f++ {
			cells[f] = r.cur[src].Column(f)[r.pos[src]]
		}
		dst.AppendRow(cells)
		r.pos[src]++
		appended++

		if dst.NumRows() >= r.chunkSize {
			break
		}
	}
	if appended == 0 {
		return io.EOF
	}
	return nil
}

func (r *maskReplayIterator) Close() error {
	var first error
	for _, s := range r.srcs {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
