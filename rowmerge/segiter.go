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

// concatIterator reads a rowset's segments one after another. It is only
// correct when the caller already knows the segments are mutually
// non-overlapping in primary key, i.e. Rowset.SegmentsOverlapping() is
// false — segment 0's keys all sort before segment 1's, and so on.
type concatIterator struct {
	segs []rowset.ChunkIterator
	idx  int
}

func newConcatIterator(segs []rowset.ChunkIterator) *concatIterator {
	return &concatIterator{segs: segs}
}

func (c *concatIterator) Next(dst *rowset.Chunk, masks *[]rowset.RowSourceMask, idents *[]rowset.RowIdent) error {
	for c.idx < len(c.segs) {
		err := c.segs[c.idx].Next(dst, masks, idents)
		if err == nil {
			return nil
		}
		if err != io.EOF {
			return err
		}
		c.segs[c.idx].Close()
		c.idx++
	}
	return io.EOF
}

func (c *concatIterator) Close() error {
	var first error
	for ; c.idx < len(c.segs); c.idx++ {
		if err := c.segs[c.idx].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// segMergeIterator presents a k-way merge across one rowset's overlapping
// segments as a single rowset.ChunkIterator, so the outer HorizontalMerger
// never needs to know whether a rowset's segments were pre-sorted with
// respect to each other.
type segMergeIterator[T any] struct {
	schema    *rowset.Schema
	heap      *entryHeap[T]
	chunkSize int
}

func newSegMergeIterator[T any](schema *rowset.Schema, sortKeyIdx []int, encoder rowset.KeyEncoder,
	codec KeyCodec[T], segs []rowset.ChunkIterator, chunkSize int) (*segMergeIterator[T], error) {

	s := &segMergeIterator[T]{
		schema:    schema,
		heap:      newEntryHeap(codec.Less),
		chunkSize: chunkSize,
	}
	for order, seg := range segs {
		entry := newMergeEntry(schema, sortKeyIdx, encoder, codec, rowset.NewChunk(schema, chunkSize), seg, nil)
		entry.Order = uint16(order)
		if err := entry.init(); err != nil {
			if err == io.EOF {
				entry.close()
				continue
			}
			s.Close()
			return nil, err
		}
		s.heap.Push(entry)
	}
	return s, nil
}

func (s *segMergeIterator[T]) Next(dst *rowset.Chunk, masks *[]rowset.RowSourceMask, idents *[]rowset.RowIdent) error {
	dst.Reset()
	wantIdents := idents != nil
	return fillChunk(s.heap, dst, s.chunkSize, masks, idents, wantIdents)
}

func (s *segMergeIterator[T]) Close() error {
	for s.heap.Len() > 0 {
		s.heap.Pop().close()
	}
	return nil
}
