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
	"fmt"
	"io"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// HorizontalMerger performs a single-pass k-way merge of N rowsets into
// one output, writing every column of every row together. It is also the
// engine a VerticalMerger's key pass runs internally — vertical merging
// only changes which schema columns are in play and what, if anything,
// the pass records as provenance.
type HorizontalMerger[T any] struct {
	schema     *rowset.Schema
	sortKeyIdx []int
	encoder    rowset.KeyEncoder
	codec      KeyCodec[T]
	charIdxes  []int

	entries   []*MergeEntry[T]
	heap      *entryHeap[T]
	chunkSize int

	// columnIdxes, when non-nil, restricts writes to AddColumns over
	// these column indices (a vertical-merge column group); nil means a
	// full-row AddChunk write.
	columnIdxes []int
	isKeyGroup  bool

	// mask, when non-nil, receives one RowSourceMask per output row,
	// recording which input entry it came from so a later vertical pass
	// can replay the exact row order without re-merging.
	mask *MaskBuffer

	needIdents bool

	writer rowset.Writer
	stats  *rowset.ReadStats

	// innerMasks holds, for every rowset whose segments overlap in key
	// range, the full in-memory provenance log its inner segment merge
	// produced — which segment each emitted row came from. A vertical
	// merge's non-key passes use this to replay a rowset's own segment
	// interleaving without recomputing it from keys the non-key column
	// groups don't carry.
	innerMasks map[uint16][]rowset.RowSourceMask
}

// NewHorizontalMerger builds a merger over rowsets, ready to run. chunkSize
// bounds how many rows each produced chunk holds; needRowIdents requests
// that MergeEntry track (rssid, rowid) so the writer can be handed them
// (used for delete-vector bookkeeping upstream of this package, which this
// package treats as opaque pass-through data).
func NewHorizontalMerger[T any](
	schema *rowset.Schema,
	sortKeyIdx []int,
	encoder rowset.KeyEncoder,
	codec KeyCodec[T],
	rowsets []rowset.Rowset,
	writer rowset.Writer,
	stats *rowset.ReadStats,
	chunkSize int,
	needRowIdents bool,
	mask *MaskBuffer,
) (*HorizontalMerger[T], error) {
	m := &HorizontalMerger[T]{
		schema:     schema,
		sortKeyIdx: sortKeyIdx,
		encoder:    encoder,
		codec:      codec,
		charIdxes:  schema.CharFieldIndexes(),
		heap:       newEntryHeap(codec.Less),
		chunkSize:  chunkSize,
		needIdents: needRowIdents,
		mask:       mask,
		writer:     writer,
		stats:      stats,
	}

	for order, rs := range rowsets {
		iter, overlapping, err := m.sourceIterator(rs)
		if err != nil && err != io.EOF {
			m.Close()
			return nil, fmt.Errorf("rowmerge: opening rowset %d: %w", rs.RowsetSegID(), err)
		}
		entry := newMergeEntry(schema, sortKeyIdx, encoder, codec, rowset.NewChunk(schema, chunkSize), iter, rs.Release)
		entry.Order = uint16(order)
		entry.RowsetSegID = rs.RowsetSegID()
		entry.NeedRowIdents = needRowIdents
		if overlapping {
			inner := make([]rowset.RowSourceMask, 0)
			entry.SourceMasks = &inner
			if m.innerMasks == nil {
				m.innerMasks = make(map[uint16][]rowset.RowSourceMask)
			}
		}

		if err := entry.init(); err != nil {
			if err == io.EOF {
				entry.close()
				continue
			}
			m.Close()
			return nil, fmt.Errorf("rowmerge: reading first chunk of rowset %d: %w", rs.RowsetSegID(), err)
		}
		m.entries = append(m.entries, entry)
		m.heap.Push(entry)
	}
	return m, nil
}

// sourceIterator returns the single ChunkIterator that feeds one rowset's
// MergeEntry: a concat of its segment iterators when they are already
// globally sorted with respect to one another, or an inner k-way merge
// across them when their key ranges can overlap. The second return value
// reports which case applied. A rowset with no segments yields a nil
// iterator and io.EOF; its entry then fails init with io.EOF and is
// closed and skipped.
func (m *HorizontalMerger[T]) sourceIterator(rs rowset.Rowset) (rowset.ChunkIterator, bool, error) {
	segs, err := rs.SegmentIterators(m.schema, m.chunkSize, m.stats)
	if err != nil {
		return nil, false, err
	}
	if len(segs) == 0 {
		return nil, false, io.EOF
	}
	if len(segs) == 1 || !rs.SegmentsOverlapping() {
		return newConcatIterator(segs), false, nil
	}
	it, err := newSegMergeIterator(m.schema, m.sortKeyIdx, m.encoder, m.codec, segs, m.chunkSize)
	return it, true, err
}

// WriteAll runs the merge to completion, emitting chunks to the writer
// until every source rowset is exhausted, then checks the accounting
// invariant (rows read must equal rows written) before returning.
func (m *HorizontalMerger[T]) WriteAll(ctx context.Context) (written int64, err error) {
	out := rowset.NewChunk(m.schema, m.chunkSize)
	var outMask []rowset.RowSourceMask
	var outIdents []rowset.RowIdent

	for {
		if ctx != nil && ctx.Err() != nil {
			return written, ErrCanceled
		}

		out.Reset()
		outMask = outMask[:0]
		outIdents = outIdents[:0]

		err := fillChunk(m.heap, out, m.chunkSize, maskSlicePtr(m.mask, &outMask), &outIdents, m.needIdents)
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}

		n := out.NumRows()
		if len(m.charIdxes) > 0 {
			rowset.PadCharColumns(m.schema, m.charIdxes, out)
		}
		if m.mask != nil {
			if err := m.mask.Write(outMask); err != nil {
				return written, err
			}
		}
		if err := m.writeOut(out, outIdents); err != nil {
			return written, err
		}
		written += int64(n)
	}

	for _, e := range m.entries {
		if e.SourceMasks != nil {
			m.innerMasks[e.Order] = *e.SourceMasks
		}
	}

	if m.stats != nil && m.stats.RawRowsRead != written {
		return written, accountingErrorf(m.stats.RawRowsRead, written)
	}
	return written, nil
}

// InnerMask returns the per-segment provenance log recorded for the
// rowset at position order during the merge, or nil if that rowset's
// segments never needed one (a single segment, or pre-sorted segments).
func (m *HorizontalMerger[T]) InnerMask(order uint16) []rowset.RowSourceMask {
	return m.innerMasks[order]
}

func (m *HorizontalMerger[T]) writeOut(chunk *rowset.Chunk, idents []rowset.RowIdent) error {
	if m.columnIdxes == nil {
		return m.writer.AddChunk(chunk, idents)
	}
	return m.writer.AddColumns(chunk, m.columnIdxes, m.isKeyGroup, idents)
}

// SetColumnGroup restricts this merger's writes to the given column
// indices via Writer.AddColumns instead of Writer.AddChunk. A
// VerticalMerger's key pass is an ordinary HorizontalMerger restricted
// this way, with isKey set and columnIdxes the sort-key column group.
func (m *HorizontalMerger[T]) SetColumnGroup(columnIdxes []int, isKey bool) {
	m.columnIdxes = columnIdxes
	m.isKeyGroup = isKey
}

// Close releases every still-open entry without flushing anything more to
// the writer; used on the error path out of NewHorizontalMerger.
func (m *HorizontalMerger[T]) Close() {
	for _, e := range m.entries {
		e.close()
	}
}

func maskSlicePtr(mb *MaskBuffer, slot *[]rowset.RowSourceMask) *[]rowset.RowSourceMask {
	if mb == nil {
		return nil
	}
	return slot
}
