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

	"golang.org/x/exp/slices"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// DefaultMaxColumnsPerGroup bounds how many non-key columns one column
// group holds, absent an explicit override
// (vertical_compaction_max_columns_per_group).
const DefaultMaxColumnsPerGroup = 5

// VerticalMerger runs a two-pass compaction: a key pass that merges the
// sort-key columns exactly like a HorizontalMerger (and records, for
// every output row, which input rowset it came from), followed by one
// pass per remaining column group that replays that same row order from
// recorded provenance instead of re-merging.
//
// Vertical merging trades one extra full read of every non-key column
// for a much smaller working set per pass — only one column group's
// worth of cells needs to be resident at a time, instead of every
// column of every row.
type VerticalMerger[T any] struct {
	schema          *rowset.Schema
	sortKeyIdx      []int
	encoder         rowset.KeyEncoder
	codec           KeyCodec[T]
	rowsets         []rowset.Rowset
	writer          rowset.Writer
	memLimit        int64
	defaultChunk    int
	maxColsPerGroup int
	needRowIdents   bool
	tabletID        int64
	spillDir        string
	footprint       func(rowset.Rowset, *rowset.Schema) int64

	chunkSizeOverride int
	tabletIsRowStore  bool
}

// SetChunkSizeOverride mirrors update_compaction_chunk_size_for_row_store:
// override only wins when the tablet is a row store, and then applies to
// every column-group pass, not just the key pass.
func (v *VerticalMerger[T]) SetChunkSizeOverride(override int, isRowStore bool) {
	v.chunkSizeOverride = override
	v.tabletIsRowStore = isRowStore
}

// chunkSizeFor picks the chunk size for one column group's pass, applying
// the row-store override gate on top of ChunkSizer's estimate.
func (v *VerticalMerger[T]) chunkSizeFor(groupSchema *rowset.Schema) int {
	size := SizeForColumnGroup(groupSchema, v.rowsets, v.memLimit, v.defaultChunk, v.footprint)
	if v.tabletIsRowStore && v.chunkSizeOverride > 0 {
		size = v.chunkSizeOverride
	}
	return size
}

// NewVerticalMerger builds a vertical merger. footprint estimates a
// rowset's total byte footprint for a given column-group schema, used by
// ChunkSizer; a nil footprint falls back to defaultChunkSize for every
// pass.
func NewVerticalMerger[T any](
	schema *rowset.Schema,
	sortKeyIdx []int,
	encoder rowset.KeyEncoder,
	codec KeyCodec[T],
	rowsets []rowset.Rowset,
	writer rowset.Writer,
	memLimit int64,
	defaultChunkSize int,
	maxColsPerGroup int,
	needRowIdents bool,
	tabletID int64,
	spillDir string,
	footprint func(rowset.Rowset, *rowset.Schema) int64,
) *VerticalMerger[T] {
	if maxColsPerGroup <= 0 {
		maxColsPerGroup = DefaultMaxColumnsPerGroup
	}
	return &VerticalMerger[T]{
		schema:          schema,
		sortKeyIdx:      sortKeyIdx,
		encoder:         encoder,
		codec:           codec,
		rowsets:         rowsets,
		writer:          writer,
		memLimit:        memLimit,
		defaultChunk:    defaultChunkSize,
		maxColsPerGroup: maxColsPerGroup,
		needRowIdents:   needRowIdents,
		tabletID:        tabletID,
		spillDir:        spillDir,
		footprint:       footprint,
	}
}

// columnGroups splits the schema into group 0 (the sort-key columns, in
// schema order) followed by the remaining columns chunked to at most
// maxColsPerGroup each — the Go counterpart of split_column_into_groups.
func (v *VerticalMerger[T]) columnGroups() [][]int {
	groups := [][]int{append([]int(nil), v.sortKeyIdx...)}
	var rest []int
	for i := 0; i < v.schema.NumFields(); i++ {
		if !slices.Contains(v.sortKeyIdx, i) {
			rest = append(rest, i)
		}
	}
	for len(rest) > 0 {
		n := v.maxColsPerGroup
		if n > len(rest) {
			n = len(rest)
		}
		groups = append(groups, rest[:n])
		rest = rest[n:]
	}
	return groups
}

// WriteAll runs the key pass followed by one pass per remaining column
// group, returning the row count the key pass wrote (every subsequent
// pass must write exactly that many rows, or the merge is inconsistent).
func (v *VerticalMerger[T]) WriteAll(ctx context.Context) (int64, error) {
	groups := v.columnGroups()
	groupSchema := v.schema.Project(groups[0])
	chunkSize := v.chunkSizeFor(groupSchema)

	globalMask := NewMaskBuffer(v.tabletID, v.spillDir, 0)
	defer globalMask.Close()

	stats := &rowset.ReadStats{}
	keyMerger, err := NewHorizontalMerger(groupSchema, groupSchema.SortKeyIdxes, v.encoder, v.codec,
		v.rowsets, v.writer, stats, chunkSize, v.needRowIdents, globalMask)
	if err != nil {
		return 0, fmt.Errorf("rowmerge: vertical key pass setup: %w", err)
	}
	keyMerger.SetColumnGroup(groups[0], true)

	totalRows, err := keyMerger.WriteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("rowmerge: vertical key pass: %w", err)
	}
	if err := v.writer.FlushColumns(); err != nil {
		return 0, fmt.Errorf("rowmerge: flushing key column group: %w", err)
	}

	innerMasks := make(map[uint16][]rowset.RowSourceMask, len(v.rowsets))
	for order := range v.rowsets {
		if m := keyMerger.InnerMask(uint16(order)); m != nil {
			innerMasks[uint16(order)] = m
		}
	}

	for _, group := range groups[1:] {
		if ctx != nil && ctx.Err() != nil {
			return totalRows, ErrCanceled
		}
		if err := globalMask.FlipToRead(); err != nil {
			return totalRows, err
		}
		groupChunkSize := v.chunkSizeFor(v.schema.Project(group))
		n, err := v.replayGroup(group, innerMasks, globalMask, totalRows, groupChunkSize)
		if err != nil {
			return totalRows, fmt.Errorf("rowmerge: vertical replay of column group: %w", err)
		}
		if n != totalRows {
			return totalRows, accountingErrorf(totalRows, n)
		}
		if err := v.writer.FlushColumns(); err != nil {
			return totalRows, fmt.Errorf("rowmerge: flushing column group: %w", err)
		}
	}

	return totalRows, nil
}

// replayGroup reproduces the key pass's exact output row order for one
// non-key column group, pulling one row at a time from whichever
// rowset globalMask names next, without any key comparisons. The pass
// keeps its own ReadStats and fails with ErrAccountingMismatch unless its
// readers report exactly totalRows rows read.
func (v *VerticalMerger[T]) replayGroup(columnIdxes []int, innerMasks map[uint16][]rowset.RowSourceMask, globalMask *MaskBuffer, totalRows int64, chunkSize int) (int64, error) {
	groupSchema := v.schema.Project(columnIdxes)

	stats := &rowset.ReadStats{}
	srcs := make([]rowset.ChunkIterator, len(v.rowsets))
	var segMasks []*MaskBuffer
	for i, rs := range v.rowsets {
		segs, err := rs.SegmentIterators(groupSchema, chunkSize, stats)
		if err != nil {
			return 0, err
		}
		if inner, ok := innerMasks[uint16(i)]; ok && len(segs) > 1 {
			segMask := NewMaskBuffer(v.tabletID, v.spillDir, 0)
			if err := segMask.Write(inner); err != nil {
				return 0, err
			}
			if err := segMask.FlipToRead(); err != nil {
				return 0, err
			}
			segMasks = append(segMasks, segMask)
			srcs[i] = newMaskReplayIterator(groupSchema, segMask, segs, chunkSize)
		} else {
			srcs[i] = newConcatIterator(segs)
		}
	}
	defer func() {
		for _, s := range srcs {
			if s != nil {
				s.Close()
			}
		}
		for _, mb := range segMasks {
			mb.Close()
		}
	}()

	replay := newMaskReplayIterator(groupSchema, globalMask, srcs, chunkSize)
	defer replay.Close()

	out := rowset.NewChunk(groupSchema, chunkSize)
	var written int64
	for {
		out.Reset()
		err := replay.Next(out, nil, nil)
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
		n := out.NumRows()
		if n == 0 {
			break
		}
		if err := v.writer.AddColumns(out, columnIdxes, false, nil); err != nil {
			return written, err
		}
		written += int64(n)
	}
	if stats.RawRowsRead != totalRows {
		return written, accountingErrorf(stats.RawRowsRead, totalRows)
	}
	return written, nil
}
