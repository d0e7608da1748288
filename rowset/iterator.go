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

// RowIdent names the physical origin of one row: the segment it came
// from (rssid, short for rowset-segment id) and its row number within
// that segment. The merger forwards these unmodified so a writer can
// build lightweight update-publish provenance, when requested.
type RowIdent struct {
	RSSID uint32
	RowID uint32
}

// RowSourceMask is a single provenance tag appended to a MaskBuffer: which
// input (by insertion order) produced an output row, and whether that
// row is itself the result of an aggregate (always false for the plain
// rowset merge; the field exists because it is part of the tag StarRocks'
// RowSourceMask carries, and callers downstream of the merger may set it).
type RowSourceMask struct {
	SourceOrder   uint16
	AggregateFlag bool
}

// ChunkIterator yields sorted chunks of at most some implementation-chosen
// chunk size. EndOfFile is signaled with io.EOF, exactly like any other Go
// reader — there is no separate sentinel type for it.
//
// masks and idents are both optional output parameters: pass nil when the
// caller does not need that bookkeeping (masks when no MaskBuffer is
// attached, idents when enable_light_pk_compaction_publish is unset). When
// non-nil, the iterator appends one entry per emitted row.
type ChunkIterator interface {
	Next(dst *Chunk, masks *[]RowSourceMask, idents *[]RowIdent) error
	Close() error
}

// KeyEncoder maps the schema's sort-key columns for rows [start, end) of
// chunk into a single comparable byte sequence per row, used whenever the
// sort key is multi-column or its lone column is nullable. It is the Go
// counterpart of PrimaryKeyEncoder::encode_sort_key; the merger treats it
// as an opaque collaborator.
type KeyEncoder interface {
	EncodeSortKey(schema *Schema, chunk *Chunk, start, end int) ([][]byte, error)
}

// ReadStats accumulates reader-side counters across a merge pass. The
// merger cross-checks RawRowsRead against the rows it actually writes at
// the end of every pass (spec invariant: accounting mismatch aborts).
type ReadStats struct {
	RawRowsRead        int64
	RowsDelVecFiltered int64
}

// Rowset is one immutable, sorted batch of rows produced by a single
// write, itself made of one or more segments. SegmentsOverlapping
// reports whether those segments need an inner k-way merge (true) or can
// simply be concatenated (false).
type Rowset interface {
	RowsetSegID() uint32
	NumRows() int
	NumSegments() int
	DataDiskSize() uint64
	SegmentsOverlapping() bool

	// SegmentIterators returns one ChunkIterator per segment, sorted
	// within each segment by schema's sort key. An empty, nil-error
	// result means the rowset has no rows at this version.
	SegmentIterators(schema *Schema, chunkSize int, stats *ReadStats) ([]ChunkIterator, error)

	// Release drops the caller's hold on the rowset's underlying
	// storage, mirroring RowsetReleaseGuard's destruction.
	Release()
}

// Writer is the rowset writer the merger hands its merged output to.
type Writer interface {
	// AddChunk appends chunk in horizontal (single-pass) mode.
	AddChunk(chunk *Chunk, idents []RowIdent) error
	// AddColumns appends only the named columns of chunk, used by the
	// vertical strategy: isKey marks the key-group pass.
	AddColumns(chunk *Chunk, columnIdxes []int, isKey bool, idents []RowIdent) error

	Flush() error
	FlushColumns() error
	FinalFlush() error

	TotalDataSize() uint64
}
