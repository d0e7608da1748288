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

// MergeEntry is the per-rowset state a HorizontalMerger keeps in its
// heap: the source iterator, its currently loaded chunk, a typed cursor
// over that chunk's encoded sort key, and the bookkeeping needed to
// forward row provenance.
//
// order is this entry's stable rank among the rowsets feeding one merge
// pass (its position in the caller's rowset list); it is the tie-break
// key whenever two entries expose an equal current primary key, so the
// output is deterministic across repeated compactions of the same
// inputs.
type MergeEntry[T any] struct {
	key KeyView[T]

	schema     *rowset.Schema
	sortKeyIdx []int
	encoder    rowset.KeyEncoder
	codec      KeyCodec[T]

	chunk *rowset.Chunk
	iter  rowset.ChunkIterator

	RowsetSegID   uint32
	Order         uint16
	NeedRowIdents bool
	rowIdents     []rowset.RowIdent

	// SourceMasks, when non-nil, is a caller-owned provenance log this
	// entry's *inner* segment-level merge appends to — used only when
	// the rowset this entry belongs to has overlapping segments and a
	// vertical key pass wants per-rowset replay information.
	SourceMasks *[]rowset.RowSourceMask

	release func()
	closed  bool
}

// newMergeEntry builds an entry bound to iter, ready for init.
func newMergeEntry[T any](schema *rowset.Schema, sortKeyIdx []int, encoder rowset.KeyEncoder,
	codec KeyCodec[T], chunk *rowset.Chunk, iter rowset.ChunkIterator, release func()) *MergeEntry[T] {
	return &MergeEntry[T]{
		schema:     schema,
		sortKeyIdx: sortKeyIdx,
		encoder:    encoder,
		codec:      codec,
		chunk:      chunk,
		iter:       iter,
		release:    release,
	}
}

// init loads the entry's first chunk. io.EOF means the source has no
// rows at all — the caller should close the entry and leave it out of
// the heap; any other error aborts the whole merge.
func (e *MergeEntry[T]) init() error {
	if e.iter == nil {
		return io.EOF
	}
	return e.next()
}

// next discards the just-consumed chunk, pulls the next one from the
// segment iterator, and refreshes the key cursor. Returns io.EOF when
// the source iterator is exhausted.
func (e *MergeEntry[T]) next() error {
	e.chunk.Reset()
	e.rowIdents = e.rowIdents[:0]

	var identsOut *[]rowset.RowIdent
	if e.NeedRowIdents {
		identsOut = &e.rowIdents
	}

	err := e.iter.Next(e.chunk, e.SourceMasks, identsOut)
	if err != nil {
		return err // io.EOF propagates unchanged, any other error aborts
	}

	keys, err := e.materializeKeys()
	if err != nil {
		return err
	}
	e.key.reset(keys)
	return nil
}

// materializeKeys decodes (or directly aliases) the active chunk's sort
// key into a []T, following the same "single non-nullable column is
// used directly, otherwise an encoder produces a byte sequence" split
// spec.md describes for the encoded sort key.
func (e *MergeEntry[T]) materializeKeys() ([]T, error) {
	n := e.chunk.NumRows()
	var cells [][]byte
	if e.encoder != nil {
		var err error
		cells, err = e.encoder.EncodeSortKey(e.schema, e.chunk, 0, n)
		if err != nil {
			return nil, err
		}
	} else {
		cells = e.chunk.Column(e.sortKeyIdx[0])
	}
	keys := make([]T, n)
	for i, raw := range cells {
		keys[i] = e.codec.Decode(raw)
	}
	return keys, nil
}

// RowIdents returns the (rssid, rowid) trail for the currently loaded
// chunk; empty unless NeedRowIdents is set.
func (e *MergeEntry[T]) RowIdents() []rowset.RowIdent { return e.rowIdents }

// Chunk returns the entry's currently loaded chunk.
func (e *MergeEntry[T]) Chunk() *rowset.Chunk { return e.chunk }

// close releases the chunk, iterator, and rowset guard, in that order,
// matching MergeEntry::close in the original. Safe to call more than
// once.
func (e *MergeEntry[T]) close() {
	if e.closed {
		return
	}
	e.closed = true
	e.chunk = nil
	if e.iter != nil {
		e.iter.Close()
		e.iter = nil
	}
	if e.release != nil {
		e.release()
		e.release = nil
	}
}
