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

// dominatesRest reports whether top's entire remaining view — every row
// it has left, not just the current one — sorts ahead of whatever the
// rest of the heap will produce next. When true, top's whole remaining
// run can be moved in one shot instead of row by row.
func dominatesRest[T any](h *entryHeap[T], top *MergeEntry[T]) bool {
	if h.Len() == 0 {
		return true
	}
	next := h.Top()
	lastKey := top.key.Last()
	nextKey := next.key.Peek()
	if h.less(lastKey, nextKey) {
		return true
	}
	if h.less(nextKey, lastKey) {
		return false
	}
	return top.Order < next.Order
}

// recordProvenance appends n rows' worth of provenance for entry, starting
// at its key view's current offset, to outMasks/outIdents as requested.
func recordProvenance[T any](entry *MergeEntry[T], n int, outMasks *[]rowset.RowSourceMask, outIdents *[]rowset.RowIdent, wantIdents bool) {
	if outMasks != nil {
		mask := rowset.RowSourceMask{SourceOrder: entry.Order}
		for i := 0; i < n; i++ {
			*outMasks = append(*outMasks, mask)
		}
	}
	if wantIdents && outIdents != nil {
		offset := entry.key.Offset()
		idents := entry.RowIdents()
		*outIdents = append(*outIdents, idents[offset:offset+n]...)
	}
}

// refillOrClose pulls the next chunk for entry after its current view has
// been fully consumed. An io.EOF result closes and drops the entry (it
// contributes nothing further); any other error propagates to the caller,
// which aborts the whole merge. On success the entry is pushed back onto h.
func refillOrClose[T any](h *entryHeap[T], entry *MergeEntry[T]) error {
	err := entry.next()
	if err == nil {
		h.Push(entry)
		return nil
	}
	if err == io.EOF {
		entry.close()
		return nil
	}
	return err
}

// mergeRound pops the current heap minimum and advances it by one of the
// three tiers from the original rowset_merger.cpp get_next:
//
//  1. zero-copy swap: top's whole remaining view dominates everything
//     else, the view is still at the very start of its chunk, and it all
//     fits within the room left in dst — the source chunk is swapped
//     directly into dst instead of being copied cell by cell.
//  2. bulk copy: top's whole remaining view dominates, but the swap
//     preconditions don't hold (view mid-chunk, or only part of it fits)
//     — the dominated prefix is appended in one Chunk.Append call.
//  3. elementwise with run extension: top does not unconditionally
//     dominate the rest of the heap, so rows are walked one at a time,
//     comparing the advancing cursor against the (unchanging) next-
//     smallest heap entry; the whole monotone run just walked is still
//     applied as a single bulk copy once it breaks.
//
// It returns the number of rows appended to dst and whether the round
// took tier 1 or 2 (after which the caller ends the current chunk); a
// non-nil error aborts the merge (io.EOF from an exhausted entry is
// handled internally and never returned here).
func mergeRound[T any](h *entryHeap[T], dst *rowset.Chunk, remaining int, outMasks *[]rowset.RowSourceMask, outIdents *[]rowset.RowIdent, wantIdents bool) (int, bool, error) {
	top := h.Pop()

	if dominatesRest(h, top) {
		n := top.key.Remaining()
		if n > remaining {
			n = remaining
		}
		if dst.NumRows() == 0 && top.key.AtStart() && n == top.key.Remaining() {
			dst.Swap(top.chunk)
			recordProvenance(top, n, outMasks, outIdents, wantIdents)
			top.key.AdvanceBy(n)
			if top.key.Exhausted() {
				return n, true, refillOrClose(h, top)
			}
			h.Push(top)
			return n, true, nil
		}

		dst.Append(top.chunk, top.key.Offset(), n)
		recordProvenance(top, n, outMasks, outIdents, wantIdents)
		top.key.AdvanceBy(n)
		if top.key.Exhausted() {
			return n, true, refillOrClose(h, top)
		}
		h.Push(top)
		return n, true, nil
	}

	start := top.key.Offset()
	n := 1
	top.key.Advance()
	for n < remaining && !top.key.Exhausted() {
		next := h.Top()
		stillAhead := h.less(top.key.Peek(), next.key.Peek()) ||
			(!h.less(next.key.Peek(), top.key.Peek()) && top.Order < next.Order)
		if !stillAhead {
			break
		}
		n++
		top.key.Advance()
	}

	dst.Append(top.chunk, start, n)
	recordProvenanceAt(top, start, n, outMasks, outIdents, wantIdents)
	if top.key.Exhausted() {
		return n, false, refillOrClose(h, top)
	}
	h.Push(top)
	return n, false, nil
}

// recordProvenanceAt is recordProvenance for a run that does not end at
// the entry's current cursor position (the elementwise tier has already
// advanced the cursor past the run by the time it records provenance).
func recordProvenanceAt[T any](entry *MergeEntry[T], start, n int, outMasks *[]rowset.RowSourceMask, outIdents *[]rowset.RowIdent, wantIdents bool) {
	if outMasks != nil {
		mask := rowset.RowSourceMask{SourceOrder: entry.Order}
		for i := 0; i < n; i++ {
			*outMasks = append(*outMasks, mask)
		}
	}
	if wantIdents && outIdents != nil {
		idents := entry.RowIdents()
		*outIdents = append(*outIdents, idents[start:start+n]...)
	}
}

// fillChunk drives the heap, round by round, until dst holds maxRows rows,
// a zero-copy swap or bulk-copy round has run (those tiers end the chunk),
// or every entry has been exhausted and closed. It returns io.EOF only
// when it could not append a single row (the merge is complete).
func fillChunk[T any](h *entryHeap[T], dst *rowset.Chunk, maxRows int, outMasks *[]rowset.RowSourceMask, outIdents *[]rowset.RowIdent, wantIdents bool) error {
	appended := 0
	for dst.NumRows() < maxRows {
		if h.Len() == 0 {
			break
		}
		remaining := maxRows - dst.NumRows()
		n, done, err := mergeRound(h, dst, remaining, outMasks, outIdents, wantIdents)
		if err != nil {
			return err
		}
		appended += n
		if done {
			break
		}
	}
	if appended == 0 {
		return io.EOF
	}
	return nil
}
