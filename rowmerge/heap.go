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

import "github.com/sneller-contrib/rowmerge/heap"

// entryHeap is a min-heap over live *MergeEntry[T], ordered by (current
// key, insertion order). It holds non-owning back-references — the
// caller's entries slice is what owns the *MergeEntry[T] values, exactly
// as the original's std::priority_queue<MergeEntry<T>*> only ever
// borrows pointers into a vector the caller owns.
type entryHeap[T any] struct {
	items []*MergeEntry[T]
	less  func(a, b T) bool
}

func newEntryHeap[T any](less func(a, b T) bool) *entryHeap[T] {
	return &entryHeap[T]{less: less}
}

func (h *entryHeap[T]) entryLess(a, b *MergeEntry[T]) bool {
	ak, bk := a.key.Peek(), b.key.Peek()
	if h.less(ak, bk) {
		return true
	}
	if h.less(bk, ak) {
		return false
	}
	return a.Order < b.Order
}

func (h *entryHeap[T]) Len() int { return len(h.items) }

func (h *entryHeap[T]) Push(e *MergeEntry[T]) {
	heap.PushSlice(&h.items, e, h.entryLess)
}

func (h *entryHeap[T]) Pop() *MergeEntry[T] {
	return heap.PopSlice(&h.items, h.entryLess)
}

func (h *entryHeap[T]) Top() *MergeEntry[T] {
	return heap.PeekSlice(h.items)
}
