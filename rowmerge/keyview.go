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

// KeyView is a cursor over a chunk's materialized encoded sort-key
// column. start is always 0 and last is always len(keys)-1; they are
// kept as named fields (rather than derived on every access) because
// the merge loop reads them as often as cur.
type KeyView[T any] struct {
	keys  []T
	start int
	cur   int
	last  int
}

// reset installs a freshly materialized key column, positioning the
// cursor at the first row.
func (v *KeyView[T]) reset(keys []T) {
	v.keys = keys
	v.start = 0
	v.cur = 0
	v.last = len(keys) - 1
}

// Peek returns the key at the current cursor position. The caller must
// ensure the view is not exhausted (Remaining() > 0) first.
func (v *KeyView[T]) Peek() T { return v.keys[v.cur] }

// Advance moves the cursor forward by one row.
func (v *KeyView[T]) Advance() { v.cur++ }

// AdvanceBy moves the cursor forward by n rows.
func (v *KeyView[T]) AdvanceBy(n int) { v.cur += n }

// Remaining reports how many rows, including the current one, are left
// before the view is exhausted.
func (v *KeyView[T]) Remaining() int { return v.last - v.cur + 1 }

// AtStart reports whether the cursor is still at the first row of the
// view — a precondition for the zero-copy chunk-swap fast path.
func (v *KeyView[T]) AtStart() bool { return v.cur == v.start }

// Exhausted reports whether every row in the view has been consumed.
func (v *KeyView[T]) Exhausted() bool { return v.cur > v.last }

// Offset returns cur's position relative to start, used to slice the
// backing chunk for bulk copies.
func (v *KeyView[T]) Offset() int { return v.cur - v.start }

// Last returns the last valid key in the view.
func (v *KeyView[T]) Last() T { return v.keys[v.last] }
