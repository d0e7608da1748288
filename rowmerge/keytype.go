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
	"bytes"

	"golang.org/x/exp/constraints"
)

// Int128 is the primary-key representation for LARGEINT columns: a
// two's-complement 128-bit signed integer, kept as two machine words so
// comparisons stay cheap without allocating a big.Int per row.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Less reports whether a orders before b.
func (a Int128) Less(b Int128) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}

// Bytes is the primary-key representation for VARCHAR columns, and for
// any multi-column or nullable sort key once it has gone through the
// external KeyEncoder. Ordering is plain lexicographic byte comparison,
// which is exactly what a total-order-preserving encoded key promises.
type Bytes []byte

// Less reports whether a orders before b.
func (a Bytes) Less(b Bytes) bool {
	return bytes.Compare(a, b) < 0
}

// KeyCodec binds a concrete key type T to the two things the merger
// needs from it: a strict order, and a way to materialize a value of T
// from one encoded column cell. Decode is called once per row when a
// chunk is (re)loaded; for Bytes it is a zero-copy identity, for the
// fixed-width integer types it reads a little-endian column cell.
//
// MergerFactory is the only place that picks a KeyCodec; everywhere else
// in the package, T is treated as opaque and compared only through
// Less.
type KeyCodec[T any] struct {
	Less   func(a, b T) bool
	Decode func(raw []byte) T
}

// intLess backs every fixed-width integer KeyCodec's Less: plain
// operator< works for all of them, so one generic definition serves
// BooleanCodec through BigIntCodec instead of five near-identical
// closures.
func intLess[T constraints.Integer](a, b T) bool { return a < b }

func decodeLE16(raw []byte) uint16 {
	return uint16(raw[0]) | uint16(raw[1])<<8
}

func decodeLE32(raw []byte) uint32 {
	return uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
}

func decodeLE64(raw []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v
}

// BooleanCodec backs the BOOLEAN primary-key type (T=uint8 in the
// factory table).
func BooleanCodec() KeyCodec[uint8] {
	return KeyCodec[uint8]{
		Less:   intLess[uint8],
		Decode: func(raw []byte) uint8 { return raw[0] },
	}
}

// TinyIntCodec backs TINYINT (T=int8).
func TinyIntCodec() KeyCodec[int8] {
	return KeyCodec[int8]{
		Less:   intLess[int8],
		Decode: func(raw []byte) int8 { return int8(raw[0]) },
	}
}

// SmallIntCodec backs SMALLINT (T=int16).
func SmallIntCodec() KeyCodec[int16] {
	return KeyCodec[int16]{
		Less:   intLess[int16],
		Decode: func(raw []byte) int16 { return int16(decodeLE16(raw)) },
	}
}

// IntCodec backs INT and DATE (T=int32).
func IntCodec() KeyCodec[int32] {
	return KeyCodec[int32]{
		Less:   intLess[int32],
		Decode: func(raw []byte) int32 { return int32(decodeLE32(raw)) },
	}
}

// BigIntCodec backs BIGINT and DATETIME (T=int64).
func BigIntCodec() KeyCodec[int64] {
	return KeyCodec[int64]{
		Less:   intLess[int64],
		Decode: func(raw []byte) int64 { return int64(decodeLE64(raw)) },
	}
}

// LargeIntCodec backs LARGEINT (T=Int128).
func LargeIntCodec() KeyCodec[Int128] {
	return KeyCodec[Int128]{
		Less: func(a, b Int128) bool { return a.Less(b) },
		Decode: func(raw []byte) Int128 {
			return Int128{
				Lo: decodeLE64(raw[:8]),
				Hi: int64(decodeLE64(raw[8:16])),
			}
		},
	}
}

// VarcharCodec backs VARCHAR, and any encoded multi-column/nullable sort
// key (T=Bytes). Decode is a zero-copy alias of the column cell: the
// cell already is the comparable byte sequence, there is nothing to
// parse out of it.
func VarcharCodec() KeyCodec[Bytes] {
	return KeyCodec[Bytes]{
		Less:   func(a, b Bytes) bool { return a.Less(b) },
		Decode: func(raw []byte) Bytes { return Bytes(raw) },
	}
}
