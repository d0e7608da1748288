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

	"github.com/sneller-contrib/rowmerge/rowset"
)

// NewMerger dispatches on the primary key's logical type and builds
// whichever concrete, generically-typed merger (horizontal or vertical)
// the configuration calls for, returning a type-erased Merger so callers
// outside this package never need to name the key type themselves.
//
// This is the one place KeyCodec instantiation happens: BOOLEAN keys
// decode as uint8, TINYINT as int8, SMALLINT as int16, INT and DATE as
// int32, BIGINT and DATETIME as int64, LARGEINT as Int128, and VARCHAR
// (and anything requiring a multi-column or nullable encoded key) as
// Bytes. Any other logical type is rejected with ErrNotSupported.
func NewMerger(cfg MergeConfig, schema *rowset.Schema, encoder rowset.KeyEncoder, rowsets []rowset.Rowset, writer rowset.Writer) (Merger, error) {
	keyType := schema.Field(schema.SortKeyIdxes[0]).Type
	if len(schema.SortKeyIdxes) > 1 || schema.Field(schema.SortKeyIdxes[0]).Nullable {
		keyType = rowset.Varchar // forces Bytes: a multi-column or nullable key must go through encoder
	}

	switch keyType {
	case rowset.Boolean:
		return buildMerger(cfg, schema, encoder, rowsets, writer, BooleanCodec())
	case rowset.TinyInt:
		return buildMerger(cfg, schema, encoder, rowsets, writer, TinyIntCodec())
	case rowset.SmallInt:
		return buildMerger(cfg, schema, encoder, rowsets, writer, SmallIntCodec())
	case rowset.Int, rowset.Date:
		return buildMerger(cfg, schema, encoder, rowsets, writer, IntCodec())
	case rowset.BigInt, rowset.DateTime:
		return buildMerger(cfg, schema, encoder, rowsets, writer, BigIntCodec())
	case rowset.LargeInt:
		return buildMerger(cfg, schema, encoder, rowsets, writer, LargeIntCodec())
	case rowset.Varchar:
		return buildMerger(cfg, schema, encoder, rowsets, writer, VarcharCodec())
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, keyType)
	}
}

// Merger is the type-erased result of NewMerger: something that can run
// a full compaction and report how many rows it wrote.
type Merger interface {
	WriteAll(ctx context.Context) (int64, error)
}

func buildMerger[T any](cfg MergeConfig, schema *rowset.Schema, encoder rowset.KeyEncoder, rowsets []rowset.Rowset, writer rowset.Writer, codec KeyCodec[T]) (Merger, error) {
	stats := &rowset.ReadStats{}
	footprint := func(rs rowset.Rowset, s *rowset.Schema) int64 {
		frac := float64(s.NumFields()) / float64(schema.NumFields())
		return int64(float64(rs.DataDiskSize()) * frac)
	}

	if cfg.Algorithm == Horizontal {
		chunkSize := SizeForColumnGroup(schema, rowsets, cfg.MemoryLimitPerWorker, cfg.DefaultChunkSize, footprint)
		if cfg.TabletIsRowStore && cfg.ChunkSizeOverride > 0 {
			chunkSize = cfg.ChunkSizeOverride
		}
		return NewHorizontalMerger(schema, schema.SortKeyIdxes, encoder, codec, rowsets, writer, stats, chunkSize, cfg.EnableLightPKCompactionPublish, nil)
	}

	vm := NewVerticalMerger(schema, schema.SortKeyIdxes, encoder, codec, rowsets, writer,
		cfg.MemoryLimitPerWorker, cfg.DefaultChunkSize, cfg.MaxColumnsPerGroup, cfg.EnableLightPKCompactionPublish,
		cfg.TabletID, cfg.SpillDir, footprint)
	vm.SetChunkSizeOverride(cfg.ChunkSizeOverride, cfg.TabletIsRowStore)
	return vm, nil
}
