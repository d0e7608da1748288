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

import "github.com/sneller-contrib/rowmerge/rowset"

// ChunkSizerInput is everything one pass (the horizontal/key pass, or one
// vertical non-key column group) needs to size its chunks.
type ChunkSizerInput struct {
	// MemoryLimitPerWorker bounds the memory one compaction worker may
	// use for decoded column data (compaction_memory_limit_per_worker).
	MemoryLimitPerWorker int64
	// DefaultChunkSize is used as a starting point / fallback
	// (vector_chunk_size).
	DefaultChunkSize  int
	TotalRows         int64
	TotalMemFootprint int64
	TotalInputSegs    int64
}

// ChunkSize computes the per-pass row-count target from a memory budget
// and input statistics, the Go counterpart of
// calculate_chunk_size_for_column_group. When the average per-row
// footprint is unknown or tiny, it falls back to DefaultChunkSize; it
// never returns more rows than would be needed to exhaust
// MemoryLimitPerWorker given the observed average row width, and never
// fewer than 1.
func ChunkSize(in ChunkSizerInput) int {
	if in.TotalRows <= 0 || in.TotalMemFootprint <= 0 || in.MemoryLimitPerWorker <= 0 {
		return fallback(in.DefaultChunkSize)
	}

	avgRowSize := float64(in.TotalMemFootprint) / float64(in.TotalRows)
	if avgRowSize <= 0 {
		return fallback(in.DefaultChunkSize)
	}

	budget := float64(in.MemoryLimitPerWorker)
	sized := int(budget / avgRowSize)
	if sized < 1 {
		sized = 1
	}
	if def := fallback(in.DefaultChunkSize); sized > def {
		sized = def
	}
	return sized
}

func fallback(def int) int {
	if def <= 0 {
		return 4096
	}
	return def
}

// SizeForColumnGroup gathers the inputs ChunkSize needs from a set of
// rowsets and a column-group schema, mirroring the original's per-field
// total_mem_footprint accumulation across every segment of every rowset.
func SizeForColumnGroup(groupSchema *rowset.Schema, rowsets []rowset.Rowset, memLimit int64, defaultChunkSize int, footprint func(rowset.Rowset, *rowset.Schema) int64) int {
	var totalRows, totalSegs, totalFootprint int64
	for _, rs := range rowsets {
		totalRows += int64(rs.NumRows())
		totalSegs += int64(rs.NumSegments())
		if footprint != nil {
			totalFootprint += footprint(rs, groupSchema)
		}
	}
	return ChunkSize(ChunkSizerInput{
		MemoryLimitPerWorker: memLimit,
		DefaultChunkSize:     defaultChunkSize,
		TotalRows:            totalRows,
		TotalMemFootprint:    totalFootprint,
		TotalInputSegs:       totalSegs,
	})
}
