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

// Package rowmerge merges a tablet's primary-key rowsets into one
// globally sorted-by-key rowset, the core of compaction for an updatable
// columnar storage engine. It does not read encoded rows, decode primary
// keys beyond their logical type, or write storage files itself — those
// are the concerns of the rowset, encoding, and writer layers it is
// handed through the Rowset, KeyEncoder, and Writer interfaces.
package rowmerge

import (
	"context"
	"log"
	"time"

	"github.com/sneller-contrib/rowmerge/rowset"
)

// CompactionMergeRowsets merges rowsets (already opened, already
// schema-validated) into writer, choosing horizontal or vertical writing
// per cfg.Algorithm, and returns a summary once every input row has been
// accounted for.
//
// The caller retains ownership of rowsets: CompactionMergeRowsets calls
// Release on each one exactly once, after it has been fully read,
// regardless of whether the merge as a whole succeeds.
func CompactionMergeRowsets(ctx context.Context, cfg MergeConfig, schema *rowset.Schema, encoder rowset.KeyEncoder, rowsets []rowset.Rowset, writer rowset.Writer, logger *log.Logger) (Stats, error) {
	start := time.Now()
	stats := Stats{
		TabletID:                 cfg.TabletID,
		Algorithm:                cfg.Algorithm,
		InputRowsets:             len(rowsets),
		LightPKCompactionPublish: cfg.EnableLightPKCompactionPublish,
	}
	for _, rs := range rowsets {
		stats.InputRows += int64(rs.NumRows())
		stats.InputBytes += rs.DataDiskSize()
	}

	merger, err := NewMerger(cfg, schema, encoder, rowsets, writer)
	if err != nil {
		return stats, err
	}

	written, err := merger.WriteAll(ctx)
	stats.OutputRows = written
	stats.Elapsed = time.Since(start)
	if err != nil {
		if logger != nil {
			logger.Printf("rowmerge: compaction failed after %s: %v", stats.Elapsed, err)
		}
		return stats, err
	}

	if cfg.Algorithm == Vertical {
		if err := writer.FinalFlush(); err != nil {
			return stats, err
		}
	} else {
		if err := writer.Flush(); err != nil {
			return stats, err
		}
	}
	stats.OutputBytes = writer.TotalDataSize()

	if logger != nil {
		logger.Print(stats.String())
	}
	return stats, nil
}
