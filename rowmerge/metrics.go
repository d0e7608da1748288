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
	"fmt"
	"time"
)

// Stats summarizes one compaction_merge_rowsets call, the Go counterpart
// of the original's end-of-task MergeRowsetsCompactionTask log line. It
// is returned to the caller rather than pushed into a global metrics
// singleton — this package has no ambient metrics registry of its own,
// so the caller decides whether to export it further.
type Stats struct {
	TabletID     int64
	Algorithm    Algorithm
	InputRowsets int
	InputRows    int64
	InputBytes   uint64
	OutputRows   int64
	OutputBytes  uint64
	Elapsed      time.Duration

	// LightPKCompactionPublish mirrors MergeConfig.EnableLightPKCompactionPublish
	// back out, for the caller's publication step.
	LightPKCompactionPublish bool
}

// String renders Stats as a single log line.
func (s Stats) String() string {
	mbPerSec := 0.0
	if s.Elapsed > 0 {
		mbPerSec = float64(s.OutputBytes) / (1 << 20) / s.Elapsed.Seconds()
	}
	return fmt.Sprintf(
		"tablet=%d algorithm=%s rowsets=%d rows_in=%d bytes_in=%d rows_out=%d bytes_out=%d elapsed=%s throughput=%.2fMB/s",
		s.TabletID, s.Algorithm, s.InputRowsets, s.InputRows, s.InputBytes,
		s.OutputRows, s.OutputBytes, s.Elapsed, mbPerSec,
	)
}
