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
	"errors"
	"fmt"
)

// ErrNotSupported is returned by MergerFactory when the encoded primary
// key's logical type has no specialization. The caller should abort the
// compaction task before any I/O, per the original's switch-default.
var ErrNotSupported = errors.New("rowmerge: primary key type not supported")

// ErrAccountingMismatch means a pass wrote a different number of rows than
// its readers reported, which only happens on a reader bug or a dataflow
// bug in the merger itself. It always aborts the whole merge.
var ErrAccountingMismatch = errors.New("rowmerge: rows read != rows written")

func accountingErrorf(rawRowsRead, written int64) error {
	return fmt.Errorf("%w: read %d, wrote %d", ErrAccountingMismatch, rawRowsRead, written)
}
