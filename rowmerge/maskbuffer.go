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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sneller-contrib/rowmerge/compr"
	"github.com/sneller-contrib/rowmerge/rowset"
)

// DefaultMaskPageRows is how many RowSourceMask tags accumulate in
// memory before a page is compressed and spilled, absent an explicit
// MaskBuffer threshold.
const DefaultMaskPageRows = 1 << 16

// MaskBuffer is a spillable, rewindable log of per-output-row provenance
// tags. It has two lifecycle phases: write (append-only, the default)
// and read (sequential, reset to the start by Rewind). Concurrent read
// and write are unsupported — exactly the original's single-producer /
// single-consumer contract.
//
// Pages that fill up are compressed with a compr.Compressor and spilled
// to a tablet-local file, named uniquely with a uuid so concurrent
// compaction tasks against the same tablet never collide; a page still
// being written, or too small to ever have spilled, simply stays
// resident.
type MaskBuffer struct {
	path         string
	pageRows     int
	compressor   compr.Compressor
	decompressor compr.Decompressor

	file   *os.File
	offset int64
	pages  []maskPage

	pending []rowset.RowSourceMask

	reading bool
	pageIdx int
	cur     []rowset.RowSourceMask
	curPos  int
}

type maskPage struct {
	offset     int64
	compressed int64
	rows       int
	resident   []rowset.RowSourceMask // set only for the never-spilled tail page
}

// NewMaskBuffer creates a mask buffer that spills, if needed, into
// spillDir (a tablet-local path) under a name scoped to tabletID.
// pageRows <= 0 selects DefaultMaskPageRows.
func NewMaskBuffer(tabletID int64, spillDir string, pageRows int) *MaskBuffer {
	if pageRows <= 0 {
		pageRows = DefaultMaskPageRows
	}
	name := fmt.Sprintf("mask-%d-%s.bin", tabletID, uuid.NewString())
	return &MaskBuffer{
		path:         filepath.Join(spillDir, name),
		pageRows:     pageRows,
		compressor:   compr.Compression("s2"),
		decompressor: compr.Decompression("s2"),
	}
}

// Write appends tags to the buffer. It is an error to call Write after
// FlipToRead.
func (m *MaskBuffer) Write(tags []rowset.RowSourceMask) error {
	if m.reading {
		return fmt.Errorf("rowmerge: MaskBuffer.Write called in read mode")
	}
	m.pending = append(m.pending, tags...)
	for len(m.pending) >= m.pageRows {
		if err := m.spillPage(m.pending[:m.pageRows]); err != nil {
			return err
		}
		m.pending = append(m.pending[:0], m.pending[m.pageRows:]...)
	}
	return nil
}

// Flush syncs the pages already spilled to disk. It spills nothing new:
// tags that do not yet fill a page stay resident until either more writes
// fill it or FlipToRead rewinds over it.
func (m *MaskBuffer) Flush() error {
	if m.file == nil {
		return nil
	}
	return m.file.Sync()
}

func (m *MaskBuffer) spillPage(tags []rowset.RowSourceMask) error {
	if m.file == nil {
		f, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("rowmerge: opening mask spill file: %w", err)
		}
		m.file = f
	}

	raw := make([]byte, len(tags)*3)
	for i, t := range tags {
		binary.LittleEndian.PutUint16(raw[i*3:], t.SourceOrder)
		if t.AggregateFlag {
			raw[i*3+2] = 1
		}
	}
	compressed := m.compressor.Compress(raw, nil)
	n, err := m.file.WriteAt(compressed, m.offset)
	if err != nil {
		return fmt.Errorf("rowmerge: spilling mask page: %w", err)
	}
	m.pages = append(m.pages, maskPage{offset: m.offset, compressed: int64(n), rows: len(tags)})
	m.offset += int64(n)
	return nil
}

// FlipToRead switches the buffer to sequential read mode, starting from
// the very first tag ever written (spilled or not).
func (m *MaskBuffer) FlipToRead() error {
	if len(m.pending) > 0 {
		m.pages = append(m.pages, maskPage{rows: len(m.pending), resident: m.pending})
		m.pending = nil
	}
	m.reading = true
	return m.Rewind()
}

// Rewind resets the read cursor back to the first tag, letting a
// VerticalMerger replay the same provenance for every non-key column
// group without re-reading from the key pass.
func (m *MaskBuffer) Rewind() error {
	m.pageIdx = 0
	m.cur = nil
	m.curPos = 0
	return nil
}

// Next returns the next provenance tag in sequential read order, or
// io.EOF once every tag has been consumed.
func (m *MaskBuffer) Next() (rowset.RowSourceMask, error) {
	for m.curPos >= len(m.cur) {
		if m.pageIdx >= len(m.pages) {
			return rowset.RowSourceMask{}, io.EOF
		}
		page := m.pages[m.pageIdx]
		m.pageIdx++
		if page.resident != nil {
			m.cur = page.resident
			m.curPos = 0
			continue
		}
		decoded, err := m.readPage(page)
		if err != nil {
			return rowset.RowSourceMask{}, err
		}
		m.cur = decoded
		m.curPos = 0
	}
	tag := m.cur[m.curPos]
	m.curPos++
	return tag, nil
}

func (m *MaskBuffer) readPage(page maskPage) ([]rowset.RowSourceMask, error) {
	compressed := make([]byte, page.compressed)
	if _, err := m.file.ReadAt(compressed, page.offset); err != nil {
		return nil, fmt.Errorf("rowmerge: reading mask spill page: %w", err)
	}
	raw := make([]byte, page.rows*3)
	if err := m.decompressor.Decompress(compressed, raw); err != nil {
		return nil, fmt.Errorf("rowmerge: decompressing mask spill page: %w", err)
	}
	tags := make([]rowset.RowSourceMask, page.rows)
	for i := range tags {
		tags[i].SourceOrder = binary.LittleEndian.Uint16(raw[i*3:])
		tags[i].AggregateFlag = raw[i*3+2] != 0
	}
	return tags, nil
}

// Close releases the spill file, if one was opened, and removes it.
func (m *MaskBuffer) Close() error {
	if m.file == nil {
		return nil
	}
	path := m.file.Name()
	err := m.file.Close()
	m.file = nil
	if rmErr := os.Remove(path); err == nil {
		err = rmErr
	}
	return err
}
