// Copyright 2023 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"fmt"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/exp/mmap"
)

// MmapReader is a read-only, memory-mapped data file.
type MmapReader struct {
	h      Header
	mmap   *mmap.ReaderAt
	values []byte
}

// NewMMapReaderWithPath maps the data file at path and validates its header.
func NewMMapReaderWithPath(path string) (*MmapReader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}

	r, err := newMmapReader(m)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("data file %s: %w", path, err)
	}
	return r, nil
}

func newMmapReader(m *mmap.ReaderAt) (*MmapReader, error) {
	data := m.Data()

	var header Header
	if err := header.UnmarshalBytes(data); err != nil {
		return nil, err
	}
	if header.KeySize != KeySize {
		return nil, fmt.Errorf("%w: key size %d, expected %d", dabaerrors.ErrCorrupted, header.KeySize, KeySize)
	}
	if header.ValuesStart < FileHeaderSize || header.ValuesStart > uint64(len(data)) {
		return nil, fmt.Errorf("%w: values start %d outside [%d, %d]", dabaerrors.ErrCorrupted, header.ValuesStart, FileHeaderSize, len(data))
	}

	return &MmapReader{
		h:      header,
		mmap:   m,
		values: data[header.ValuesStart:],
	}, nil
}

// Header returns the decoded file header.
func (r *MmapReader) Header() Header {
	return r.h
}

// Len returns the number of values recorded in the header.
func (r *MmapReader) Len() uint64 {
	return r.h.KeyCount
}

// Values returns the mapped values section, from values start to the
// end of the file.
func (r *MmapReader) Values() []byte {
	return r.values
}

// Mmap returns the underlying mapping.
func (r *MmapReader) Mmap() *mmap.ReaderAt {
	return r.mmap
}

// Close unmaps the file.  Slices returned by Values are invalid afterwards.
func (r *MmapReader) Close() error {
	r.values = nil
	return r.mmap.Close()
}
