// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides read-only memory maps of whole files.
package mmap

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	mmapgo "github.com/edsrzf/mmap-go"

	dabaerrors "github.com/bpowers/daba/errors"
)

// ReaderAt is a read-only view of a file's contents.  Slices returned by
// Data alias the mapping and must not be used after Close.
type ReaderAt struct {
	m      mmapgo.MMap
	data   []byte
	closed atomic.Bool
}

// Open memory-maps the file at path.  The file descriptor is closed
// before returning; the mapping stays valid until Close.
func Open(path string) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}

	r := &ReaderAt{}
	// mmap(2) rejects zero-length mappings
	if fi.Size() == 0 {
		return r, nil
	}
	if int64(int(fi.Size())) != fi.Size() {
		return nil, fmt.Errorf("file %s too large to map (%d bytes)", path, fi.Size())
	}

	m, err := mmapgo.Map(f, mmapgo.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap.Map(%s): %w", path, err)
	}
	r.m = m
	r.data = []byte(m)
	return r, nil
}

// Data returns the mapped bytes.  The caller must never write to them.
func (r *ReaderAt) Data() []byte {
	return r.data
}

// Len returns the length of the mapping in bytes.
func (r *ReaderAt) Len() int {
	return len(r.data)
}

// ReadAt implements io.ReaderAt over the mapping.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, dabaerrors.ErrClosed
	}
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file.  It is safe to call Close more than once.
func (r *ReaderAt) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.data = nil
	if r.m == nil {
		return nil
	}
	return r.m.Unmap()
}
