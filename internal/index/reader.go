// Copyright 2022 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package index reads and writes the key half of a daba table: a
// minimal perfect hash plus the keys and value offsets in hash id order.
//
//	┌───────────────────┐
//	│ file header (40B) │
//	├───────────────────┤
//	│ perfect hash      │ header.HashSize bytes
//	├───────────────────┤
//	│ keys              │ n × 16 bytes, in id order
//	├───────────────────┤
//	│ offsets           │ n × uint64_le, in id order
//	└───────────────────┘
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/exp/mmap"
	"github.com/bpowers/daba/internal/mph"
)

// KeySize is the size of every key in bytes.
const KeySize = 16

// uint64Slice is a read-only view into a byte array as if it was []uint64
type uint64Slice []byte

func (s uint64Slice) Get(off uint64) uint64 {
	return binary.LittleEndian.Uint64(s[off*8 : off*8+8])
}

// Options controls how an index file is mapped.
type Options struct {
	Logger *slog.Logger
	// Advise tells the kernel accesses will be random.
	Advise bool
	// Mlock pins the index in memory.  Failure to lock is logged, not fatal.
	Mlock bool
}

// Table is an index file, backed by an mmap'd file.
type Table struct {
	h       Header
	mm      *mmap.ReaderAt
	hash    *mph.Table
	keys    []byte
	offsets uint64Slice
}

// NewTable maps the index file at path and validates it against the key
// count recorded in the sibling data file.
func NewTable(path string, expectedKeys uint64, opts Options) (*Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mm, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}

	t, err := newTable(mm, expectedKeys)
	if err != nil {
		_ = mm.Close()
		return nil, fmt.Errorf("index file %s: %w", path, err)
	}

	if opts.Advise {
		if err := mm.AdviseRandom(); err != nil {
			_ = mm.Close()
			return nil, err
		}
	}
	if opts.Mlock {
		logger.Info("mlocking the index into memory", "path", path, "bytes", mm.Len())
		if err := mm.Lock(); err != nil {
			logger.Warn("failed to mlock the index, continuing anyway", "err", err)
		}
	}

	return t, nil
}

func newTable(mm *mmap.ReaderAt, expectedKeys uint64) (*Table, error) {
	m := mm.Data()
	size := uint64(len(m))

	var h Header
	if err := h.UnmarshalBytes(m); err != nil {
		return nil, err
	}
	if h.KeyCount != expectedKeys {
		return nil, fmt.Errorf("%w: index has %d keys, data file has %d", dabaerrors.ErrCountMismatch, h.KeyCount, expectedKeys)
	}

	n := h.KeyCount
	if n > size/KeySize {
		return nil, fmt.Errorf("%w: %d keys can't fit in %d bytes", dabaerrors.ErrTruncated, n, size)
	}
	if h.HashSize > size-FileHeaderSize {
		return nil, fmt.Errorf("%w: hash of %d bytes overruns file of %d", dabaerrors.ErrTruncated, h.HashSize, size)
	}
	hashEnd := FileHeaderSize + h.HashSize
	if h.KeysOffset < hashEnd || h.KeysOffset > size || n*KeySize > size-h.KeysOffset {
		return nil, fmt.Errorf("%w: keys section at %d (%d keys) outside file of %d bytes", dabaerrors.ErrTruncated, h.KeysOffset, n, size)
	}
	keysEnd := h.KeysOffset + n*KeySize
	if h.OffsetsOffset < keysEnd || h.OffsetsOffset > size || n*8 > size-h.OffsetsOffset {
		return nil, fmt.Errorf("%w: offsets section at %d (%d keys) outside file of %d bytes", dabaerrors.ErrTruncated, h.OffsetsOffset, n, size)
	}

	hash, err := mph.Open(m[FileHeaderSize:hashEnd])
	if err != nil {
		return nil, fmt.Errorf("mph.Open: %w", err)
	}
	if hash.Len() != n {
		return nil, fmt.Errorf("%w: hash built over %d keys, header says %d", dabaerrors.ErrCorrupted, hash.Len(), n)
	}

	return &Table{
		h:       h,
		mm:      mm,
		hash:    hash,
		keys:    m[h.KeysOffset:keysEnd],
		offsets: uint64Slice(m[h.OffsetsOffset : h.OffsetsOffset+n*8]),
	}, nil
}

// ValidateOffsets checks that every value range described by the offsets
// falls inside a values section of valuesLen bytes.
func (t *Table) ValidateOffsets(valuesLen uint64) error {
	var prev uint64
	for id := uint64(0); id < t.h.KeyCount; id++ {
		off := t.offsets.Get(id)
		if id == 0 && off != 0 {
			return fmt.Errorf("%w: first offset is %d", dabaerrors.ErrCorrupted, off)
		}
		if off < prev {
			return fmt.Errorf("%w: offset %d for id %d decreases from %d", dabaerrors.ErrCorrupted, off, id, prev)
		}
		prev = off
	}
	if prev > valuesLen {
		return fmt.Errorf("%w: offset %d past end of %d value bytes", dabaerrors.ErrCorrupted, prev, valuesLen)
	}
	return nil
}

// Header returns the decoded file header.
func (t *Table) Header() Header {
	return t.h
}

// Len returns the number of keys in the index.
func (t *Table) Len() uint64 {
	return t.h.KeyCount
}

// MaybeLookup returns the only id b could be stored at.  b is present
// only if KeyAt(id) equals it.
func (t *Table) MaybeLookup(b []byte) uint64 {
	return t.hash.Query(b)
}

// KeyAt returns the key stored for id.
func (t *Table) KeyAt(id uint64) []byte {
	return t.keys[id*KeySize : id*KeySize+KeySize : id*KeySize+KeySize]
}

// OffsetAt returns the values-section offset of id's value.
func (t *Table) OffsetAt(id uint64) uint64 {
	return t.offsets.Get(id)
}

// Lookup resolves b to its id, reporting false if b is not in the index.
func (t *Table) Lookup(b []byte) (uint64, bool) {
	id := t.MaybeLookup(b)
	if id >= t.h.KeyCount {
		return 0, false
	}
	if !bytes.Equal(t.KeyAt(id), b) {
		// expected for keys that aren't in the table: the perfect hash
		// maps them onto some other key's id
		return 0, false
	}
	return id, true
}

// Mmap returns the underlying mapping.
func (t *Table) Mmap() *mmap.ReaderAt {
	return t.mm
}

// Close unmaps the index.
func (t *Table) Close() error {
	t.keys = nil
	t.offsets = nil
	return t.mm.Close()
}
