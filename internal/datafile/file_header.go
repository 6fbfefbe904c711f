// Copyright 2023 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"fmt"
	"io"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/index"
)

const (
	// FileHeaderSize is the fixed size of the header at the start of every data file.
	FileHeaderSize = 32
	// KeySize is the size of every key, recorded in the header.
	KeySize = index.KeySize
)

var magicDataHeader = [4]byte{'D', 'A', 'B', 'A'}

// Header is the 32-byte data file header:
//
//	Offset  Size  Field
//	0       4     magic "DABA"
//	4       4     version      uint32_le
//	8       8     key count    uint64_le
//	16      8     key size     uint64_le (always 16)
//	24      8     values start uint64_le
type Header struct {
	Version     uint32
	KeyCount    uint64
	KeySize     uint64
	ValuesStart uint64
}

// MarshalTo encodes h into the first FileHeaderSize bytes of b.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < FileHeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), FileHeaderSize)
	}
	copy(b[0:4], magicDataHeader[:])
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint64(b[8:16], h.KeyCount)
	binary.LittleEndian.PutUint64(b[16:24], h.KeySize)
	binary.LittleEndian.PutUint64(b[24:32], h.ValuesStart)
	return nil
}

// WriteTo writes the encoded header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf [FileHeaderSize]byte
	if err := h.MarshalTo(buf[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(buf[:])
	if err != nil {
		return int64(n), fmt.Errorf("write: %w", err)
	}
	return int64(n), nil
}

// UnmarshalBytes decodes a header from the start of headerBytes.  The
// magic number is checked before the length; the version is not checked.
func (h *Header) UnmarshalBytes(headerBytes []byte) error {
	if len(headerBytes) < len(magicDataHeader) {
		return fmt.Errorf("%w: data header is %d bytes", dabaerrors.ErrTruncated, len(headerBytes))
	}
	if magic := headerBytes[0:4]; string(magic) != string(magicDataHeader[:]) {
		return fmt.Errorf("%w: %q -- not a daba data file or corrupted", dabaerrors.ErrBadMagic, magic)
	}
	if len(headerBytes) < FileHeaderSize {
		return fmt.Errorf("%w: data header is %d bytes, need %d", dabaerrors.ErrTruncated, len(headerBytes), FileHeaderSize)
	}

	h.Version = binary.LittleEndian.Uint32(headerBytes[4:8])
	h.KeyCount = binary.LittleEndian.Uint64(headerBytes[8:16])
	h.KeySize = binary.LittleEndian.Uint64(headerBytes[16:24])
	h.ValuesStart = binary.LittleEndian.Uint64(headerBytes[24:32])

	return nil
}
