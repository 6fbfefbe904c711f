// Copyright 2022 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"encoding/binary"
	"fmt"
	"io"

	dabaerrors "github.com/bpowers/daba/errors"
)

// FileHeaderSize is the fixed size of the header at the start of every index file.
const FileHeaderSize = 40

var magicIndexHeader = [4]byte{'K', 'I', 'D', 'X'}

// Header is the 40-byte index file header:
//
//	Offset  Size  Field
//	0       4     magic "KIDX"
//	4       4     version         uint32_le
//	8       8     key count       uint64_le
//	16      8     hash size       uint64_le (serialized perfect hash, in bytes)
//	24      8     keys offset     uint64_le
//	32      8     offsets offset  uint64_le
type Header struct {
	Version       uint32
	KeyCount      uint64
	HashSize      uint64
	KeysOffset    uint64
	OffsetsOffset uint64
}

// MarshalTo encodes h into the first FileHeaderSize bytes of b.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < FileHeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), FileHeaderSize)
	}
	copy(b[0:4], magicIndexHeader[:])
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint64(b[8:16], h.KeyCount)
	binary.LittleEndian.PutUint64(b[16:24], h.HashSize)
	binary.LittleEndian.PutUint64(b[24:32], h.KeysOffset)
	binary.LittleEndian.PutUint64(b[32:40], h.OffsetsOffset)
	return nil
}

// WriteTo writes the encoded header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf [FileHeaderSize]byte
	if err := h.MarshalTo(buf[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(buf[:])
	return int64(n), err
}

// UnmarshalBytes decodes a header from the start of headerBytes.  The
// magic number is checked before the length; the version is not checked.
func (h *Header) UnmarshalBytes(headerBytes []byte) error {
	if len(headerBytes) < len(magicIndexHeader) {
		return fmt.Errorf("%w: index header is %d bytes", dabaerrors.ErrTruncated, len(headerBytes))
	}
	if magic := headerBytes[0:4]; string(magic) != string(magicIndexHeader[:]) {
		return fmt.Errorf("%w: %q -- not a daba index file or corrupted", dabaerrors.ErrBadMagic, magic)
	}
	if len(headerBytes) < FileHeaderSize {
		return fmt.Errorf("%w: index header is %d bytes, need %d", dabaerrors.ErrTruncated, len(headerBytes), FileHeaderSize)
	}

	h.Version = binary.LittleEndian.Uint32(headerBytes[4:8])
	h.KeyCount = binary.LittleEndian.Uint64(headerBytes[8:16])
	h.HashSize = binary.LittleEndian.Uint64(headerBytes[16:24])
	h.KeysOffset = binary.LittleEndian.Uint64(headerBytes[24:32])
	h.OffsetsOffset = binary.LittleEndian.Uint64(headerBytes[32:40])

	return nil
}
