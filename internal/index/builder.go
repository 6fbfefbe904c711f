// Copyright 2022 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/bitset"
	"github.com/bpowers/daba/internal/mph"
)

const defaultBufferSize = 4 * 1024 * 1024

// Built describes an index written by Build.
type Built struct {
	Header Header
	// Permutation maps each perfect hash id to the position of its
	// key in the slice passed to Build.
	Permutation []uint32
	// Offsets holds the start of each id's value relative to the data
	// file's values section.
	Offsets []uint64
}

// Build hashes keys, orders them by perfect hash id and writes the index
// file to w: header, serialized hash, keys in id order and offsets in id
// order.  valueLens[i] is the length of the value paired with keys[i].
func Build(w io.Writer, keys [][]byte, valueLens []uint64, version uint32, logger *slog.Logger) (*Built, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(keys) != len(valueLens) {
		return nil, fmt.Errorf("%w: %d keys, %d values", dabaerrors.ErrLengthMismatch, len(keys), len(valueLens))
	}
	for i, k := range keys {
		if len(k) != KeySize {
			return nil, fmt.Errorf("%w: key %d is %d bytes", dabaerrors.ErrKeySize, i, len(k))
		}
	}

	logger.Info("building perfect hash", "keys", len(keys))
	table, err := mph.Build(keys, logger)
	if err != nil {
		return nil, fmt.Errorf("mph.Build: %w", err)
	}

	permutation, err := invert(table, keys)
	if err != nil {
		return nil, err
	}

	n := uint64(len(keys))
	offsets := make([]uint64, n)
	var cursor uint64
	for id, orig := range permutation {
		offsets[id] = cursor
		cursor += valueLens[orig]
	}

	hashSize := uint64(len(table.Bytes()))
	h := Header{
		Version:       version,
		KeyCount:      n,
		HashSize:      hashSize,
		KeysOffset:    FileHeaderSize + hashSize,
		OffsetsOffset: FileHeaderSize + hashSize + n*KeySize,
	}

	logger.Debug("writing index", "hashBytes", hashSize, "keysOffset", h.KeysOffset, "offsetsOffset", h.OffsetsOffset)
	bw := bufio.NewWriterSize(w, defaultBufferSize)
	if _, err := h.WriteTo(bw); err != nil {
		return nil, fmt.Errorf("header.WriteTo: %w", err)
	}
	if _, err := table.WriteTo(bw); err != nil {
		return nil, fmt.Errorf("table.WriteTo: %w", err)
	}
	for _, orig := range permutation {
		if _, err := bw.Write(keys[orig]); err != nil {
			return nil, fmt.Errorf("bufio.Write: %w", err)
		}
	}
	var buf [8]byte
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(buf[:], off)
		if _, err := bw.Write(buf[:]); err != nil {
			return nil, fmt.Errorf("bufio.Write: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("bufio.Flush: %w", err)
	}

	return &Built{
		Header:      h,
		Permutation: permutation,
		Offsets:     offsets,
	}, nil
}

// invert builds the id -> original position permutation, checking that
// every id is claimed exactly once.
func invert(table *mph.Table, keys [][]byte) ([]uint32, error) {
	n := uint64(len(keys))
	permutation := make([]uint32, n)
	assigned := bitset.New(n)
	for orig, key := range keys {
		id := table.Query(key)
		if id >= n || assigned.IsSet(id) {
			return nil, fmt.Errorf("invariant broken: key %x mapped to id %d", key, id)
		}
		assigned.Set(id)
		permutation[id] = uint32(orig)
	}
	return permutation, nil
}
