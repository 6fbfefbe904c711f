// Copyright 2021 The daba Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mph implements a minimal perfect hash over a fixed set of keys
// using the "Hash, displace, and compress" algorithm described in
// http://cmph.sourceforge.net/papers/esa09.pdf.
//
// A Table maps each of its n keys to a distinct id in [0, n).  Query is
// total: any other input also maps to some id in [0, n), so callers must
// compare the key stored at that id before trusting a match.
//
// The serialized form is
//
//	┌───────────────────┐
//	│ n       (uint64)  │
//	│ level0  (uint32)  │ length of the seed table
//	│ level1  (uint32)  │ length of the slot table
//	├───────────────────┤
//	│ slot ids          │ level1 × uint32
//	├───────────────────┤
//	│ seeds             │ level0 × uint32
//	└───────────────────┘
//
// with all integers little-endian.  Open aliases a serialized table
// without copying, so it can be used directly over an mmap'd region.
package mph

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"sort"

	"github.com/dgryski/go-farm"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/bitset"
)

const (
	// MaxKeys is the largest key set a Table can hold.
	MaxKeys   = (1 << 31) - 1
	maxUint32 = ^uint32(0)

	headerSize = 8 + 4 + 4
)

var errNoSeed = errors.New("couldn't find 32-bit seed")

// nextPow2 returns the next highest power of two above a given number.
func nextPow2(n int64) int64 {
	return 1 << (64 - bits.LeadingZeros64(uint64(n)))
}

// uint32Slice is a read-only view into a byte array as if it was []uint32
type uint32Slice []byte

func (s uint32Slice) Get(off uint64) uint32 {
	return binary.LittleEndian.Uint32(s[off*4 : off*4+4])
}

// Table is an immutable minimal perfect hash, backed by its serialized bytes.
type Table struct {
	data      []byte
	n         uint64
	seeds     uint32Slice
	seedsMask uint64
	ids       uint32Slice
	idsMask   uint64
}

type bucket struct {
	n    int64
	keys []uint32
}

// bySize is used to sort our buckets from most full to least full
type bySize []bucket

func (s bySize) Len() int           { return len(s) }
func (s bySize) Less(i, j int) bool { return len(s[i].keys) > len(s[j].keys) }
func (s bySize) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Build constructs a Table over keys.  Keys must be distinct; the id a key
// is assigned depends only on the key set, not on the order of keys.
func Build(keys [][]byte, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	entryLen := int64(len(keys))
	if entryLen > MaxKeys {
		return nil, fmt.Errorf("%w: %d asked for, we only support %d", dabaerrors.ErrTooManyKeys, entryLen, MaxKeys)
	}

	var (
		level0Len  = nextPow2(entryLen / 4)
		level1Len  = nextPow2(entryLen)
		level0Mask = uint64(level0Len - 1)
		level1Mask = uint64(level1Len - 1)

		level0        = make([]uint32, level0Len)
		level1        = make([]uint32, level1Len)
		sparseBuckets = make([][]uint32, level0Len)
	)

	logger.Debug("building sparse buckets", "keys", entryLen, "level0", level0Len, "level1", level1Len)
	for i, key := range keys {
		n := farm.Hash64WithSeed(key, 0) & level0Mask
		sparseBuckets[n] = append(sparseBuckets[n], uint32(i))
	}

	var buckets []bucket
	for n, vals := range sparseBuckets {
		if len(vals) > 0 {
			buckets = append(buckets, bucket{n: int64(n), keys: vals})
		}
	}
	// stable so the resulting table is independent of input order
	sort.Stable(bySize(buckets))

	logger.Debug("searching seeds", "buckets", len(buckets))
	occ := bitset.New(uint64(level1Len))
	var tmpOcc []uint64
	for j, b := range buckets {
		if j > 0 && j%1000000 == 0 {
			logger.Debug("seed search progress", "bucket", j)
		}
		if err := checkDistinct(keys, b.keys); err != nil {
			return nil, err
		}
		seed := uint64(1)
	trySeed:
		if seed >= uint64(maxUint32) {
			return nil, errNoSeed
		}
		tmpOcc = tmpOcc[:0]
		for _, i := range b.keys {
			slot := farm.Hash64WithSeed(keys[i], seed) & level1Mask
			if occ.IsSet(slot) {
				for _, s := range tmpOcc {
					occ.Clear(s)
				}
				seed++
				goto trySeed
			}
			occ.Set(slot)
			tmpOcc = append(tmpOcc, slot)
		}
		level0[b.n] = uint32(seed)
	}

	// compress: number the occupied slots densely, in slot order.  Empty
	// slots keep id 0, so lookups of unknown keys still land in range.
	var id uint32
	for slot := range level1 {
		if occ.IsSet(uint64(slot)) {
			level1[slot] = id
			id++
		}
	}
	if int64(id) != entryLen {
		return nil, fmt.Errorf("invariant broken: placed %d of %d keys", id, entryLen)
	}

	buf := make([]byte, headerSize+4*(level1Len+level0Len))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(entryLen))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(level0Len))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(level1Len))
	off := headerSize
	for _, v := range level1 {
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
		off += 4
	}
	for _, v := range level0 {
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
		off += 4
	}

	return Open(buf)
}

// checkDistinct reports an error if any two keys in a bucket are equal.
// Equal keys collide under every seed, so without this check the seed
// search would never terminate.
func checkDistinct(keys [][]byte, bucket []uint32) error {
	for x := 1; x < len(bucket); x++ {
		for y := 0; y < x; y++ {
			if k := keys[bucket[x]]; bytes.Equal(k, keys[bucket[y]]) {
				return fmt.Errorf("%w: %x", dabaerrors.ErrDuplicateKey, k)
			}
		}
	}
	return nil
}

// Open returns a Table aliasing the serialized table in b.  b must not be
// modified while the Table is in use.
func Open(b []byte) (*Table, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: hash table needs %d bytes, have %d", dabaerrors.ErrTruncated, headerSize, len(b))
	}
	n := binary.LittleEndian.Uint64(b[0:8])
	level0Len := uint64(binary.LittleEndian.Uint32(b[8:12]))
	level1Len := uint64(binary.LittleEndian.Uint32(b[12:16]))

	if !isPow2(level0Len) || !isPow2(level1Len) {
		return nil, fmt.Errorf("%w: hash table lengths %d/%d not powers of 2", dabaerrors.ErrCorrupted, level0Len, level1Len)
	}
	if n > level1Len {
		return nil, fmt.Errorf("%w: %d keys can't fit in %d slots", dabaerrors.ErrCorrupted, n, level1Len)
	}
	expected := headerSize + 4*(level1Len+level0Len)
	if uint64(len(b)) < expected {
		return nil, fmt.Errorf("%w: hash table needs %d bytes, have %d", dabaerrors.ErrTruncated, expected, len(b))
	} else if uint64(len(b)) > expected {
		return nil, fmt.Errorf("%w: hash table is %d bytes, expected %d", dabaerrors.ErrCorrupted, len(b), expected)
	}

	ids := uint32Slice(b[headerSize : headerSize+4*level1Len])
	for i := uint64(0); i < level1Len; i++ {
		if id := uint64(ids.Get(i)); id >= n && id != 0 {
			return nil, fmt.Errorf("%w: slot %d has id %d >= %d", dabaerrors.ErrCorrupted, i, id, n)
		}
	}

	return &Table{
		data:      b,
		n:         n,
		seeds:     uint32Slice(b[headerSize+4*level1Len:]),
		seedsMask: level0Len - 1,
		ids:       ids,
		idsMask:   level1Len - 1,
	}, nil
}

func isPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// Query returns the id for key.  For keys the Table was built with the
// result is that key's unique id; for anything else it is an arbitrary
// but deterministic id (0 when the table is empty).
func (t *Table) Query(key []byte) uint64 {
	// first we hash the key with a fixed seed, giving us the offset
	// of a seed that perfectly hashes into our second-level table
	seed := t.seeds.Get(farm.Hash64WithSeed(key, 0) & t.seedsMask)
	// next, we use that more-specific seed to re-hash the key, giving
	// us the slot holding the key's dense id.
	return uint64(t.ids.Get(farm.Hash64WithSeed(key, uint64(seed)) & t.idsMask))
}

// Len returns the number of keys the Table was built over.
func (t *Table) Len() uint64 {
	return t.n
}

// Bytes returns the serialized table.
func (t *Table) Bytes() []byte {
	return t.data
}

// WriteTo writes the serialized table to w.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(t.data)
	return int64(n), err
}
