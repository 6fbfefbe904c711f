// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package daba is an immutable, build-once/read-many key-value store.
//
// A fixed set of 16-byte keys and arbitrary byte-string values is
// compiled offline into two files: a data file holding the values and an
// index file holding a minimal perfect hash over the keys, the keys
// themselves and the offset of every value.  Open memory-maps both files;
// Get is a single hash, a single key comparison and a slice of the mapped
// data file, with no copying.
//
//	keys := [][]byte{[]byte("key0000000000001")}
//	values := [][]byte{[]byte("hello")}
//	if err := daba.WriteDatabase("t.data", "t.index", keys, values, 1); err != nil {
//		...
//	}
//	db, err := daba.Open("t.data", "t.index")
//	v, ok := db.Get([]byte("key0000000000001"))
//
// Tables are never modified once written.  To publish a new version of a
// table, build it with a Builder, which stages both files and renames
// them into place when complete.
package daba

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/index"
)

// KeySize is the length of every key, in bytes.
const KeySize = index.KeySize

// Key is a fixed-size table key.
type Key [KeySize]byte

// PreHash derives a Key from an identifier of any length using
// xxHash3-128.  Tables built from pre-hashed keys must be queried with
// pre-hashed keys too.
func PreHash(id []byte) Key {
	var k Key
	h := xxh3.Hash128(id)
	binary.LittleEndian.PutUint64(k[0:8], h.Lo)
	binary.LittleEndian.PutUint64(k[8:16], h.Hi)
	return k
}

// ParseKey decodes a key written as 32 hex characters.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != 2*KeySize {
		return k, fmt.Errorf("%w: %q is not %d hex characters", dabaerrors.ErrKeySize, s, 2*KeySize)
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, fmt.Errorf("hex.Decode(%q): %w", s, err)
	}
	return k, nil
}

// String returns the key as 32 hex characters.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}
