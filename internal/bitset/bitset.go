// Copyright 2021 The daba Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import "math/bits"

// Bitset is an in-memory bitmap that is conceptually similar to []bool, but more memory efficient.
type Bitset struct {
	words  []uint64
	length uint64
}

// New returns a new in-memory bitset where you can set, clear and test for individual bits.
func New(length uint64) *Bitset {
	return &Bitset{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

// Len returns the number of addressable bits.
func (b *Bitset) Len() uint64 {
	return b.length
}

// Set sets the bit at position `off` to 1.  Out of range offsets are ignored.
func (b *Bitset) Set(off uint64) {
	if off >= b.length {
		return
	}
	b.words[off/64] |= 1 << (off % 64)
}

// Clear sets the bit at position `off` to 0.
func (b *Bitset) Clear(off uint64) {
	if off >= b.length {
		return
	}
	b.words[off/64] &^= 1 << (off % 64)
}

// IsSet returns true if the bit at position `off` is 1.
func (b *Bitset) IsSet(off uint64) bool {
	if off >= b.length {
		return false
	}
	return b.words[off/64]&(1<<(off%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() uint64 {
	var n int
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return uint64(n)
}
