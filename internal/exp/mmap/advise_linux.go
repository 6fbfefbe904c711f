// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build linux

package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AdviseRandom tells the kernel we will access the mapping in random
// order, disabling readahead.
func (r *ReaderAt) AdviseRandom() error {
	if len(r.data) == 0 {
		return nil
	}
	if err := unix.Madvise(r.data, unix.MADV_RANDOM); err != nil {
		return fmt.Errorf("madvise: %w", err)
	}
	return nil
}

// Lock pins the mapping in physical memory.  The lock is released when
// the mapping is closed.
func (r *ReaderAt) Lock() error {
	if len(r.data) == 0 {
		return nil
	}
	if err := unix.Mlock(r.data); err != nil {
		return fmt.Errorf("mlock: %w", err)
	}
	return nil
}
