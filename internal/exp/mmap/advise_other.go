// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !linux

package mmap

// AdviseRandom is a no-op on this platform.
func (r *ReaderAt) AdviseRandom() error {
	return nil
}

// Lock is a no-op on this platform.
func (r *ReaderAt) Lock() error {
	return nil
}
