// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package errors defines the exported error sentinels for daba.
//
// Both the top-level daba package and the internal storage packages
// return (possibly wrapped) values from here, so errors.Is checks work
// across package boundaries.
package errors

import "errors"

// Format errors are returned by Open when a file is not a daba file or
// does not agree with its sibling.
var (
	ErrBadMagic      = errors.New("daba: bad magic number")
	ErrTruncated     = errors.New("daba: file is truncated")
	ErrCountMismatch = errors.New("daba: data and index key counts differ")
	ErrCorrupted     = errors.New("daba: file contents are corrupted")
)

// Build errors.  Apart from ErrDuplicateKey these are caller contract
// violations, reported before any file is created.
var (
	ErrKeySize        = errors.New("daba: key must be exactly 16 bytes")
	ErrLengthMismatch = errors.New("daba: keys and values have different lengths")
	ErrDuplicateKey   = errors.New("daba: duplicate key")
	ErrTooManyKeys    = errors.New("daba: too many keys")
)

// ErrClosed is returned when a Database or Builder is used after Close,
// Finalize or Abort.
var ErrClosed = errors.New("daba: already closed")
