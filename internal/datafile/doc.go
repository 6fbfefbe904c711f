// Copyright 2023 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package datafile reads and writes the value half of a daba table.
//
// A data file looks like:
//
//	┌───────────────────┐
//	│ file header (32B) │
//	├───────────────────┤
//	│ value for id 0    │
//	│ value for id 1    │
//	│ ...               │
//	│ value for id n-1  │
//	└───────────────────┘
//
// Values are packed back to back with no separators or padding; their
// boundaries are only recorded in the sibling index file's offsets.  The
// last value runs to the end of the file.
package datafile
