// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/datafile"
	"github.com/bpowers/daba/internal/index"
)

// WriteDatabase builds a table from keys and values, writing the data
// file to dataPath and the index file to indexPath.  keys[i] is paired
// with values[i]; every key must be exactly KeySize bytes and keys must be
// distinct.  Values may be empty.
//
// Both files are written in place.  If WriteDatabase fails it removes the
// files it created; a path it never opened is left untouched.  Use a
// Builder to replace a table in place, so that each file is swapped in
// whole.
func WriteDatabase(dataPath, indexPath string, keys, values [][]byte, version uint32, opts ...BuilderOption) error {
	options := newBuilderOptions(opts)

	// reject contract violations before touching the filesystem
	if len(keys) != len(values) {
		return fmt.Errorf("%w: %d keys, %d values", dabaerrors.ErrLengthMismatch, len(keys), len(values))
	}
	for i, k := range keys {
		if len(k) != KeySize {
			return fmt.Errorf("%w: key %d is %d bytes", dabaerrors.ErrKeySize, i, len(k))
		}
	}

	valueLens := make([]uint64, len(values))
	for i, v := range values {
		valueLens[i] = uint64(len(v))
	}

	created, err := writeFiles(dataPath, indexPath, keys, valueLens, version, options.logger, values)
	if err != nil {
		for _, path := range created {
			_ = os.Remove(path)
		}
		return err
	}
	options.logger.Info("table written", "data", dataPath, "index", indexPath, "keys", len(keys))
	return nil
}

// writeFiles creates both files and writes the table into them.  created
// lists the paths it opened, so callers only clean up what it touched.
func writeFiles(dataPath, indexPath string, keys [][]byte, valueLens []uint64, version uint32, logger *slog.Logger, values [][]byte) (created []string, err error) {
	indexFile, err := os.Create(indexPath)
	if err != nil {
		return nil, fmt.Errorf("os.Create: %w", err)
	}
	created = append(created, indexPath)
	defer func() {
		err = errors.Join(err, indexFile.Close())
	}()

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return created, fmt.Errorf("os.Create: %w", err)
	}
	created = append(created, dataPath)
	defer func() {
		err = errors.Join(err, dataFile.Close())
	}()

	return created, writeTables(dataFile, indexFile, keys, valueLens, version, logger, func(w *datafile.Writer, orig uint32) error {
		_, err := w.Write(values[orig])
		return err
	})
}

// writeTables writes the index to indexFile, then calls writeValue for
// each original position in perfect hash id order to lay out dataFile.
// Both files are synced but left open.
func writeTables(dataFile, indexFile *os.File, keys [][]byte, valueLens []uint64, version uint32, logger *slog.Logger, writeValue func(w *datafile.Writer, orig uint32) error) error {
	built, err := index.Build(indexFile, keys, valueLens, version, logger)
	if err != nil {
		return fmt.Errorf("index.Build: %w", err)
	}
	if err := indexFile.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %w", err)
	}

	w, err := datafile.NewWriter(dataFile)
	if err != nil {
		return fmt.Errorf("datafile.NewWriter: %w", err)
	}
	logger.Info("writing values", "keys", len(built.Permutation))
	for _, orig := range built.Permutation {
		if err := writeValue(w, orig); err != nil {
			return fmt.Errorf("writing value %d: %w", orig, err)
		}
	}
	if err := w.Finish(version); err != nil {
		return fmt.Errorf("dataWriter.Finish: %w", err)
	}
	if err := dataFile.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %w", err)
	}
	return nil
}
