// Copyright 2021 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/datafile"
	"github.com/bpowers/daba/internal/mph"
)

// Builder constructs a table from a stream of key/value pairs without
// holding values in memory.  Values are appended to a staging file as they
// arrive; Finalize builds the index and lays the values out in their final
// order in temporary files next to the destinations, then renames each into
// place.  Each file is replaced atomically, but the pair is not: between the
// two renames the new index sits beside the old data file.  A mixed pair
// built over a different number of keys fails to open with
// ErrCountMismatch; one built over the same keys opens and returns wrong
// values.  Callers must keep readers from opening the table while Finalize
// runs.
type Builder struct {
	dataPath  string
	indexPath string
	version   uint32
	logger    *slog.Logger

	staging *os.File
	w       *datafile.Writer // appends to staging
	keys    [][]byte
	arena   []byte
	starts  []uint64
	lens    []uint64
	done    bool
}

// NewBuilder creates a Builder that will write its data file to dataPath
// and its index file to indexPath when finalized.
func NewBuilder(dataPath, indexPath string, opts ...BuilderOption) (*Builder, error) {
	options := newBuilderOptions(opts)

	// we write to new files and do an atomic rename when we're done
	dataPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	indexPath, err = filepath.Abs(indexPath)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	dir := options.tempDir
	if dir == "" {
		dir = filepath.Dir(dataPath)
	}
	staging, err := os.CreateTemp(dir, "daba-builder.*.staging")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	w, err := datafile.NewWriter(staging)
	if err != nil {
		_ = staging.Close()
		_ = os.Remove(staging.Name())
		return nil, fmt.Errorf("datafile.NewWriter: %w", err)
	}
	return &Builder{
		dataPath:  dataPath,
		indexPath: indexPath,
		version:   options.version,
		logger:    options.logger,
		staging:   staging,
		w:         w,
	}, nil
}

// Put adds a key/value pair to the table.  Keys must be exactly KeySize
// bytes.  Duplicate keys result in an error at Finalize time.  Both
// slices may be reused by the caller once Put returns.
func (b *Builder) Put(k, v []byte) error {
	if b.done {
		return dabaerrors.ErrClosed
	}
	if len(k) != KeySize {
		return fmt.Errorf("%w: got %d bytes", dabaerrors.ErrKeySize, len(k))
	}
	if len(b.lens) >= mph.MaxKeys {
		return dabaerrors.ErrTooManyKeys
	}
	off, err := b.w.Write(v)
	if err != nil {
		return err
	}
	b.arena = append(b.arena, k...)
	b.starts = append(b.starts, off)
	b.lens = append(b.lens, uint64(len(v)))
	return nil
}

// Len returns the number of pairs added so far.
func (b *Builder) Len() int {
	return len(b.lens)
}

// Finalize writes the data and index files and releases the Builder's
// resources.  The Builder can't be used afterwards.
func (b *Builder) Finalize() error {
	if b.done {
		return dabaerrors.ErrClosed
	}
	b.done = true
	defer b.cleanup()

	if err := b.w.Finish(b.version); err != nil {
		return fmt.Errorf("staging.Finish: %w", err)
	}

	keys := make([][]byte, len(b.lens))
	for i := range keys {
		off := i * KeySize
		keys[i] = b.arena[off : off+KeySize : off+KeySize]
	}

	dataTmp, indexTmp, err := b.writeTemp(keys)
	if err != nil {
		if dataTmp != "" {
			_ = os.Remove(dataTmp)
		}
		if indexTmp != "" {
			_ = os.Remove(indexTmp)
		}
		return err
	}

	if err := os.Rename(indexTmp, b.indexPath); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(dataTmp)
		return fmt.Errorf("os.Rename: %w", err)
	}
	if err := os.Rename(dataTmp, b.dataPath); err != nil {
		_ = os.Remove(dataTmp)
		return fmt.Errorf("os.Rename: %w", err)
	}

	b.logger.Info("table written", "data", b.dataPath, "index", b.indexPath, "keys", len(keys))
	return nil
}

func (b *Builder) writeTemp(keys [][]byte) (dataTmp, indexTmp string, err error) {
	indexFile, err := os.CreateTemp(filepath.Dir(b.indexPath), "daba-builder.*.index")
	if err != nil {
		return "", "", fmt.Errorf("os.CreateTemp: %w", err)
	}
	indexTmp = indexFile.Name()
	defer func() {
		err = errors.Join(err, indexFile.Close())
	}()

	dataFile, err := os.CreateTemp(filepath.Dir(b.dataPath), "daba-builder.*.data")
	if err != nil {
		return "", indexTmp, fmt.Errorf("os.CreateTemp: %w", err)
	}
	dataTmp = dataFile.Name()
	defer func() {
		err = errors.Join(err, dataFile.Close())
	}()

	err = writeTables(dataFile, indexFile, keys, b.lens, b.version, b.logger, func(w *datafile.Writer, orig uint32) error {
		r := io.NewSectionReader(b.staging, int64(datafile.FileHeaderSize+b.starts[orig]), int64(b.lens[orig]))
		_, err := w.WriteFrom(r, b.lens[orig])
		return err
	})
	if err != nil {
		return dataTmp, indexTmp, err
	}

	// make the files read-only
	if err := indexFile.Chmod(0444); err != nil {
		return dataTmp, indexTmp, fmt.Errorf("os.Chmod(0444): %w", err)
	}
	if err := dataFile.Chmod(0444); err != nil {
		return dataTmp, indexTmp, fmt.Errorf("os.Chmod(0444): %w", err)
	}
	return dataTmp, indexTmp, nil
}

// Abort discards everything added so far.  It is safe to call after
// Finalize.
func (b *Builder) Abort() {
	if b.done {
		return
	}
	b.done = true
	b.cleanup()
}

func (b *Builder) cleanup() {
	if b.staging == nil {
		return
	}
	_ = b.staging.Close()
	_ = os.Remove(b.staging.Name())
	b.staging = nil
	b.w = nil
	b.arena = nil
	b.starts = nil
	b.lens = nil
}
