// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	dabaerrors "github.com/bpowers/daba/errors"
	"github.com/bpowers/daba/internal/datafile"
	"github.com/bpowers/daba/internal/index"
	"github.com/bpowers/daba/internal/unsafestring"
)

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	logger *slog.Logger
	advise bool
	mlock  bool
}

// WithOpenLogger sets a logger for Open to report on mapping the files.
func WithOpenLogger(logger *slog.Logger) OpenOption {
	return func(opts *openOptions) {
		opts.logger = logger
	}
}

// WithMlock pins the index in memory.  Failing to lock is logged and ignored.
func WithMlock() OpenOption {
	return func(opts *openOptions) {
		opts.mlock = true
	}
}

// WithoutAdvice skips telling the kernel that access to the mapped files
// will be random.
func WithoutAdvice() OpenOption {
	return func(opts *openOptions) {
		opts.advise = false
	}
}

// Database is an open, read-only table.
//
// Get, GetString, Len, Version and Digest are safe for concurrent use.
// Close must only be called once all lookups have completed: the slices
// returned by Get point into memory that Close unmaps.
type Database struct {
	data   *datafile.MmapReader
	idx    *index.Table
	values []byte
	n      uint64
	closed atomic.Bool
}

// Digests identifies the exact contents of a table's two files.
type Digests struct {
	Data  uint64
	Index uint64
}

// Open memory-maps the data and index files written by WriteDatabase or
// a Builder, validating both headers and every value range before
// returning.
func Open(dataPath, indexPath string, opts ...OpenOption) (*Database, error) {
	options := openOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		advise: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	data, err := datafile.NewMMapReaderWithPath(dataPath)
	if err != nil {
		return nil, err
	}
	if options.advise {
		if err := data.Mmap().AdviseRandom(); err != nil {
			return nil, errors.Join(err, data.Close())
		}
	}

	idx, err := index.NewTable(indexPath, data.Len(), index.Options{
		Logger: options.logger,
		Advise: options.advise,
		Mlock:  options.mlock,
	})
	if err != nil {
		return nil, errors.Join(err, data.Close())
	}

	values := data.Values()
	if err := idx.ValidateOffsets(uint64(len(values))); err != nil {
		return nil, errors.Join(fmt.Errorf("index file %s: %w", indexPath, err), idx.Close(), data.Close())
	}

	options.logger.Debug("opened table", "data", dataPath, "index", indexPath, "keys", data.Len(), "valueBytes", len(values))

	return &Database{
		data:   data,
		idx:    idx,
		values: values,
		n:      data.Len(),
	}, nil
}

// Get returns the value stored for key.  The returned slice aliases the
// mapped data file: it must not be modified, and it is only valid until
// Close.  Keys that are not KeySize bytes long are never found.
func (db *Database) Get(key []byte) ([]byte, bool) {
	if db.closed.Load() || len(key) != KeySize {
		return nil, false
	}
	id, ok := db.idx.Lookup(key)
	if !ok {
		return nil, false
	}
	start := db.idx.OffsetAt(id)
	end := uint64(len(db.values))
	if id+1 < db.n {
		end = db.idx.OffsetAt(id + 1)
	}
	return db.values[start:end:end], true
}

// GetString is Get for a key held in a string, without copying it.
func (db *Database) GetString(key string) ([]byte, bool) {
	return db.Get(unsafestring.ToBytes(key))
}

// Len returns the number of keys in the table.
func (db *Database) Len() int {
	return int(db.n)
}

// Version returns the format version recorded when the table was built.
func (db *Database) Version() uint32 {
	return db.data.Header().Version
}

// Digest returns xxHash64 digests of the data and index files.  Tables
// built from the same pairs, in any order, have the same digests.
func (db *Database) Digest() (Digests, error) {
	if db.closed.Load() {
		return Digests{}, dabaerrors.ErrClosed
	}
	return Digests{
		Data:  xxhash.Sum64(db.data.Mmap().Data()),
		Index: xxhash.Sum64(db.idx.Mmap().Data()),
	}, nil
}

// Close unmaps both files.  It is safe to call Close more than once.
func (db *Database) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	db.values = nil
	return errors.Join(db.idx.Close(), db.data.Close())
}
