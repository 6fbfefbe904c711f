// Copyright 2021 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"io"
	"log/slog"
)

// BuilderOption configures WriteDatabase and the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger  *slog.Logger
	version uint32
	tempDir string
}

func newBuilderOptions(opts []BuilderOption) builderOptions {
	options := builderOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		version: 1,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithBuilderLogger sets an optional logger for the builder to use for progress updates.
// If not provided, no logging output will be produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// WithVersion sets the format version a Builder records in both file
// headers.  It defaults to 1.  WriteDatabase takes the version as an
// argument instead.
func WithVersion(version uint32) BuilderOption {
	return func(opts *builderOptions) {
		opts.version = version
	}
}

// WithTempDir sets where a Builder stages values before Finalize.  It
// defaults to the directory of the data file.
func WithTempDir(dir string) BuilderOption {
	return func(opts *builderOptions) {
		opts.tempDir = dir
	}
}
