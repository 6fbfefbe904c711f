// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bpowers/daba"
)

var errBadLine = errors.New("expected key:value")

// parseLine splits a build input line into its key and value.  The value
// aliases line.
func parseLine(line []byte, prehash bool) (daba.Key, []byte, error) {
	k, v, ok := bytes.Cut(line, []byte{':'})
	if !ok {
		return daba.Key{}, nil, errBadLine
	}
	if prehash {
		return daba.PreHash(k), v, nil
	}
	key, err := daba.ParseKey(string(k))
	if err != nil {
		return daba.Key{}, nil, err
	}
	return key, v, nil
}

func runBuild(args []string, logger *slog.Logger) error {
	f := newTableFlags("build")
	prehash := f.fs.Bool("prehash", false, "derive keys from arbitrary identifiers with xxh3")
	version := f.fs.Uint("version", 1, "format version to record in the headers")
	input := f.fs.String("input", "", "read pairs from this file instead of stdin")
	logger, err := f.parse(args, logger)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if *input != "" {
		in, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()
		r = in
	}

	b, err := daba.NewBuilder(*f.dataPath, *f.indexPath,
		daba.WithBuilderLogger(logger),
		daba.WithVersion(uint32(*version)),
	)
	if err != nil {
		return err
	}
	if err := buildFrom(b, r, *prehash); err != nil {
		b.Abort()
		return err
	}
	return b.Finalize()
}

func buildFrom(b *daba.Builder, r io.Reader, prehash bool) error {
	s := bufio.NewScanner(bufio.NewReaderSize(r, 64*1024))
	s.Buffer(make([]byte, 0, 64*1024), 64<<20)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		k, v, err := parseLine(line, prehash)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := b.Put(k[:], v); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return s.Err()
}
