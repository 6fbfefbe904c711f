// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bpowers/daba"
)

func runInfo(args []string, logger *slog.Logger) error {
	f := newTableFlags("info")
	logger, err := f.parse(args, logger)
	if err != nil {
		return err
	}

	db, err := daba.Open(*f.dataPath, *f.indexPath, daba.WithOpenLogger(logger), daba.WithoutAdvice())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	dataInfo, err := os.Stat(*f.dataPath)
	if err != nil {
		return err
	}
	indexInfo, err := os.Stat(*f.indexPath)
	if err != nil {
		return err
	}
	digests, err := db.Digest()
	if err != nil {
		return err
	}

	fmt.Printf("version:      %d\n", db.Version())
	fmt.Printf("keys:         %d\n", db.Len())
	fmt.Printf("data file:    %s (%d bytes, xxhash %016x)\n", *f.dataPath, dataInfo.Size(), digests.Data)
	fmt.Printf("index file:   %s (%d bytes, xxhash %016x)\n", *f.indexPath, indexInfo.Size(), digests.Index)
	return nil
}
