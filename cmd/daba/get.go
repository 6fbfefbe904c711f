// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/bpowers/daba"
)

func runGet(args []string, logger *slog.Logger) error {
	f := newTableFlags("get")
	prehash := f.fs.Bool("prehash", false, "keys are identifiers to hash with xxh3 rather than hex")
	logger, err := f.parse(args, logger)
	if err != nil {
		return err
	}

	db, err := daba.Open(*f.dataPath, *f.indexPath, daba.WithOpenLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	w := bufio.NewWriter(os.Stdout)
	defer func() { _ = w.Flush() }()

	missing := 0
	for _, arg := range f.fs.Args() {
		var k daba.Key
		if *prehash {
			k = daba.PreHash([]byte(arg))
		} else if k, err = daba.ParseKey(arg); err != nil {
			return err
		}
		v, ok := db.Get(k[:])
		if !ok {
			missing++
			fmt.Fprintf(w, "%s\t(nil)\n", arg)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", arg, v)
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d keys not found", missing, f.fs.NArg())
	}
	return nil
}
