// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bpowers/daba"
	"github.com/bpowers/daba/internal/server"
)

func runServe(args []string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, args, logger)
}

// serve opens the table named by args and answers GET requests on it
// until ctx is done.
func serve(ctx context.Context, args []string, logger *slog.Logger) error {
	f := newTableFlags("serve")
	addr := f.fs.String("addr", ":6380", "address to listen on")
	prehash := f.fs.Bool("prehash", false, "hash request keys with xxh3 before lookup")
	mlock := f.fs.Bool("mlock", false, "pin the index in memory")
	maxRequest := f.fs.Int64("max-request-bytes", 1<<20, "largest bulk string accepted in a request")
	logger, err := f.parse(args, logger)
	if err != nil {
		return err
	}

	opts := []daba.OpenOption{daba.WithOpenLogger(logger)}
	if *mlock {
		opts = append(opts, daba.WithMlock())
	}
	db, err := daba.Open(*f.dataPath, *f.indexPath, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s := server.New(db, server.Config{
		Addr:            *addr,
		PreHash:         *prehash,
		Logger:          logger,
		MaxRequestBytes: *maxRequest,
	})
	return s.ListenAndServe(ctx)
}
