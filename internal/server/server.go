// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package server answers lookups against an open table over TCP, speaking
// the Redis serialization protocol so stock clients can query it.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bpowers/daba"
	"github.com/bpowers/daba/internal/resp"
)

// Config configures a Server.
type Config struct {
	// Addr is the TCP address ListenAndServe listens on.
	Addr string
	// PreHash derives lookup keys from request arguments of any length
	// with daba.PreHash.  Without it, arguments are used as keys directly
	// and must be exactly daba.KeySize bytes to be found.
	PreHash bool
	// Logger receives connection and protocol events.  Nil discards them.
	Logger *slog.Logger
	// MaxRequestBytes bounds any single bulk string in a request.  Zero
	// means 1 MiB.
	MaxRequestBytes int64
}

const defaultMaxRequestBytes = 1 << 20

// Server serves a single read-only table.  It never closes the table.
type Server struct {
	db     *daba.Database
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New returns a Server answering queries from db.
func New(db *daba.Database, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	return &Server{
		db:     db,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on cfg.Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("net.Listen(%s): %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes the
// listener and every open connection and waits for their handlers to
// return.  It returns nil after a shutdown requested through ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	s.logger.Info("serving", "addr", ln.Addr().String(), "keys", s.db.Len(), "prehash", s.cfg.PreHash)

	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			if !s.track(conn) {
				_ = conn.Close()
				return nil
			}
			g.Go(func() error {
				defer s.untrack(conn)
				s.serveConn(conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.logger.Info("stopped serving", "addr", ln.Addr().String())
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *Server) serveConn(conn net.Conn) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Debug("connection opened")
	defer func() {
		_ = conn.Close()
		logger.Debug("connection closed")
	}()

	br := bufio.NewReader(conn)
	r := resp.NewReader(br, s.cfg.MaxRequestBytes)
	w := bufio.NewWriter(conn)

	for {
		req, err := r.ReadValue()
		if err != nil {
			if resp.Error.Has(err) {
				logger.Warn("protocol error", "err", err)
				_ = resp.Write(w, resp.Err("ERR protocol error"))
				_ = w.Flush()
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", "err", err)
			}
			return
		}

		reply, quit := s.handle(req)
		if err := resp.Write(w, reply); err != nil {
			logger.Debug("write failed", "err", err)
			return
		}
		// batch replies to pipelined requests
		if quit || br.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				logger.Debug("flush failed", "err", err)
				return
			}
		}
		if quit {
			return
		}
	}
}
