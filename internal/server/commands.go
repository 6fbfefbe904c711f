// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package server

import (
	"strings"

	"github.com/bpowers/daba"
	"github.com/bpowers/daba/internal/resp"
)

// handle executes one request, returning the reply and whether the
// connection should be closed after sending it.
func (s *Server) handle(req resp.Value) (resp.Value, bool) {
	if req.Kind != resp.KindArray || req.Null || len(req.Array) == 0 {
		return resp.Err("ERR request must be a non-empty array of bulk strings"), false
	}
	args := make([][]byte, len(req.Array))
	for i, v := range req.Array {
		if v.Kind != resp.KindBulk || v.Null {
			return resp.Err("ERR request must be a non-empty array of bulk strings"), false
		}
		args[i] = v.Str
	}

	name := strings.ToUpper(string(args[0]))
	args = args[1:]
	switch name {
	case "PING":
		switch len(args) {
		case 0:
			return resp.Simple("PONG"), false
		case 1:
			return resp.Bulk(args[0]), false
		}
	case "ECHO":
		if len(args) == 1 {
			return resp.Bulk(args[0]), false
		}
	case "GET":
		if len(args) == 1 {
			if v, ok := s.get(args[0]); ok {
				return resp.Bulk(v), false
			}
			return resp.NullBulk(), false
		}
	case "MGET":
		if len(args) > 0 {
			vs := make([]resp.Value, len(args))
			for i, k := range args {
				if v, ok := s.get(k); ok {
					vs[i] = resp.Bulk(v)
				} else {
					vs[i] = resp.NullBulk()
				}
			}
			return resp.Array(vs...), false
		}
	case "EXISTS":
		if len(args) > 0 {
			var n int64
			for _, k := range args {
				if _, ok := s.get(k); ok {
					n++
				}
			}
			return resp.Int(n), false
		}
	case "DBSIZE":
		if len(args) == 0 {
			return resp.Int(int64(s.db.Len())), false
		}
	case "QUIT":
		return resp.Simple("OK"), true
	default:
		return resp.Err("ERR unknown command '" + sanitize(name) + "'"), false
	}
	return resp.Err("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command"), false
}

func (s *Server) get(arg []byte) ([]byte, bool) {
	if s.cfg.PreHash {
		k := daba.PreHash(arg)
		return s.db.Get(k[:])
	}
	return s.db.Get(arg)
}

// sanitize keeps a client-supplied name from breaking the error line.
func sanitize(name string) string {
	if len(name) > 64 {
		name = name[:64]
	}
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, name)
}
