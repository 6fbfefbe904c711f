// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/daba"
	dabaerrors "github.com/bpowers/daba/errors"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseLine(t *testing.T) {
	k, v, err := parseLine([]byte("6b657930303030303030303030303031:hello:world"), false)
	require.NoError(t, err)
	require.Equal(t, "key0000000000001", string(k[:]))
	require.Equal(t, "hello:world", string(v))

	k, v, err = parseLine([]byte("user:1:alice"), true)
	require.NoError(t, err)
	require.Equal(t, daba.PreHash([]byte("user")), k)
	require.Equal(t, "1:alice", string(v))

	k, v, err = parseLine([]byte("6b657930303030303030303030303031:"), false)
	require.NoError(t, err)
	require.Equal(t, "key0000000000001", string(k[:]))
	require.Len(t, v, 0)

	_, _, err = parseLine([]byte("no separator"), false)
	require.ErrorIs(t, err, errBadLine)

	_, _, err = parseLine([]byte("abcd:value"), false)
	require.ErrorIs(t, err, dabaerrors.ErrKeySize)
}

func TestBuildGetInfo(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "pairs.txt")
	dataPath := filepath.Join(dir, "t.data")
	require.NoError(t, os.WriteFile(input, []byte(
		"6b657930303030303030303030303031:hello\n"+
			"\n"+
			"6b657930303030303030303030303032:world!\n"), 0644))

	require.NoError(t, runBuild([]string{"-data", dataPath, "-input", input, "-version", "5"}, quiet))

	db, err := daba.Open(dataPath, dataPath+".index")
	require.NoError(t, err)
	require.Equal(t, 2, db.Len())
	require.Equal(t, uint32(5), db.Version())
	v, ok := db.Get([]byte("key0000000000002"))
	require.True(t, ok)
	require.Equal(t, "world!", string(v))
	require.NoError(t, db.Close())

	require.NoError(t, runGet([]string{"-data", dataPath, "6b657930303030303030303030303031"}, quiet))
	require.Error(t, runGet([]string{"-data", dataPath, "6b657930303030303030303030303039"}, quiet))
	require.Error(t, runGet([]string{"-data", dataPath, "not-hex"}, quiet))

	require.NoError(t, runInfo([]string{"-data", dataPath}, quiet))
}

func TestBuild_Errors(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "t.data")

	require.Error(t, runBuild([]string{}, quiet))

	input := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(input, []byte("6b657930303030303030303030303031:a\nbad line\n"), 0644))
	err := runBuild([]string{"-data", dataPath, "-input", input}, quiet)
	require.ErrorIs(t, err, errBadLine)
	require.Contains(t, err.Error(), "line 2")

	// the failed build leaves nothing behind but the input
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestServe(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "t.data")
	require.NoError(t, daba.WriteDatabase(dataPath, dataPath+".index",
		[][]byte{[]byte("key0000000000001")}, [][]byte{[]byte("hello")}, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, serve(ctx, []string{"-data", dataPath, "-addr", "127.0.0.1:0"}, quiet))

	require.Error(t, serve(context.Background(), []string{}, quiet))
	require.Error(t, serve(context.Background(), []string{"-data", filepath.Join(dir, "missing.data")}, quiet))
}
