// Copyright 2021 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	dabaerrors "github.com/bpowers/daba/errors"
)

func TestBuilder(t *testing.T) {
	keys, values := randomPairs(5000)
	dataPath, indexPath := tablePaths(t)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b, err := NewBuilder(dataPath, indexPath, WithBuilderLogger(logger), WithVersion(3))
	require.NoError(t, err)
	for i := range keys {
		require.NoError(t, b.Put(keys[i], values[i]))
	}
	require.Equal(t, len(keys), b.Len())
	require.NoError(t, b.Finalize())
	require.Contains(t, logs.String(), "table written")

	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.Equal(t, len(keys), db.Len())
	require.Equal(t, uint32(3), db.Version())
	for i, k := range keys {
		v, ok := db.Get(k)
		require.True(t, ok)
		require.Equal(t, values[i], append([]byte{}, v...))
	}

	// only the two finished files remain
	entries, err := os.ReadDir(filepath.Dir(dataPath))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	fi, err := os.Stat(dataPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0444), fi.Mode().Perm())
	fi, err = os.Stat(indexPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0444), fi.Mode().Perm())
}

func TestBuilder_MatchesWriteDatabase(t *testing.T) {
	keys, values := randomPairs(1000)

	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath, keys, values, 1))

	builtData, builtIndex := tablePaths(t)
	b, err := NewBuilder(builtData, builtIndex)
	require.NoError(t, err)
	// reuse one buffer to check Put copies what it needs
	var kbuf [KeySize]byte
	for i := range keys {
		copy(kbuf[:], keys[i])
		require.NoError(t, b.Put(kbuf[:], values[i]))
	}
	require.NoError(t, b.Finalize())

	for _, pair := range [][2]string{{dataPath, builtData}, {indexPath, builtIndex}} {
		expected, err := os.ReadFile(pair[0])
		require.NoError(t, err)
		actual, err := os.ReadFile(pair[1])
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}
}

func TestBuilder_Replace(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("key0000000000001")}, [][]byte{[]byte("old")}, 1))

	b, err := NewBuilder(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("key0000000000001"), []byte("new")))
	require.NoError(t, b.Put([]byte("key0000000000002"), []byte("other")))
	require.NoError(t, b.Finalize())

	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	v, ok := db.Get([]byte("key0000000000001"))
	require.True(t, ok)
	require.Equal(t, "new", string(v))
}

func TestBuilder_MixedPair(t *testing.T) {
	keys := [][]byte{[]byte("key0000000000001"), []byte("key0000000000002"), []byte("key0000000000003")}

	oldData, oldIndex := tablePaths(t)
	b, err := NewBuilder(oldData, oldIndex)
	require.NoError(t, err)
	for i, v := range []string{"aaaa", "bbbb", "cccc"} {
		require.NoError(t, b.Put(keys[i], []byte(v)))
	}
	require.NoError(t, b.Finalize())

	newData, newIndex := tablePaths(t)
	b, err = NewBuilder(newData, newIndex)
	require.NoError(t, err)
	for i, v := range []string{"a", "b", "cccccccccc"} {
		require.NoError(t, b.Put(keys[i], []byte(v)))
	}
	require.NoError(t, b.Finalize())

	// a new index beside the old data file, as seen between Finalize's
	// two renames: the same key set means the pair opens without error
	db, err := Open(oldData, newIndex)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	v, ok := db.Get(keys[2])
	require.True(t, ok)
	require.Len(t, v, 10)
	require.NotEqual(t, "cccccccccc", string(v))
	require.NotEqual(t, "cccc", string(v))

	// a different key count is caught
	otherData, otherIndex := tablePaths(t)
	require.NoError(t, WriteDatabase(otherData, otherIndex, keys[:2], [][]byte{[]byte("a"), []byte("b")}, 1))
	_, err = Open(oldData, otherIndex)
	require.ErrorIs(t, err, dabaerrors.ErrCountMismatch)
}

func TestBuilder_Errors(t *testing.T) {
	dataPath, indexPath := tablePaths(t)

	b, err := NewBuilder(dataPath, indexPath)
	require.NoError(t, err)
	require.ErrorIs(t, b.Put([]byte("short"), nil), dabaerrors.ErrKeySize)
	require.Equal(t, 0, b.Len())

	require.NoError(t, b.Put([]byte("key0000000000001"), []byte("a")))
	require.NoError(t, b.Put([]byte("key0000000000001"), []byte("b")))
	require.ErrorIs(t, b.Finalize(), dabaerrors.ErrDuplicateKey)

	require.ErrorIs(t, b.Finalize(), dabaerrors.ErrClosed)
	require.ErrorIs(t, b.Put([]byte("key0000000000002"), nil), dabaerrors.ErrClosed)

	// nothing is left behind after a failed build
	entries, err := os.ReadDir(filepath.Dir(dataPath))
	require.NoError(t, err)
	require.Len(t, entries, 0)

	_, err = NewBuilder(filepath.Join(dataPath, "missing", "t.data"), indexPath)
	require.Error(t, err)
}

func TestBuilder_Abort(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	staging := t.TempDir()

	b, err := NewBuilder(dataPath, indexPath, WithTempDir(staging))
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("key0000000000001"), []byte("a")))

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	b.Abort()
	b.Abort()

	entries, err = os.ReadDir(staging)
	require.NoError(t, err)
	require.Len(t, entries, 0)
	_, err = os.Stat(dataPath)
	require.True(t, os.IsNotExist(err))
	require.ErrorIs(t, b.Finalize(), dabaerrors.ErrClosed)
}

func TestBuilder_Empty(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	b, err := NewBuilder(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, b.Finalize())

	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.Equal(t, 0, db.Len())
}
