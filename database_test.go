// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/pcg"

	dabaerrors "github.com/bpowers/daba/errors"
)

func tablePaths(t testing.TB) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "t.data"), filepath.Join(dir, "t.index")
}

func writeAndOpen(t testing.TB, keys, values [][]byte) *Database {
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath, keys, values, 1))
	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// randomPairs returns n distinct random keys with values of random length,
// some of them empty.
func randomPairs(n int) ([][]byte, [][]byte) {
	seen := make(map[Key]struct{}, n)
	keys := make([][]byte, 0, n)
	values := make([][]byte, 0, n)
	for len(keys) < n {
		var k Key
		binary.LittleEndian.PutUint64(k[0:8], pcg.Uint64())
		binary.LittleEndian.PutUint64(k[8:16], pcg.Uint64())
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		v := make([]byte, pcg.Uint32n(64))
		for i := range v {
			v[i] = byte(pcg.Uint32())
		}
		keys = append(keys, k[:])
		values = append(values, v)
	}
	return keys, values
}

func TestDatabase_ThreeKeys(t *testing.T) {
	db := writeAndOpen(t,
		[][]byte{[]byte("key0000000000001"), []byte("key0000000000002"), []byte("key0000000000003")},
		[][]byte{[]byte("hello"), []byte("world"), []byte("rustlang")},
	)
	require.Equal(t, 3, db.Len())
	require.Equal(t, uint32(1), db.Version())

	for k, expected := range map[string]string{
		"key0000000000001": "hello",
		"key0000000000002": "world",
		"key0000000000003": "rustlang",
	} {
		v, ok := db.Get([]byte(k))
		require.True(t, ok)
		require.Equal(t, expected, string(v))
	}

	v, ok := db.Get([]byte("missing000000001"))
	require.False(t, ok)
	require.Nil(t, v)
}

func TestDatabase_SingleKey(t *testing.T) {
	db := writeAndOpen(t,
		[][]byte{[]byte("onlykey000000001")},
		[][]byte{[]byte("single_value")},
	)
	v, ok := db.Get([]byte("onlykey000000001"))
	require.True(t, ok)
	require.Equal(t, "single_value", string(v))
}

func TestDatabase_EmptyValue(t *testing.T) {
	keys := [][]byte{[]byte("AAAAAAAAAAAAAAAA"), []byte("BBBBBBBBBBBBBBBB"), []byte("CCCCCCCCCCCCCCCC")}
	values := [][]byte{[]byte("x"), {}, []byte("zz")}
	db := writeAndOpen(t, keys, values)

	for i, k := range keys {
		v, ok := db.Get(k)
		require.True(t, ok)
		require.Equal(t, string(values[i]), string(v))
	}
	v, ok := db.Get([]byte("BBBBBBBBBBBBBBBB"))
	require.True(t, ok)
	require.Len(t, v, 0)
}

func TestDatabase_Empty(t *testing.T) {
	db := writeAndOpen(t, nil, nil)
	require.Equal(t, 0, db.Len())
	_, ok := db.Get([]byte("key0000000000001"))
	require.False(t, ok)
}

func TestDatabase_Random(t *testing.T) {
	keys, values := randomPairs(10000)
	db := writeAndOpen(t, keys, values)
	require.Equal(t, len(keys), db.Len())

	for i, k := range keys {
		v, ok := db.Get(k)
		require.True(t, ok)
		require.Equal(t, values[i], append([]byte{}, v...))
	}

	// random keys that weren't inserted are absent
	absent, _ := randomPairs(1000)
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[string(k)] = true
	}
	for _, k := range absent {
		if present[string(k)] {
			continue
		}
		_, ok := db.Get(k)
		require.False(t, ok)
	}
}

func TestDatabase_WrongKeySize(t *testing.T) {
	db := writeAndOpen(t,
		[][]byte{[]byte("key0000000000001")},
		[][]byte{[]byte("hello")},
	)
	for _, k := range []string{"", "key", "key0000000000001x", "key000000000000"} {
		_, ok := db.Get([]byte(k))
		require.False(t, ok, "key %q", k)
	}
}

func TestDatabase_GetString(t *testing.T) {
	db := writeAndOpen(t,
		[][]byte{[]byte("key0000000000001")},
		[][]byte{[]byte("hello")},
	)
	v, ok := db.GetString("key0000000000001")
	require.True(t, ok)
	require.Equal(t, "hello", string(v))

	_, ok = db.GetString("")
	require.False(t, ok)
}

func TestDatabase_ValueCapacity(t *testing.T) {
	db := writeAndOpen(t,
		[][]byte{[]byte("key0000000000001"), []byte("key0000000000002")},
		[][]byte{[]byte("hello"), []byte("world!")},
	)
	v, ok := db.Get([]byte("key0000000000001"))
	require.True(t, ok)
	require.Equal(t, len(v), cap(v))
}

func TestDatabase_Concurrent(t *testing.T) {
	keys, values := randomPairs(2000)
	db := writeAndOpen(t, keys, values)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < len(keys); i += 3 {
				v, ok := db.Get(keys[i])
				if !ok || string(v) != string(values[i]) {
					errs <- fmt.Errorf("goroutine %d: bad lookup for key %d", g, i)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestDatabase_Close(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("key0000000000001")},
		[][]byte{[]byte("hello")}, 1))
	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, ok := db.Get([]byte("key0000000000001"))
	require.False(t, ok)
	_, err = db.Digest()
	require.ErrorIs(t, err, dabaerrors.ErrClosed)
}

func TestDatabase_Version(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("key0000000000001")},
		[][]byte{[]byte("hello")}, 7))
	db, err := Open(dataPath, indexPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.Equal(t, uint32(7), db.Version())
}

func TestWriteDatabase_Errors(t *testing.T) {
	dataPath, indexPath := tablePaths(t)

	err := WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("key0000000000001")}, nil, 1)
	require.ErrorIs(t, err, dabaerrors.ErrLengthMismatch)

	err = WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("short")}, [][]byte{[]byte("v")}, 1)
	require.ErrorIs(t, err, dabaerrors.ErrKeySize)

	// contract violations are caught before any file is created
	_, statErr := os.Stat(dataPath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(indexPath)
	require.True(t, os.IsNotExist(statErr))

	err = WriteDatabase(dataPath, indexPath,
		[][]byte{[]byte("key0000000000001"), []byte("key0000000000001")},
		[][]byte{[]byte("a"), []byte("b")}, 1)
	require.ErrorIs(t, err, dabaerrors.ErrDuplicateKey)
	_, statErr = os.Stat(dataPath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(indexPath)
	require.True(t, os.IsNotExist(statErr))

	err = WriteDatabase(filepath.Join(dataPath, "missing", "t.data"), indexPath,
		[][]byte{[]byte("key0000000000001")}, [][]byte{[]byte("a")}, 1)
	require.Error(t, err)
}

func TestWriteDatabase_KeySize(t *testing.T) {
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath, [][]byte{[]byte("key0000000000001")}, [][]byte{[]byte("a")}, 1))

	contents, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	require.Equal(t, uint64(KeySize), binary.LittleEndian.Uint64(contents[16:24]))
	require.Equal(t, KeySize, len(Key{}))
}

func TestWriteDatabase_KeepsUntouchedFiles(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "precious.data")
	require.NoError(t, os.WriteFile(dataPath, []byte("keep me"), 0644))

	// the index can't be created, so the data file is never opened
	err := WriteDatabase(dataPath, filepath.Join(dir, "missing", "t.index"),
		[][]byte{[]byte("key0000000000001")}, [][]byte{[]byte("a")}, 1)
	require.ErrorIs(t, err, os.ErrNotExist)

	contents, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(contents))
}

func TestOpen_Errors(t *testing.T) {
	keys, values := randomPairs(100)
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath, keys, values, 1))

	t.Run("missing", func(t *testing.T) {
		_, err := Open(dataPath+".missing", indexPath)
		require.ErrorIs(t, err, os.ErrNotExist)
		_, err = Open(dataPath, indexPath+".missing")
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("swapped", func(t *testing.T) {
		_, err := Open(indexPath, dataPath)
		require.ErrorIs(t, err, dabaerrors.ErrBadMagic)
	})

	t.Run("mismatched", func(t *testing.T) {
		otherKeys, otherValues := randomPairs(50)
		otherData, otherIndex := tablePaths(t)
		require.NoError(t, WriteDatabase(otherData, otherIndex, otherKeys, otherValues, 1))
		_, err := Open(dataPath, otherIndex)
		require.ErrorIs(t, err, dabaerrors.ErrCountMismatch)
	})

	t.Run("truncated values", func(t *testing.T) {
		contents, err := os.ReadFile(dataPath)
		require.NoError(t, err)

		// keep the header but drop every value
		short := filepath.Join(t.TempDir(), "short.data")
		require.NoError(t, os.WriteFile(short, contents[:32], 0644))
		_, err = Open(short, indexPath)
		require.ErrorIs(t, err, dabaerrors.ErrCorrupted)
	})

	t.Run("truncated header", func(t *testing.T) {
		short := filepath.Join(t.TempDir(), "short.data")
		require.NoError(t, os.WriteFile(short, []byte("DABA"), 0644))
		_, err := Open(short, indexPath)
		require.ErrorIs(t, err, dabaerrors.ErrTruncated)
	})
}

func TestDatabase_Digest(t *testing.T) {
	keys, values := randomPairs(500)
	db := writeAndOpen(t, keys, values)

	reversedKeys := make([][]byte, len(keys))
	reversedValues := make([][]byte, len(values))
	for i := range keys {
		reversedKeys[len(keys)-1-i] = keys[i]
		reversedValues[len(values)-1-i] = values[i]
	}
	reversed := writeAndOpen(t, reversedKeys, reversedValues)

	d1, err := db.Digest()
	require.NoError(t, err)
	d2, err := reversed.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.NotEqual(t, d1.Data, d1.Index)
}

func TestOpen_Options(t *testing.T) {
	keys, values := randomPairs(100)
	dataPath, indexPath := tablePaths(t)
	require.NoError(t, WriteDatabase(dataPath, indexPath, keys, values, 1))

	db, err := Open(dataPath, indexPath, WithoutAdvice(), WithMlock())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	v, ok := db.Get(keys[42])
	require.True(t, ok)
	require.Equal(t, values[42], append([]byte{}, v...))
}

var (
	benchDB      *Database
	benchKeys    [][]byte
	benchHashmap map[string][]byte
	benchOnce    sync.Once
)

func loadBench(b *testing.B) {
	benchOnce.Do(func() {
		var values [][]byte
		benchKeys, values = randomPairs(100000)
		dir, err := os.MkdirTemp("", "daba-bench")
		if err != nil {
			panic(err)
		}
		dataPath, indexPath := filepath.Join(dir, "t.data"), filepath.Join(dir, "t.index")
		if err := WriteDatabase(dataPath, indexPath, benchKeys, values, 1); err != nil {
			panic(err)
		}
		if benchDB, err = Open(dataPath, indexPath); err != nil {
			panic(err)
		}
		benchHashmap = make(map[string][]byte, len(benchKeys))
		for i, k := range benchKeys {
			benchHashmap[string(k)] = values[i]
		}
	})
}

func BenchmarkDatabase_Get(b *testing.B) {
	loadBench(b)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		k := benchKeys[n%len(benchKeys)]
		if _, ok := benchDB.Get(k); !ok {
			b.Fatal("missing key")
		}
	}
}

func BenchmarkHashmap_Get(b *testing.B) {
	loadBench(b)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		k := benchKeys[n%len(benchKeys)]
		if _, ok := benchHashmap[string(k)]; !ok {
			b.Fatal("missing key")
		}
	}
}
