// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daba_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bpowers/daba"
)

func Example() {
	dir, err := os.MkdirTemp("", "daba-example")
	if err != nil {
		panic(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	dataPath := filepath.Join(dir, "greetings.data")
	indexPath := filepath.Join(dir, "greetings.index")

	keys := [][]byte{[]byte("key0000000000001"), []byte("key0000000000002")}
	values := [][]byte{[]byte("hello"), []byte("world!")}
	if err := daba.WriteDatabase(dataPath, indexPath, keys, values, 1); err != nil {
		panic(err)
	}

	db, err := daba.Open(dataPath, indexPath)
	if err != nil {
		panic(err)
	}
	defer func() { _ = db.Close() }()

	v, ok := db.Get([]byte("key0000000000002"))
	fmt.Println(string(v), ok)
	_, ok = db.Get([]byte("key0000000000003"))
	fmt.Println(ok)
	// Output:
	// world! true
	// false
}
