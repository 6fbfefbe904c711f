// Copyright 2021 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Gen-testdata writes random "hexkey:value" lines suitable as input to
// "daba build".  Each key is the first 16 bytes of an HMAC-SHA256 of its
// value, so keys are uniformly distributed and reproducible from values.
package main

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/pcg"
)

const hmacKey = "d259c7f656caf7f1"

const keySize = 16

type generator struct {
	h      hash.Hash
	rng    pcg.T
	prefix string
	maxLen uint32
}

func newGenerator(seed uint64, prefix string, maxLen uint32) *generator {
	return &generator{
		h:      hmac.New(sha256.New, []byte(hmacKey)),
		rng:    pcg.New(seed),
		prefix: prefix,
		maxLen: maxLen,
	}
}

// next returns the hex key and value for the i'th pair.
func (g *generator) next(i int) (string, string) {
	suffix := make([]byte, g.rng.Uint32n(g.maxLen+1))
	for j := range suffix {
		suffix[j] = "abcdefghijklmnopqrstuvwxyz0123456789"[g.rng.Uint32n(36)]
	}
	value := fmt.Sprintf("%s%d_%s", g.prefix, i, suffix)

	g.h.Reset()
	_, _ = g.h.Write([]byte(value))
	key := hex.EncodeToString(g.h.Sum(nil)[:keySize])
	return key, value
}

func generate(w io.Writer, g *generator, n int) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < n; i++ {
		k, v := g.next(i)
		if _, err := fmt.Fprintf(bw, "%s:%s\n", k, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func main() {
	n := flag.Int("n", 1000000, "number of pairs")
	seed := flag.Uint64("seed", 1, "random seed")
	prefix := flag.String("prefix", "pref_", "prefix for every value")
	maxLen := flag.Uint("max-len", 16, "maximum length of the random part of each value")
	flag.Parse()

	g := newGenerator(*seed, *prefix, uint32(*maxLen))
	if err := generate(os.Stdout, g, *n); err != nil {
		fmt.Fprintf(os.Stderr, "gen-testdata: %s\n", err)
		os.Exit(1)
	}
}
