// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/daba"
)

func TestGenerate(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, generate(&a, newGenerator(7, "p_", 8), 100))
	require.NoError(t, generate(&b, newGenerator(7, "p_", 8), 100))
	require.Equal(t, a.String(), b.String())

	lines := strings.Split(strings.TrimSuffix(a.String(), "\n"), "\n")
	require.Len(t, lines, 100)
	seen := make(map[string]bool)
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ":")
		require.True(t, ok)
		_, err := daba.ParseKey(k)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(v, "p_"))
		require.False(t, seen[k])
		seen[k] = true
	}
}
