// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/npyview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNPY(t *testing.T, dir, name string, tensor *npyview.Tensor) string {
	buf := bytes.Buffer{}
	require.NoError(t, npyview.WriteNPY(&buf, tensor))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
	return p
}

func int64s(values ...int64) []byte {
	var b []byte
	for _, v := range values {
		b = binary.LittleEndian.AppendUint64(b, uint64(v))
	}
	return b
}

func TestMainImpl(t *testing.T) {
	dir := t.TempDir()
	p := writeNPY(t, dir, "x.npy", &npyview.Tensor{DType: npyview.I64, Shape: []uint64{2, 3}, Order: npyview.ColumnMajor, Data: int64s(0, 3, 1, 4, 2, 5)})

	t.Run("default", func(t *testing.T) {
		out := bytes.Buffer{}
		require.NoError(t, mainImpl([]string{p}, &out))
		assert.Equal(t, "x.npy\nI64 (2,3) F\n[[0, 1, 2], [3, 4, 5]]\n", out.String())
	})
	t.Run("no transpose", func(t *testing.T) {
		out := bytes.Buffer{}
		require.NoError(t, mainImpl([]string{"-fortran2c=false", p}, &out))
		assert.Equal(t, "x.npy\nI64 (2,3) F\n[[0, 3], [1, 4], [2, 5]]\n", out.String())
	})
	t.Run("shape", func(t *testing.T) {
		out := bytes.Buffer{}
		require.NoError(t, mainImpl([]string{"-shape", p, p}, &out))
		assert.Equal(t, "(2,3)\n(2,3)\n", out.String())
	})
	t.Run("mmap", func(t *testing.T) {
		out := bytes.Buffer{}
		require.NoError(t, mainImpl([]string{"-mmap", p}, &out))
		assert.Equal(t, "x.npy\nI64 (2,3) F\n[[0, 1, 2], [3, 4, 5]]\n", out.String())
	})
}

func TestMainImpl_Safetensors(t *testing.T) {
	header := `{"w":{"dtype":"U8","shape":[2],"data_offsets":[0,2]},"__metadata__":{"format":"pt","b":"c"}}`
	d := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	d = append(append(d, header...), 4, 5)
	p := filepath.Join(t.TempDir(), "m.safetensors")
	require.NoError(t, os.WriteFile(p, d, 0o600))

	out := bytes.Buffer{}
	require.NoError(t, mainImpl([]string{p}, &out))
	assert.Equal(t, "b: c\nformat: pt\nw\nU8 (2) C\n[4, 5]\n", out.String())
}

func TestMainImpl_Errors(t *testing.T) {
	out := bytes.Buffer{}
	assert.Error(t, mainImpl(nil, &out))

	p := writeNPY(t, t.TempDir(), "big.npy", &npyview.Tensor{DType: npyview.U8, Shape: []uint64{2 << 20}, Data: make([]byte, 2<<20)})
	err := mainImpl([]string{"-max-size", "1", p}, &out)
	assert.ErrorIs(t, err, npyview.ErrTooLarge)
	err = mainImpl([]string{"-mmap", "-max-size", "1", "-shape", p}, &out)
	assert.ErrorIs(t, err, npyview.ErrTooLarge)
	assert.Empty(t, out.String())
	require.NoError(t, mainImpl([]string{"-mmap", "-max-size", "3", "-shape", p}, &out))
	assert.Equal(t, "(2097152)\n", out.String())
	out.Reset()
	require.NoError(t, mainImpl([]string{"-max-size", "0", "-shape", p}, &out))
	assert.Equal(t, "(2097152)\n", out.String())

	err = mainImpl([]string{filepath.Join(t.TempDir(), "missing.npy")}, &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
