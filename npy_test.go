// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawNPY builds a .npy buffer without padding the header.
func rawNPY(major byte, dict string, data []byte) []byte {
	b := append([]byte(npyMagic), major, 0)
	if major == 1 {
		b = binary.LittleEndian.AppendUint16(b, uint16(len(dict)))
	} else {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(dict)))
	}
	return append(append(b, dict...), data...)
}

func int64s(values ...int64) []byte {
	var b []byte
	for _, v := range values {
		b = binary.LittleEndian.AppendUint64(b, uint64(v))
	}
	return b
}

func TestNPY_RoundTrip(t *testing.T) {
	in := &Tensor{DType: I64, Shape: []uint64{2, 3}, Data: int64s(0, 1, 2, 3, 4, 5)}
	buf := bytes.Buffer{}
	require.NoError(t, WriteNPY(&buf, in))
	assert.Equal(t, 0, (buf.Len()-len(in.Data))%npyAlign, "data section must be aligned")

	got, err := ParseNPY(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, in, got)

	n, err := Reshape(got, DefaultOptions().Reshape)
	require.NoError(t, err)
	assert.Equal(t, "[[0, 1, 2], [3, 4, 5]]", n.String())
	assert.Equal(t, int64(5), n.At(1, 2))
	assert.Equal(t, int64(1), n.At(0, 1))
}

func TestParseNPY(t *testing.T) {
	t.Run("v1", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '<i2', 'fortran_order': False, 'shape': (3,), }\n", []byte{1, 0, 2, 0, 0xff, 0xff})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Equal(t, &Tensor{DType: I16, Shape: []uint64{3}, Data: []byte{1, 0, 2, 0, 0xff, 0xff}}, got)
		n, err := Reshape(got, DefaultOptions().Reshape)
		require.NoError(t, err)
		assert.Equal(t, "[1, 2, -1]", n.String())
	})
	t.Run("v2", func(t *testing.T) {
		d := rawNPY(2, "{'descr': '|u1', 'fortran_order': False, 'shape': (2, 2), }", []byte{1, 2, 3, 4})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 2}, got.Shape)
		assert.Equal(t, U8, got.DType)
	})
	t.Run("v3 utf8", func(t *testing.T) {
		d := rawNPY(3, "{'descr': '<f8', 'fortran_order': False, 'shape': (), 'note': 'é'}", int64s(int64(math.Float64bits(3.5))))
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Empty(t, got.Shape)
		n, err := Reshape(got, DefaultOptions().Reshape)
		require.NoError(t, err)
		assert.True(t, n.IsLeaf(), "scalars are not wrapped")
		assert.Equal(t, 3.5, n.Value)
		assert.Equal(t, "3.5", n.String())
	})
	t.Run("big-endian", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '>i2', 'fortran_order': False, 'shape': (2,), }", []byte{1, 2, 0xff, 0xfe})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.True(t, got.BigEndian)
		n, err := Reshape(got, DefaultOptions().Reshape)
		require.NoError(t, err)
		assert.Equal(t, "[258, -2]", n.String())
	})
	t.Run("float16", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '<f2', 'fortran_order': False, 'shape': (3,), }", []byte{0x00, 0x3C, 0x00, 0x7C, 0x00, 0xC0})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		n, err := Reshape(got, DefaultOptions().Reshape)
		require.NoError(t, err)
		assert.Equal(t, "[1, inf, -2]", n.String())
	})
	t.Run("fortran", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '<i8', 'fortran_order': True, 'shape': (2, 3), }", int64s(0, 3, 1, 4, 2, 5))
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Equal(t, ColumnMajor, got.Order)
	})
	t.Run("trailing bytes", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '|b1', 'fortran_order': False, 'shape': (2,), }", []byte{1, 0, 42})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 0}, got.Data)
		n, err := Reshape(got, DefaultOptions().Reshape)
		require.NoError(t, err)
		assert.Equal(t, "[true, false]", n.String())
	})
	t.Run("python2 shape", func(t *testing.T) {
		d := rawNPY(1, "{'descr': '<u4', 'fortran_order': False, 'shape': (1L, 2L), }", []byte{1, 0, 0, 0, 2, 0, 0, 0})
		got, err := ParseNPY(d)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, got.Shape)
	})
}

func TestParseNPY_Errors(t *testing.T) {
	header := func(dict string) []byte { return rawNPY(1, dict, nil) }
	data := []struct {
		name string
		in   []byte
		is   error
		err  string
	}{
		{"empty", nil, ErrMalformedHeader, "malformed header: invalid magic bytes"},
		{"short magic", []byte("\x93NUM"), ErrMalformedHeader, "malformed header: invalid magic bytes"},
		{"bad magic", []byte("\x93NUMPz\x01\x00"), ErrMalformedHeader, "malformed header: invalid magic bytes"},
		{"missing version", []byte("\x93NUMPY\x01"), ErrMalformedHeader, "malformed header: missing version"},
		{"unknown version", []byte("\x93NUMPY\x04\x00\x00\x00"), ErrMalformedHeader, "malformed header: unsupported version 4.0"},
		{"missing length", []byte("\x93NUMPY\x02\x00\x01"), ErrMalformedHeader, "malformed header: missing header length"},
		{
			"truncated header",
			[]byte("\x93NUMPY\x01\x00\xff\x00{"),
			ErrOutOfBounds,
			"malformed header: header: out of bounds: read of 255 bytes at offset 10, buffer is 11 bytes",
		},
		{"not a dict", header("(1,)"), ErrMalformedHeader, "malformed header: expected a dict, got []interface {}"},
		{"bad literal", header("{'descr'"), ErrMalformedHeader, "malformed header: offset 8: expected ':' after key \"descr\""},
		{
			"missing descr",
			header("{'fortran_order': False, 'shape': (1,)}"),
			ErrMalformedHeader,
			"malformed header: missing \"descr\"",
		},
		{
			"missing fortran_order",
			header("{'descr': '<f4', 'shape': (1,)}"),
			ErrMalformedHeader,
			"malformed header: missing or invalid \"fortran_order\"",
		},
		{
			"shape not a tuple",
			header("{'descr': '<f4', 'fortran_order': False, 'shape': 3}"),
			ErrMalformedHeader,
			"malformed header: missing or invalid \"shape\"",
		},
		{
			"negative shape",
			header("{'descr': '<f4', 'fortran_order': False, 'shape': (-1,)}"),
			ErrMalformedHeader,
			"malformed header: invalid \"shape\" value: expected tuple of natural numbers, actual [-1]",
		},
		{
			"complex",
			header("{'descr': '<c16', 'fortran_order': False, 'shape': (1,)}"),
			ErrUnsupportedDType,
			"unsupported dtype: descr \"<c16\"",
		},
		{
			"structured",
			header("{'descr': [('x', '<f4')], 'fortran_order': False, 'shape': (1,)}"),
			ErrUnsupportedDType,
			"unsupported dtype: descr [[x <f4]]",
		},
		{
			"truncated data",
			rawNPY(1, "{'descr': '<i4', 'fortran_order': False, 'shape': (4,)}", make([]byte, 8)),
			ErrOutOfBounds,
			"out of bounds: shape [4] of I32 needs 16 bytes, 8 available",
		},
	}
	for i, line := range data {
		t.Run(strconv.Itoa(i)+": "+line.name, func(t *testing.T) {
			_, err := ParseNPY(line.in)
			if err == nil || err.Error() != line.err {
				t.Fatalf("Invalid error\nwant: %s\ngot:  %v", line.err, err)
			}
			if !errors.Is(err, line.is) {
				t.Fatalf("want errors.Is(%v)", line.is)
			}
		})
	}
}

func TestWriteNPY(t *testing.T) {
	t.Run("fortran big-endian", func(t *testing.T) {
		in := &Tensor{DType: I16, Shape: []uint64{1, 2}, Order: ColumnMajor, BigEndian: true, Data: []byte{0, 1, 0, 2}}
		buf := bytes.Buffer{}
		require.NoError(t, WriteNPY(&buf, in))
		assert.Contains(t, buf.String(), "{'descr': '>i2', 'fortran_order': True, 'shape': (1, 2), }")
		got, err := ParseNPY(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})
	t.Run("large header", func(t *testing.T) {
		shape := make([]uint64, 30000)
		for i := range shape {
			shape[i] = 1
		}
		in := &Tensor{DType: U8, Shape: shape, Data: []byte{7}}
		buf := bytes.Buffer{}
		require.NoError(t, WriteNPY(&buf, in))
		assert.Equal(t, byte(2), buf.Bytes()[6], "version")
		got, err := ParseNPY(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})
	t.Run("bf16", func(t *testing.T) {
		err := WriteNPY(&bytes.Buffer{}, &Tensor{DType: BF16, Shape: []uint64{1}, Data: []byte{0x80, 0x3F}})
		assert.ErrorIs(t, err, ErrUnsupportedDType)
	})
	t.Run("invalid", func(t *testing.T) {
		err := WriteNPY(&bytes.Buffer{}, &Tensor{DType: F32, Shape: []uint64{2}, Data: []byte{0, 0, 0, 0}})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}
