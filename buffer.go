// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	stdbinary "encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Buffer is a flat sequence of typed elements backed by a Tensor's data.
//
// Integer, boolean, F32 and F64 elements are read directly from the tensor's
// bytes, so the Buffer shares their lifetime. F16 and BF16 have no native Go
// type and are decoded once into float64 values when the Buffer is created.
type Buffer struct {
	desc   Descriptor
	order  stdbinary.ByteOrder
	data   []byte
	floats []float64
	n      int
}

// NewBuffer returns the flat element view of t.
func NewBuffer(t *Tensor) (*Buffer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	desc, err := Describe(string(t.DType))
	if err != nil {
		return nil, err
	}
	b := &Buffer{desc: desc, order: stdbinary.LittleEndian, data: t.Data, n: int(t.NumElements())}
	if t.BigEndian {
		b.order = stdbinary.BigEndian
	}
	switch t.DType {
	case F16:
		b.floats = make([]float64, b.n)
		for i := range b.floats {
			b.floats[i] = DecodeF16(b.order.Uint16(t.Data[2*i:]))
		}
	case BF16:
		b.floats = make([]float64, b.n)
		for i := range b.floats {
			b.floats[i] = widenFloat32(DecodeBF16(b.order.Uint16(t.Data[2*i:])))
		}
	}
	return b, nil
}

// Len returns the number of elements.
func (b *Buffer) Len() int {
	return b.n
}

// Descriptor returns the element descriptor.
func (b *Buffer) Descriptor() Descriptor {
	return b.desc
}

// At returns element i as a bool, int64, uint64 or float64 depending on the
// dtype's Kind.
func (b *Buffer) At(i int) any {
	d := b.data
	switch b.desc.DType {
	case BOOL:
		return d[i] != 0
	case U8:
		return uint64(d[i])
	case I8:
		return int64(int8(d[i]))
	case U16:
		return uint64(b.order.Uint16(d[2*i:]))
	case I16:
		return int64(int16(b.order.Uint16(d[2*i:])))
	case U32:
		return uint64(b.order.Uint32(d[4*i:]))
	case I32:
		return int64(int32(b.order.Uint32(d[4*i:])))
	case U64:
		return b.order.Uint64(d[8*i:])
	case I64:
		return int64(b.order.Uint64(d[8*i:]))
	case F16, BF16:
		return b.floats[i]
	case F32:
		return widenFloat32(math.Float32frombits(b.order.Uint32(d[4*i:])))
	case F64:
		return math.Float64frombits(b.order.Uint64(d[8*i:]))
	default:
		panic(fmt.Sprintf("unexpected dtype %q", b.desc.DType))
	}
}

// widenFloat32 converts f to the float64 closest to its shortest decimal
// representation, so 0.1f becomes 0.1 rather than 0.10000000149011612.
func widenFloat32(f float32) float64 {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return float64(f)
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return v
}
