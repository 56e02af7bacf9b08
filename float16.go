// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import "math"

// DecodeF16 converts an IEEE 754 half-precision bit pattern.
//
// Subnormals are mantissa × 2^-24, the same value as the usual
// 2^-14 × mantissa/1024 form.
func DecodeF16(bits uint16) float64 {
	neg := bits&0x8000 != 0
	exp := int(bits&0x7C00) >> 10
	mant := float64(bits & 0x03FF)
	var v float64
	switch exp {
	case 0:
		v = math.Ldexp(mant, -24)
	case 31:
		if mant != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(1+mant/1024, exp-15)
	}
	if neg {
		return -v
	}
	return v
}

// DecodeBF16 converts a bfloat16 bit pattern.
//
// bfloat16 is the upper half of an IEEE 754 single-precision float.
func DecodeBF16(bits uint16) float32 {
	return math.Float32frombits(uint32(bits) << 16)
}
