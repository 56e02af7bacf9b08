// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package npyview

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DType identifies a data type.
//
// The names match the dtype tags of the safetensors header. Numpy descr codes
// are mapped onto the same set by ParseDescr.
type DType string

const (
	// Boolan type
	BOOL DType = "BOOL"
	// Unsigned byte
	U8 DType = "U8"
	// Signed byte
	I8 DType = "I8"
	// Signed integer (16-bit)
	I16 DType = "I16"
	// Unsigned integer (16-bit)
	U16 DType = "U16"
	// Half-precision floating point
	F16 DType = "F16"
	// Brain floating point
	BF16 DType = "BF16"
	// Signed integer (32-bit)
	I32 DType = "I32"
	// Unsigned integer (32-bit)
	U32 DType = "U32"
	// Floating point (32-bit)
	F32 DType = "F32"
	// Floating point (64-bit)
	F64 DType = "F64"
	// Signed integer (64-bit)
	I64 DType = "I64"
	// Unsigned integer (64-bit)
	U64 DType = "U64"
)

// Kind is the numeric family of a DType.
type Kind uint8

const (
	// Two's complement integer
	SignedInt Kind = iota + 1
	// Unsigned integer
	UnsignedInt
	// IEEE 754 or bfloat16 floating point
	Float
	// One byte, non-zero is true
	Bool
)

func (k Kind) String() string {
	switch k {
	case SignedInt:
		return "int"
	case UnsignedInt:
		return "uint"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Descriptor describes the storage of one element of a DType.
type Descriptor struct {
	DType DType
	Size  uint64
	Kind  Kind
}

// DTypes lists every supported data type, in registry order.
var DTypes = []DType{BOOL, U8, I8, I16, U16, F16, BF16, I32, U32, F32, F64, I64, U64}

// Describe returns the descriptor of a dtype tag.
func Describe(tag string) (Descriptor, error) {
	switch dt := DType(tag); dt {
	case BOOL:
		return Descriptor{dt, 1, Bool}, nil
	case U8:
		return Descriptor{dt, 1, UnsignedInt}, nil
	case I8:
		return Descriptor{dt, 1, SignedInt}, nil
	case I16:
		return Descriptor{dt, 2, SignedInt}, nil
	case U16:
		return Descriptor{dt, 2, UnsignedInt}, nil
	case F16, BF16:
		return Descriptor{dt, 2, Float}, nil
	case I32:
		return Descriptor{dt, 4, SignedInt}, nil
	case U32:
		return Descriptor{dt, 4, UnsignedInt}, nil
	case F32:
		return Descriptor{dt, 4, Float}, nil
	case F64:
		return Descriptor{dt, 8, Float}, nil
	case I64:
		return Descriptor{dt, 8, SignedInt}, nil
	case U64:
		return Descriptor{dt, 8, UnsignedInt}, nil
	default:
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, tag)
	}
}

// WordSize returns the size in bytes of one element of this data type.
//
// Returns 0 for an unsupported data type.
func (dt DType) WordSize() uint64 {
	d, _ := Describe(string(dt))
	return d.Size
}

// Kind returns the numeric family of this data type.
func (dt DType) Kind() Kind {
	d, _ := Describe(string(dt))
	return d.Kind
}

// Validate returns an error if dt is not part of the registry.
func (dt DType) Validate() error {
	_, err := Describe(string(dt))
	return err
}

func (dt *DType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if err := DType(s).Validate(); err != nil {
		return fmt.Errorf("%q is not a valid DType: %w", s, ErrUnsupportedDType)
	}
	*dt = DType(s)
	return nil
}

// ParseDescr maps a numpy array-protocol type string such as "<f8" or "|b1"
// to a DType and reports whether the data is big-endian.
func ParseDescr(descr string) (DType, bool, error) {
	if len(descr) < 3 {
		return "", false, fmt.Errorf("%w: descr %q", ErrUnsupportedDType, descr)
	}
	bigEndian := false
	switch descr[0] {
	case '<', '|', '=':
	case '>':
		bigEndian = true
	default:
		return "", false, fmt.Errorf("%w: descr %q has invalid byte order", ErrUnsupportedDType, descr)
	}
	var dt DType
	switch descr[1:] {
	case "b1":
		dt = BOOL
	case "u1":
		dt = U8
	case "i1":
		dt = I8
	case "i2":
		dt = I16
	case "u2":
		dt = U16
	case "f2":
		dt = F16
	case "i4":
		dt = I32
	case "u4":
		dt = U32
	case "f4":
		dt = F32
	case "f8":
		dt = F64
	case "i8":
		dt = I64
	case "u8":
		dt = U64
	default:
		return "", false, fmt.Errorf("%w: descr %q", ErrUnsupportedDType, descr)
	}
	if dt.WordSize() == 1 {
		bigEndian = false
	}
	return dt, bigEndian, nil
}

// Descr returns the numpy array-protocol type string of dt.
//
// BF16 has no numpy equivalent and returns an empty string.
func (dt DType) Descr() string {
	switch dt {
	case BOOL:
		return "|b1"
	case U8:
		return "|u1"
	case I8:
		return "|i1"
	case I16:
		return "<i2"
	case U16:
		return "<u2"
	case F16:
		return "<f2"
	case I32:
		return "<i4"
	case U32:
		return "<u4"
	case F32:
		return "<f4"
	case F64:
		return "<f8"
	case I64:
		return "<i8"
	case U64:
		return "<u8"
	default:
		return ""
	}
}
