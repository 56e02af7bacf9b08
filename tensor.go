// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package npyview

import "fmt"

// Order is the memory layout of a tensor's elements.
type Order uint8

const (
	// RowMajor means the last dimension varies fastest ('C' order).
	RowMajor Order = iota
	// ColumnMajor means the first dimension varies fastest ('F' order).
	ColumnMajor
)

func (o Order) String() string {
	if o == ColumnMajor {
		return "F"
	}
	return "C"
}

// Tensor is a view of a tensor within a file.
//
// Data references the byte-buffer the tensor was decoded from; it is not
// copied and must not be used after that buffer is released.
type Tensor struct {
	Name      string
	DType     DType
	Shape     []uint64
	Order     Order
	BigEndian bool
	Data      []byte
}

// Validate validates the object.
func (t *Tensor) Validate() error {
	size, err := numBytes(t.DType, t.Shape)
	if err != nil {
		return err
	}
	if n := uint64(len(t.Data)); n != size {
		return fmt.Errorf("%w: dtype=%s shape=%+v len(data)=%d", ErrShapeMismatch, t.DType, t.Shape, n)
	}
	return nil
}

// NumElements returns the number of elements described by the shape.
func (t *Tensor) NumElements() uint64 {
	return numElementsFromShape(t.Shape)
}

//

// numElementsFromShape returns the product of the dimensions. An empty shape
// is a scalar and holds one element.
func numElementsFromShape(shape []uint64) uint64 {
	n := uint64(1)
	for _, v := range shape {
		n *= v
	}
	return n
}

// numBytes returns the byte length of a tensor, checking for overflow.
func numBytes(dt DType, shape []uint64) (uint64, error) {
	d, err := Describe(string(dt))
	if err != nil {
		return 0, err
	}
	numElements := uint64(1)
	for _, v := range shape {
		if numElements, err = checkedMul(numElements, v); err != nil {
			return 0, fmt.Errorf("failed to compute num elements from shape: %w", err)
		}
	}
	n, err := checkedMul(numElements, d.Size)
	if err != nil {
		return 0, fmt.Errorf("failed to compute num bytes from num elements: %w", err)
	}
	return n, nil
}

// checkedMul multiplies a and b and checks for overflow.
func checkedMul(a, b uint64) (uint64, error) {
	c := a * b
	if a > 1 && b > 1 && c/a != b {
		return c, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}
