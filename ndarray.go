// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReshapeOptions controls how a flat buffer becomes a Nested array.
type ReshapeOptions struct {
	// TransposeColumnMajor selects how column-major data is presented. When
	// true the elements are permuted so the nesting follows the declared
	// shape. When false the data is read as-is with the shape reversed, which
	// shows the transposed array.
	TransposeColumnMajor bool
	// Precision is the number of decimals float values are rounded to.
	// Negative disables rounding.
	Precision int
}

// Nested is a recursive logical array.
//
// A leaf has nil Children and holds a single element in Value. An inner node
// holds children of uniform length at every depth.
type Nested struct {
	Value    any
	Children []Nested
}

// IsLeaf reports whether n holds a single element.
func (n Nested) IsLeaf() bool {
	return n.Children == nil
}

// Len returns the number of children.
func (n Nested) Len() int {
	return len(n.Children)
}

// At returns the element at the multi-index idx.
func (n Nested) At(idx ...int) any {
	for _, i := range idx {
		n = n.Children[i]
	}
	return n.Value
}

// String renders n as a bracketed list, e.g. [[0, 1, 2], [3, 4, 5]]. A
// scalar renders as its bare value.
func (n Nested) String() string {
	var b strings.Builder
	n.format(&b)
	return b.String()
}

func (n Nested) format(b *strings.Builder) {
	if n.IsLeaf() {
		b.WriteString(FormatValue(n.Value))
		return
	}
	b.WriteByte('[')
	for i, c := range n.Children {
		if i != 0 {
			b.WriteString(", ")
		}
		c.format(b)
	}
	b.WriteByte(']')
}

// FormatValue renders a leaf value.
func FormatValue(v any) string {
	switch v := v.(type) {
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		switch {
		case math.IsNaN(v):
			return "nan"
		case math.IsInf(v, 1):
			return "inf"
		case math.IsInf(v, -1):
			return "-inf"
		}
		if a := math.Abs(v); a != 0 && (a < 1e-6 || a >= 1e21) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ShapeString renders a shape as a tuple, e.g. (2,3).
func ShapeString(shape []uint64) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.FormatUint(d, 10)
	}
	return "(" + strings.Join(dims, ",") + ")"
}

// Reshape decodes t's elements and nests them following t's shape, always
// presenting the result in row-major order.
func Reshape(t *Tensor, opts ReshapeOptions) (Nested, error) {
	b, err := NewBuffer(t)
	if err != nil {
		return Nested{}, err
	}
	shape := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		if d > math.MaxInt32 {
			return Nested{}, fmt.Errorf("%w: dimension %d is too large", ErrShapeMismatch, d)
		}
		shape[i] = int(d)
	}
	return Reconstruct(b, shape, t.Order, opts)
}

// Reconstruct nests the elements of b following shape.
//
// The product of shape must equal b.Len(). The shape slice is not modified.
func Reconstruct(b *Buffer, shape []int, order Order, opts ReshapeOptions) (Nested, error) {
	n, err := shapeSize(shape, max(b.Len(), maxEmptyNodes))
	if err != nil {
		return Nested{}, err
	}
	if n != b.Len() {
		return Nested{}, fmt.Errorf("%w: shape %v holds %d elements, buffer has %d", ErrShapeMismatch, shape, n, b.Len())
	}
	var perm []int
	if order == ColumnMajor && len(shape) > 1 {
		if opts.TransposeColumnMajor {
			if perm, err = ColumnToRowMajor(shape); err != nil {
				return Nested{}, err
			}
		} else {
			shape = ReverseShape(shape)
		}
	}
	next := 0
	leaf := func() any {
		i := next
		next++
		if perm != nil {
			i = perm[i]
		}
		return roundValue(b.At(i), opts.Precision)
	}
	return build(shape, leaf), nil
}

// ColumnToRowMajor returns the permutation mapping a row-major flat position
// to the flat position of the same multi-index in a column-major buffer of
// the given shape.
//
// Element (i0, .., in-1) of a column-major buffer sits at Σ ik·Π_{j<k} dj.
func ColumnToRowMajor(shape []int) ([]int, error) {
	n, err := shapeSize(shape, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	perm := make([]int, n)
	if n == 0 {
		return perm, nil
	}
	strides := make([]int, len(shape))
	s := 1
	for k, d := range shape {
		strides[k] = s
		s *= d
	}
	idx := make([]int, len(shape))
	src := 0
	for p := range perm {
		perm[p] = src
		// Odometer increment, last dimension fastest.
		for k := len(shape) - 1; k >= 0; k-- {
			idx[k]++
			src += strides[k]
			if idx[k] < shape[k] {
				break
			}
			src -= strides[k] * shape[k]
			idx[k] = 0
		}
	}
	return perm, nil
}

// ReverseShape returns a reversed copy of shape.
func ReverseShape(shape []int) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[len(shape)-1-i] = d
	}
	return out
}

// build nests leaves depth-first. The recursion depth is len(shape); a
// zero-length shape is the base case and yields a single leaf.
func build(shape []int, leaf func() any) Nested {
	if len(shape) == 0 {
		return Nested{Value: leaf()}
	}
	children := make([]Nested, shape[0])
	for i := range children {
		children[i] = build(shape[1:], leaf)
	}
	return Nested{Children: children}
}

// maxEmptyNodes bounds the number of nodes built for a zero-sized array, e.g.
// shape (1000000, 0).
const maxEmptyNodes = 1 << 16

// shapeSize returns the number of elements described by shape.
//
// It fails when a dimension is negative or when the product of the leading
// dimensions exceeds limit, which also rules out overflow.
func shapeSize(shape []int, limit int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", ErrShapeMismatch, shape)
		}
		if d != 0 && n > limit/d {
			return 0, fmt.Errorf("%w: shape %v exceeds %d elements", ErrShapeMismatch, shape, limit)
		}
		n *= d
	}
	return n, nil
}

// roundValue rounds float values to the given number of decimals.
func roundValue(v any, precision int) any {
	f, ok := v.(float64)
	if !ok || precision < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	p := math.Pow10(precision)
	r := math.Round(f*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	return r
}
