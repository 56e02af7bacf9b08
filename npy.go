// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	stdbinary "encoding/binary"
	"fmt"

	"github.com/maruel/npyview/internal/binary"
	"go.uber.org/zap"
)

// npyMagic starts every npy file.
const npyMagic = "\x93NUMPY"

// ParseNPY parses a byte-buffer representing a whole .npy file.
//
// The returned tensor references buffer; nothing is copied. Bytes past the
// declared element count are ignored.
func ParseNPY(buffer []byte) (*Tensor, error) {
	r := binary.NewReader(buffer)
	magic, err := r.ReadBytes(len(npyMagic))
	if err != nil || string(magic) != npyMagic {
		return nil, fmt.Errorf("%w: invalid magic bytes", ErrMalformedHeader)
	}
	major, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedHeader)
	}
	minor, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedHeader)
	}
	var headerLen int
	switch major {
	case 1:
		n, err := r.ReadUint16(stdbinary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: missing header length", ErrMalformedHeader)
		}
		headerLen = int(n)
	case 2, 3:
		n, err := r.ReadUint32(stdbinary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: missing header length", ErrMalformedHeader)
		}
		if n > maxHeaderSize {
			return nil, fmt.Errorf("%w: too large max %d, actual %d", ErrMalformedHeader, maxHeaderSize, n)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrMalformedHeader, major, minor)
	}
	var header string
	if major == 3 {
		// Version 3 headers are UTF-8.
		b, err := r.ReadBytes(headerLen)
		if err != nil {
			return nil, fmt.Errorf("%w: header: %w", ErrMalformedHeader, err)
		}
		header = string(b)
	} else if header, err = r.ReadASCII(headerLen); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedHeader, err)
	}

	t, err := parseNPYHeader(header)
	if err != nil {
		return nil, err
	}
	n, err := numBytes(t.DType, t.Shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	if n > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: shape %v of %s needs %d bytes, %d available", ErrOutOfBounds, t.Shape, t.DType, n, r.Remaining())
	}
	if t.Data, err = r.ReadBytes(int(n)); err != nil {
		return nil, err
	}
	Logger().Debug("parsed npy header",
		zap.String("version", fmt.Sprintf("%d.%d", major, minor)),
		zap.String("dtype", string(t.DType)),
		zap.Uint64s("shape", t.Shape),
		zap.Stringer("order", t.Order))
	return t, nil
}

// parseNPYHeader decodes the header dictionary, e.g.
// {'descr': '<f8', 'fortran_order': False, 'shape': (2, 3), }
func parseNPYHeader(header string) (*Tensor, error) {
	v, err := parsePyLiteral(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a dict, got %T", ErrMalformedHeader, v)
	}

	t := &Tensor{}
	switch descr := d["descr"].(type) {
	case string:
		if t.DType, t.BigEndian, err = ParseDescr(descr); err != nil {
			return nil, err
		}
	case nil:
		return nil, fmt.Errorf(`%w: missing "descr"`, ErrMalformedHeader)
	default:
		// Structured arrays use a list of fields.
		return nil, fmt.Errorf("%w: descr %v", ErrUnsupportedDType, descr)
	}

	fortran, ok := d["fortran_order"].(bool)
	if !ok {
		return nil, fmt.Errorf(`%w: missing or invalid "fortran_order"`, ErrMalformedHeader)
	}
	if fortran {
		t.Order = ColumnMajor
	}

	dims, ok := d["shape"].([]any)
	if !ok {
		return nil, fmt.Errorf(`%w: missing or invalid "shape"`, ErrMalformedHeader)
	}
	t.Shape = make([]uint64, len(dims))
	for i, dim := range dims {
		u, ok := dim.(uint64)
		if !ok {
			return nil, fmt.Errorf(`%w: invalid "shape" value: expected tuple of natural numbers, actual %v`, ErrMalformedHeader, dims)
		}
		t.Shape[i] = u
	}
	return t, nil
}
