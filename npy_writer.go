// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	stdbinary "encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// npyAlign is the alignment of the data section; the header is padded with
// spaces and a final newline to reach it.
const npyAlign = 64

// WriteNPY writes t in .npy format.
//
// Version 1.0 is used unless the header does not fit in 64KiB.
func WriteNPY(w io.Writer, t *Tensor) error {
	if err := t.Validate(); err != nil {
		return err
	}
	descr := t.DType.Descr()
	if descr == "" {
		return fmt.Errorf("%w: %s has no npy representation", ErrUnsupportedDType, t.DType)
	}
	if t.BigEndian && t.DType.WordSize() > 1 {
		descr = ">" + descr[1:]
	}
	fortran := "False"
	if t.Order == ColumnMajor {
		fortran = "True"
	}
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = strconv.FormatUint(d, 10)
	}
	shape := strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", descr, fortran, shape)

	// magic + version + header length field.
	prefix := len(npyMagic) + 2 + 2
	major := byte(1)
	total := (prefix + len(dict) + 1 + npyAlign - 1) / npyAlign * npyAlign
	if total-prefix > math.MaxUint16 {
		major = 2
		prefix += 2
		total = (prefix + len(dict) + 1 + npyAlign - 1) / npyAlign * npyAlign
	}
	headerLen := total - prefix

	buf := make([]byte, 0, total)
	buf = append(buf, npyMagic...)
	buf = append(buf, major, 0)
	if major == 1 {
		buf = stdbinary.LittleEndian.AppendUint16(buf, uint16(headerLen))
	} else {
		buf = stdbinary.LittleEndian.AppendUint32(buf, uint32(headerLen))
	}
	buf = append(buf, dict...)
	for len(buf) < total-1 {
		buf = append(buf, ' ')
	}
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := w.Write(t.Data)
	return err
}
