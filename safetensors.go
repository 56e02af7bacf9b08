// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package npyview

import (
	stdbinary "encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/maruel/npyview/internal/binary"
	"go.uber.org/zap"
)

const maxHeaderSize = 100_000_000

// ParseSafetensors parses a byte-buffer representing the whole safetensors
// file.
//
// The returned tensors reference buffer; nothing is copied.
func ParseSafetensors(buffer []byte) (*File, error) {
	r := binary.NewReader(buffer)
	n, err := r.ReadUint64(stdbinary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: too small (%d bytes)", ErrMalformedHeader, len(buffer))
	}
	if n > maxHeaderSize {
		return nil, fmt.Errorf("%w: too large max %d, actual %d", ErrMalformedHeader, maxHeaderSize, n)
	}
	header, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("invalid header length %d: %w", n, err)
	}
	var m Metadata
	if err := json.Unmarshal(header, &m); err != nil {
		if errors.Is(err, ErrUnsupportedDType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	data, _ := r.ReadBytes(r.Remaining())
	if err := m.validate(uint64(len(data))); err != nil {
		return nil, err
	}
	f := &File{Format: FormatSafetensors, Metadata: m.Metadata, Entries: make([]Entry, len(m.Names))}
	for i, info := range m.Tensors {
		s, e := info.DataOffsets[0], info.DataOffsets[1]
		f.Entries[i] = Entry{
			Name: m.Names[i],
			Tensor: &Tensor{
				Name:  m.Names[i],
				DType: info.DType,
				Shape: info.Shape,
				Order: RowMajor,
				Data:  data[s:e:e],
			},
		}
	}
	Logger().Debug("parsed safetensors header", zap.Int("tensors", len(f.Entries)), zap.Int("header_bytes", int(n)))
	return f, nil
}

// Serialize writes tensors and optional string metadata in safetensors
// format.
//
// Tensors must be row-major little-endian.
func Serialize(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	header, data, err := prepare(tensors, metadata)
	if err != nil {
		return err
	}

	var nbArr [8]byte
	stdbinary.LittleEndian.PutUint64(nbArr[:], uint64(len(header)))
	if _, err = w.Write(nbArr[:]); err != nil {
		return err
	}
	if _, err = w.Write(header); err != nil {
		return err
	}
	for _, t := range data {
		if _, err = w.Write(t.Data); err != nil {
			return err
		}
	}
	return nil
}

//

func prepare(tensors []Tensor, metadata map[string]string) ([]byte, []Tensor, error) {
	// Make sure we're sorting by descending dtype alignment,
	// then by name.
	data := make([]Tensor, 0, len(tensors))
	for _, t := range tensors {
		if err := t.Validate(); err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		if t.Order != RowMajor || t.BigEndian {
			return nil, nil, fmt.Errorf("tensor %q: only little-endian row-major data can be serialized", t.Name)
		}
		data = append(data, t)
	}
	sort.Slice(data, func(i, j int) bool {
		l, r := &data[i], &data[j]
		ldt, rdt := l.DType.WordSize(), r.DType.WordSize()
		return ldt > rdt || (ldt == rdt && l.Name < r.Name)
	})

	offset := uint64(0)
	m := Metadata{
		Metadata: metadata,
		Names:    make([]string, len(data)),
		Tensors:  make([]TensorInfo, len(data)),
	}
	for i, t := range data {
		n := uint64(len(t.Data))
		shape := t.Shape
		if shape == nil {
			shape = []uint64{}
		}
		m.Names[i] = t.Name
		m.Tensors[i] = TensorInfo{
			DType:       t.DType,
			Shape:       shape,
			DataOffsets: [2]uint64{offset, offset + n},
		}
		offset += n
	}

	metadataBuf, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to JSON-marshal metadata: %w", err)
	}

	// Force alignment to 8 bytes.
	if extra := (8 - len(metadataBuf)%8) % 8; extra > 0 {
		metadataBuf = append(metadataBuf, "       "[:extra]...)
	}
	return metadataBuf, data, nil
}
