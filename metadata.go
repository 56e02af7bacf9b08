// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package npyview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// metadataKey is the reserved header key holding free-form string metadata.
const metadataKey = "__metadata__"

// Metadata represents the header of safetensor files which allow
// indexing into the raw byte-buffer array and indicates how to interpret it.
type Metadata struct {
	// Metadata is the tensors' metadata.
	Metadata map[string]string
	Names    []string
	Tensors  []TensorInfo
}

// TensorInfo provides information of a single tensor.
//
// Endianness is assumed to be little-endian. Ordering is assumed to be 'C'.
type TensorInfo struct {
	// The DType of each element of the tensor.
	DType DType `json:"dtype"`
	// The Shape of the tensor.
	Shape []uint64 `json:"shape"`
	// DataOffsets provides the offsets to find the data
	// within the byte-buffer array.
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// validate the Metadata object against a data section of dataLen bytes.
func (m *Metadata) validate(dataLen uint64) error {
	start := uint64(0)
	for i, info := range m.Tensors {
		s := info.DataOffsets[0]
		e := info.DataOffsets[1]
		if e > dataLen || s > dataLen {
			return fmt.Errorf("%w: tensor %q #%d: data offsets [%d, %d] exceed data section of %d bytes", ErrOutOfBounds, m.Names[i], i, s, e, dataLen)
		}
		if s != start || e < s {
			return fmt.Errorf("%w: tensor %q #%d: invalid offset", ErrMalformedHeader, m.Names[i], i)
		}
		start = e
		n, err := numBytes(info.DType, info.Shape)
		if err != nil {
			return fmt.Errorf("%w: tensor %q #%d: %w", ErrMalformedHeader, m.Names[i], i, err)
		}
		if e-s != n {
			return fmt.Errorf("%w: tensor %q #%d: info data offsets mismatch", ErrMalformedHeader, m.Names[i], i)
		}
	}
	if start != dataLen {
		return fmt.Errorf("%w: metadata incomplete buffer: %d != %d", ErrMalformedHeader, start, dataLen)
	}
	return nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to unmarshal Metadata: %w", err)
	}

	var metadata map[string]string
	tensors := make([]namedTensorInfo, 0, len(raw))
	for k, v := range raw {
		if k == metadataKey {
			var err error
			if metadata, err = unmarshalMetadata(v); err != nil {
				return err
			}
		} else {
			info, err := unmarshalTensorInfo(v)
			if err != nil {
				return fmt.Errorf("failed to JSON-decode tensor %q: %w", k, err)
			}
			tensors = append(tensors, namedTensorInfo{name: k, tensorInfo: info})
		}
	}

	// Sort by offsets so the order matches the data layout. Writers are free
	// to emit keys in any order.
	sort.Slice(tensors, func(i, j int) bool {
		a := tensors[i].tensorInfo.DataOffsets
		b := tensors[j].tensorInfo.DataOffsets
		return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1]) || (a == b && tensors[i].name < tensors[j].name)
	})

	m.Metadata = metadata
	m.Names = make([]string, len(tensors))
	m.Tensors = make([]TensorInfo, len(tensors))
	for i, v := range tensors {
		m.Names[i] = v.name
		m.Tensors[i] = v.tensorInfo
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Names)+1)
	if len(m.Metadata) > 0 {
		obj[metadataKey] = m.Metadata
	}
	for index, name := range m.Names {
		obj[name] = &m.Tensors[index]
	}
	return json.Marshal(obj)
}

//

// namedTensorInfo is a pair of a TensorInfo and its name (or label, or key).
type namedTensorInfo struct {
	name       string
	tensorInfo TensorInfo
}

func unmarshalMetadata(value map[string]any) (map[string]string, error) {
	result := make(map[string]string, len(value))
	for k, v := range value {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s %q has value %#v: expected string type, actual %T", metadataKey, k, v, v)
		}
		result[k] = str
	}
	return result, nil
}

func unmarshalTensorInfo(m map[string]any) (TensorInfo, error) {
	if len(m) != 3 {
		return TensorInfo{}, fmt.Errorf("invalid keys: expected 3 keys (dtype, shape, data_offsets), actual %d", len(m))
	}
	dType, err := unmarshalTIDType(m)
	if err != nil {
		return TensorInfo{}, err
	}
	shape, err := unmarshalNaturals(m, "shape", -1)
	if err != nil {
		return TensorInfo{}, err
	}
	offsets, err := unmarshalNaturals(m, "data_offsets", 2)
	if err != nil {
		return TensorInfo{}, err
	}
	return TensorInfo{
		DType:       dType,
		Shape:       shape,
		DataOffsets: [2]uint64{offsets[0], offsets[1]},
	}, nil
}

func unmarshalTIDType(m map[string]any) (DType, error) {
	v, ok := m["dtype"]
	if !ok {
		return "", fmt.Errorf(`missing "dtype"`)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf(`invalid "dtype" value: %#v of type %T`, v, v)
	}
	if err := DType(s).Validate(); err != nil {
		return "", err
	}
	return DType(s), nil
}

// unmarshalNaturals decodes key as an array of natural numbers. When want is
// not negative, the array must have exactly want elements.
func unmarshalNaturals(m map[string]any, key string, want int) ([]uint64, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing %q", key)
	}
	values, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid %q value: expected array, actual %#v", key, v)
	}
	if want >= 0 && len(values) != want {
		return nil, fmt.Errorf("invalid %q value: expected array of %d elements, actual len %d: %#v", key, want, len(values), values)
	}
	out := make([]uint64, len(values))
	for i, val := range values {
		jn, ok := val.(json.Number)
		if !ok {
			return nil, fmt.Errorf("invalid %q value: expected array of natural numbers, actual %#v", key, v)
		}
		n, err := strconv.ParseUint(jn.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %q value: expected array of natural numbers, actual %#v: %w", key, v, err)
		}
		out[i] = n
	}
	return out, nil
}
