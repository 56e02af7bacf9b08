// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// Mapped is a read-only memory mapped tensor file.
//
// Tensors of .npy and .safetensors files reference the mapping directly and
// must not be used after Close.
type Mapped struct {
	*File
	f io.Closer
	m mmap.MMap
}

// Close releases the memory region and the file handle.
func (s *Mapped) Close() error {
	err := s.m.Unmap()
	if err2 := s.f.Close(); err == nil {
		err = err2
	}
	return err
}

// Open opens a file and memory maps it read-only.
//
// The size limit of Decode does not apply since nothing is read eagerly.
func (s *Mapped) Open(name string) error {
	f, err := os.OpenFile(name, os.O_RDONLY, 0o600)
	if err != nil {
		return err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f = f
	s.m = m
	format := FormatFromPath(name)
	if format == FormatUnknown {
		format = DetectFormat(m)
	}
	s.File, err = DecodeBytes(format, m)
	if err != nil {
		_ = s.Close()
		return err
	}
	s.File.nameSingle(filepath.Base(name))
	return nil
}
