// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Member is a named buffer extracted from an archive.
type Member struct {
	Name string
	Data []byte
}

// Entry is the result of decoding one named tensor.
//
// Exactly one of Tensor and Err is set.
type Entry struct {
	Name   string
	Tensor *Tensor
	Err    error
}

// ReadNPZ lists the members of a .npz archive in archive order.
//
// Each member is decompressed into its own buffer.
func ReadNPZ(buffer []byte) ([]Member, error) {
	zr, err := zip.NewReader(bytes.NewReader(buffer), int64(len(buffer)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	members := make([]Member, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: member %q: %w", ErrMalformedHeader, f.Name, err)
		}
		members = append(members, Member{Name: f.Name, Data: data})
	}
	return members, nil
}

// DecodeMembers parses every member as a .npy buffer.
//
// A member that fails to decode gets an *EntryError in its slot; the other
// members are still decoded. The order of members is preserved.
func DecodeMembers(members []Member) []Entry {
	entries := make([]Entry, len(members))
	for i, m := range members {
		entries[i].Name = m.Name
		t, err := ParseNPY(m.Data)
		if err != nil {
			entries[i].Err = &EntryError{Name: m.Name, Err: err}
			Logger().Warn("failed to decode npz member", zap.String("name", m.Name), zap.Error(err))
			continue
		}
		t.Name = m.Name
		entries[i].Tensor = t
	}
	return entries
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	if err2 := rc.Close(); err == nil {
		err = err2
	}
	return data, err
}
