// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Format is a supported container format.
type Format uint8

const (
	// FormatUnknown is returned when the format cannot be determined.
	FormatUnknown Format = iota
	// FormatNPY is a single numpy array.
	FormatNPY
	// FormatNPZ is a zip archive of numpy arrays.
	FormatNPZ
	// FormatSafetensors is a JSON header followed by concatenated tensors.
	FormatSafetensors
)

func (f Format) String() string {
	switch f {
	case FormatNPY:
		return "npy"
	case FormatNPZ:
		return "npz"
	case FormatSafetensors:
		return "safetensors"
	default:
		return "unknown"
	}
}

// Options configures Decode.
type Options struct {
	// MaxFileSize is the largest file Decode accepts, in bytes. 0 disables the
	// check.
	MaxFileSize int64
	Reshape     ReshapeOptions
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{
		MaxFileSize: 50 << 20,
		Reshape: ReshapeOptions{
			TransposeColumnMajor: true,
			Precision:            8,
		},
	}
}

// File is the decoded content of a tensor file.
type File struct {
	Format Format
	// Entries are in file order. A .npy file has exactly one entry.
	Entries []Entry
	// Metadata is the safetensors free-form metadata, if any.
	Metadata map[string]string
}

// Tensor retrieves a decoded tensor by name.
//
// Returns nil if not found or if the entry failed to decode.
func (f *File) Tensor(name string) *Tensor {
	// Linear search for now. Normally the number of tensors is at most in the
	// low hundreds so it's not a big deal.
	for i := range f.Entries {
		if f.Entries[i].Name == name {
			return f.Entries[i].Tensor
		}
	}
	return nil
}

// Shapes returns a one line summary of the shapes, e.g. "a.npy (2,3) b.npy (4)".
func (f *File) Shapes() string {
	var parts []string
	for _, e := range f.Entries {
		s := "(?)"
		if e.Tensor != nil {
			s = ShapeString(e.Tensor.Shape)
		}
		if f.Format == FormatNPY {
			parts = append(parts, s)
		} else {
			parts = append(parts, e.Name+" "+s)
		}
	}
	return strings.Join(parts, " ")
}

// Decode reads and decodes the file at path.
//
// The format is chosen from the file extension, falling back to the content.
func Decode(path string, opts Options) (*File, error) {
	if err := CheckSize(path, opts.MaxFileSize); err != nil {
		return nil, err
	}
	//nolint:gosec // G304: the path is the file the user asked to view.
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := FormatFromPath(path)
	if format == FormatUnknown {
		format = DetectFormat(buf)
	}
	Logger().Debug("decoding file", zap.String("path", path), zap.Stringer("format", format), zap.Int("bytes", len(buf)))
	f, err := DecodeBytes(format, buf)
	if err != nil {
		return nil, err
	}
	f.nameSingle(filepath.Base(path))
	return f, nil
}

// CheckSize returns ErrTooLarge when the file at path is larger than maxSize
// bytes. A maxSize of 0 disables the check.
func CheckSize(path string, maxSize int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if maxSize > 0 && fi.Size() > maxSize {
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrTooLarge, path, fi.Size(), maxSize)
	}
	return nil
}

// nameSingle names the only tensor of a .npy file, which has no name of its
// own.
func (f *File) nameSingle(name string) {
	if f.Format == FormatNPY && len(f.Entries) == 1 {
		f.Entries[0].Name = name
		f.Entries[0].Tensor.Name = name
	}
}

// DecodeBytes decodes buf as the given format.
//
// Tensors reference buf except for .npz members, which are decompressed.
func DecodeBytes(format Format, buf []byte) (*File, error) {
	switch format {
	case FormatNPY:
		t, err := ParseNPY(buf)
		if err != nil {
			return nil, err
		}
		return &File{Format: FormatNPY, Entries: []Entry{{Name: t.Name, Tensor: t}}}, nil
	case FormatNPZ:
		members, err := ReadNPZ(buf)
		if err != nil {
			return nil, err
		}
		return &File{Format: FormatNPZ, Entries: DecodeMembers(members)}, nil
	case FormatSafetensors:
		return ParseSafetensors(buf)
	default:
		return nil, ErrUnknownFormat
	}
}

// FormatFromPath returns the format implied by the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return FormatNPY
	case ".npz":
		return FormatNPZ
	case ".safetensors":
		return FormatSafetensors
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from the leading bytes of buf.
func DetectFormat(buf []byte) Format {
	switch {
	case bytes.HasPrefix(buf, []byte(npyMagic)):
		return FormatNPY
	case bytes.HasPrefix(buf, []byte("PK\x03\x04")), bytes.HasPrefix(buf, []byte("PK\x05\x06")):
		return FormatNPZ
	case len(buf) >= 9 && buf[8] == '{':
		return FormatSafetensors
	default:
		return FormatUnknown
	}
}
