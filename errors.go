// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"errors"
	"fmt"

	"github.com/maruel/npyview/internal/binary"
)

// Decoding errors. Errors returned by this package wrap one of these.
var (
	ErrMalformedHeader  = errors.New("malformed header")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrOutOfBounds      = binary.ErrOutOfBounds
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrTooLarge         = errors.New("file too large")
	ErrUnknownFormat    = errors.New("unknown file format")
)

// EntryError reports the failure to decode one named entry of a container.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
