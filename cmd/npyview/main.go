// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command npyview prints the content of .npy, .npz and .safetensors files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/maruel/npyview"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	shapeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "npyview: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string, w io.Writer) error {
	def := npyview.DefaultOptions()
	fs := flag.NewFlagSet("npyview", flag.ContinueOnError)
	var (
		shapeOnly = fs.Bool("shape", false, "Print only the shape of each tensor")
		maxSize   = fs.Int64("max-size", def.MaxFileSize>>20, "Largest file to decode, in MiB; 0 disables the limit")
		fortran2c = fs.Bool("fortran2c", def.Reshape.TransposeColumnMajor, "Transpose column-major arrays to C order; when false the shape is reversed instead")
		precision = fs.Int("precision", def.Reshape.Precision, "Decimals to round floats to; negative disables rounding")
		useMmap   = fs.Bool("mmap", false, "Memory map the file instead of reading it")
		verbose   = fs.Bool("v", false, "Enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: npyview [flags] <file.npy|file.npz|file.safetensors>...")
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = l.Sync() }()
		npyview.SetLogger(l)
	}

	opts := npyview.Options{
		MaxFileSize: *maxSize << 20,
		Reshape: npyview.ReshapeOptions{
			TransposeColumnMajor: *fortran2c,
			Precision:            *precision,
		},
	}
	p := printer{w: w, styled: isTerminal(w)}
	for _, path := range fs.Args() {
		if err := p.file(path, opts, *shapeOnly, *useMmap); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

type printer struct {
	w      io.Writer
	styled bool
}

func (p *printer) file(path string, opts npyview.Options, shapeOnly, useMmap bool) error {
	var f *npyview.File
	if useMmap {
		// Mapping is lazy but printing decodes everything, so the limit
		// still applies.
		if err := npyview.CheckSize(path, opts.MaxFileSize); err != nil {
			return err
		}
		m := &npyview.Mapped{}
		if err := m.Open(path); err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		f = m.File
	} else {
		var err error
		if f, err = npyview.Decode(path, opts); err != nil {
			return err
		}
	}

	if shapeOnly {
		_, err := fmt.Fprintln(p.w, f.Shapes())
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(f.Metadata)) {
		fmt.Fprintf(p.w, "%s %s\n", p.style(shapeStyle, k+":"), f.Metadata[k])
	}
	for _, e := range f.Entries {
		fmt.Fprintln(p.w, p.style(nameStyle, e.Name))
		if e.Err != nil {
			fmt.Fprintln(p.w, p.style(errorStyle, e.Err.Error()))
			continue
		}
		fmt.Fprintln(p.w, p.style(shapeStyle, fmt.Sprintf("%s %s %s", e.Tensor.DType, npyview.ShapeString(e.Tensor.Shape), e.Tensor.Order)))
		n, err := npyview.Reshape(e.Tensor, opts.Reshape)
		if err != nil {
			fmt.Fprintln(p.w, p.style(errorStyle, err.Error()))
			continue
		}
		if _, err := fmt.Fprintln(p.w, n.String()); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
