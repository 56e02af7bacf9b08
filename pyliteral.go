// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package npyview

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePyLiteral parses the subset of Python literal syntax found in npy
// headers: str, int, True, False, None, tuple, list and dict with str keys.
//
// Tuples and lists decode to []any, dicts to map[string]any, non-negative
// ints to uint64 and negative ints to int64.
func parsePyLiteral(s string) (any, error) {
	p := pyParser{s: s}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, p.errorf("trailing data")
	}
	return v, nil
}

// maxPyDepth bounds nesting; npy headers are at most two levels deep.
const maxPyDepth = 16

type pyParser struct {
	s   string
	pos int
}

func (p *pyParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *pyParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *pyParser) value(depth int) (any, error) {
	if depth > maxPyDepth {
		return nil, p.errorf("nesting too deep")
	}
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.s[p.pos]; {
	case c == '\'' || c == '"':
		return p.str()
	case c == '(':
		return p.sequence(')', depth)
	case c == '[':
		return p.sequence(']', depth)
	case c == '{':
		return p.dict(depth)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.integer()
	default:
		for _, kw := range [...]string{"True", "False", "None"} {
			if strings.HasPrefix(p.s[p.pos:], kw) {
				p.pos += len(kw)
				switch kw {
				case "True":
					return true, nil
				case "False":
					return false, nil
				}
				return nil, nil
			}
		}
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *pyParser) str() (string, error) {
	quote := p.s[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.s) {
				return "", p.errorf("unterminated escape")
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *pyParser) integer() (any, error) {
	start := p.pos
	if p.s[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	lit := p.s[start:p.pos]
	// Python 2 long suffix, still present in old files.
	if p.pos < len(p.s) && p.s[p.pos] == 'L' {
		p.pos++
	}
	if lit[0] == '-' {
		v, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer %q: %v", lit, err)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(lit, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid integer %q: %v", lit, err)
	}
	return v, nil
}

func (p *pyParser) sequence(end byte, depth int) ([]any, error) {
	p.pos++
	out := []any{}
	for {
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == end {
			p.pos++
			return out, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if err := p.separator(end); err != nil {
			return nil, err
		}
	}
}

func (p *pyParser) dict(depth int) (map[string]any, error) {
	p.pos++
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == '}' {
			p.pos++
			return out, nil
		}
		if p.pos >= len(p.s) || (p.s[p.pos] != '\'' && p.s[p.pos] != '"') {
			return nil, p.errorf("expected string key")
		}
		k, err := p.str()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ':' {
			return nil, p.errorf("expected ':' after key %q", k)
		}
		p.pos++
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out[k] = v
		if err := p.separator('}'); err != nil {
			return nil, err
		}
	}
}

// separator consumes a ',' or leaves the closing delimiter in place.
func (p *pyParser) separator(end byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return p.errorf("unexpected end of input")
	}
	switch p.s[p.pos] {
	case ',':
		p.pos++
		return nil
	case end:
		return nil
	default:
		return p.errorf("expected ',' or %q", end)
	}
}
