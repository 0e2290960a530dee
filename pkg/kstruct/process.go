package kstruct

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProcessFunc transforms raw bytes read off the stream before they're
// parsed further, implementing a `process:` directive.
type ProcessFunc func(data []byte, params []any) ([]byte, error)

// ProcessRegistry holds the named post-processing transforms a schema's
// `process:` directives can reference. xor/zlib/rotate are registered by
// default; callers may register additional transforms (a custom cipher,
// a project-specific framing) before compiling a schema that uses them.
type ProcessRegistry struct {
	fns map[string]ProcessFunc
}

// NewProcessRegistry returns a registry with the built-in xor/zlib/rotate
// transforms registered.
func NewProcessRegistry() *ProcessRegistry {
	r := &ProcessRegistry{fns: map[string]ProcessFunc{}}
	r.Register("xor", processXOR)
	r.Register("zlib", processZlib)
	r.Register("rotate", processRotate)
	return r
}

// Register adds or replaces a named process transform.
func (r *ProcessRegistry) Register(name string, fn ProcessFunc) {
	r.fns[name] = fn
}

// Apply parses spec (e.g. `xor(0x5f)`, `rotate(-3)`) and runs the named
// transform against data.
func (r *ProcessRegistry) Apply(data []byte, spec string) ([]byte, error) {
	name, params, err := parseProcessSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("kstruct: invalid process spec %q: %w", spec, err)
	}
	fn, ok := r.fns[name]
	if !ok {
		return nil, fmt.Errorf("kstruct: unknown process function %q", name)
	}
	return fn(data, params)
}

func parseProcessSpec(spec string) (string, []any, error) {
	open := strings.Index(spec, "(")
	close := strings.LastIndex(spec, ")")
	if open < 0 || close < 0 || close < open {
		return "", nil, fmt.Errorf("expected NAME(args), got %q", spec)
	}
	name := strings.TrimSpace(spec[:open])
	argStr := strings.TrimSpace(spec[open+1 : close])

	if argStr == "" {
		return name, nil, nil
	}
	argStr = strings.TrimPrefix(strings.TrimSuffix(argStr, "]"), "[")
	var params []any
	for _, part := range strings.Split(argStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parseProcessParam(part)
		if err != nil {
			return "", nil, err
		}
		params = append(params, v)
	}
	return name, params, nil
}

func parseProcessParam(s string) (any, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid hex literal %q: %w", s, err)
		}
		return v, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	return s, nil
}

func paramAsByte(v any) (byte, bool) {
	switch n := v.(type) {
	case int64:
		return byte(n), true
	case int:
		return byte(n), true
	}
	return 0, false
}

func paramAsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func processXOR(data []byte, params []any) ([]byte, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("xor requires at least one key byte")
	}
	key := make([]byte, len(params))
	for i, p := range params {
		b, ok := paramAsByte(p)
		if !ok {
			return nil, fmt.Errorf("xor: invalid key element %v", p)
		}
		key[i] = b
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}

func processZlib(data []byte, _ []any) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func processRotate(data []byte, params []any) ([]byte, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("rotate requires exactly one amount parameter")
	}
	amount, ok := paramAsInt(params[0])
	if !ok {
		return nil, fmt.Errorf("rotate: invalid amount %v", params[0])
	}
	shift := ((amount % 8) + 8) % 8
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = (b << shift) | (b >> (8 - shift))
	}
	return out, nil
}
