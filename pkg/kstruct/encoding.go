package kstruct

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// decodeString converts raw bytes read for a `str`/`strz` field into a Go
// string using the field's declared (or schema-default) encoding name,
// falling back to UTF-8 passthrough for "", "UTF-8", and "ASCII" (a
// correctly-encoded ASCII byte sequence is already valid UTF-8).
func decodeString(data []byte, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "ASCII") {
		return string(data), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("kstruct: unknown string encoding %q: %w", name, err)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("kstruct: decoding %q bytes as %s: %w", data, name, err)
	}
	return string(decoded), nil
}
