package loader

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder turns raw extract bytes into UTF-8. Valid UTF-8 input is used as
// is; anything else is decoded with the fallback single-byte encoding.
type Decoder struct {
	name     string
	fallback encoding.Encoding
}

// NewDecoder creates a decoder with the named fallback encoding (an IANA
// name such as "ISO-8859-1" or "windows-1252"). An empty name selects
// ISO-8859-1.
func NewDecoder(name string) (*Decoder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return &Decoder{name: "ISO-8859-1", fallback: charmap.ISO8859_1}, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown fallback encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("fallback encoding %q is not supported", name)
	}
	return &Decoder{name: name, fallback: enc}, nil
}

// Name returns the fallback encoding name
func (d *Decoder) Name() string {
	return d.name
}

// Decode returns UTF-8 bytes without a leading byte order mark. The second
// result reports whether the fallback encoding was used.
func (d *Decoder) Decode(data []byte) ([]byte, bool, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, false, nil
	}

	decoded, err := d.fallback.NewDecoder().Bytes(data)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode as %s: %w", d.name, err)
	}
	return decoded, true, nil
}
