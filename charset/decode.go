// Package charset converts message body bytes to UTF-8 text without ever
// failing on malformed input.
package charset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Mode selects what happens to byte sequences that cannot be decoded.
type Mode int

const (
	// ModeIgnore drops undecodable bytes.
	ModeIgnore Mode = iota
	// ModeReplace substitutes U+FFFD for undecodable bytes.
	ModeReplace
)

// ParseMode maps a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return ModeIgnore, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeIgnore, fmt.Errorf("unknown decode mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "ignore"
}

// Decode converts data declared as the given charset into valid UTF-8.
//
// An empty or unknown charset is treated as UTF-8. Bytes that do not decode
// are handled according to mode; Decode never returns an error.
func Decode(data []byte, charset string, mode Mode) string {
	if len(data) == 0 {
		return ""
	}

	enc := lookupEncoding(normalize(charset))
	if enc == nil {
		return validUTF8(string(data), mode)
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return validUTF8(string(data), mode)
	}
	if mode == ModeIgnore {
		// Charset decoders mark undecodable input with U+FFFD.
		return strings.ReplaceAll(validUTF8(string(decoded), mode), string(utf8.RuneError), "")
	}
	return validUTF8(string(decoded), mode)
}

func normalize(charset string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"`))
}

// lookupEncoding returns nil for charsets handled as UTF-8.
func lookupEncoding(charset string) encoding.Encoding {
	switch charset {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return nil
	case "latin1", "latin-1":
		return charmap.ISO8859_1
	}

	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(charset)
		if err != nil {
			return nil
		}
	}
	return enc
}

// validUTF8 drops or replaces invalid byte sequences in s. Existing U+FFFD
// characters are kept.
func validUTF8(s string, mode Mode) string {
	if mode == ModeReplace {
		return strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return strings.ToValidUTF8(s, "")
}
