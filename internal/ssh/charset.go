package ssh

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// lookupCharset resolves an IANA character set name. Empty means UTF-8.
func lookupCharset(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultCharacterSet
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown character set %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported character set %q", name)
	}
	return enc, nil
}

func encodeString(enc encoding.Encoding, s string) (string, error) {
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("encode command: %w", err)
	}
	return out, nil
}

func decodeBytes(enc encoding.Encoding, b []byte) string {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
