// Package inputs parses and validates the string inputs accepted by actions.
package inputs

import (
	"fmt"
	"strconv"
	"strings"
)

// IsEmpty reports whether s is the empty string. Whitespace is not empty.
func IsEmpty(s string) bool {
	return s == ""
}

// Default returns s, or def when s is empty.
func Default(s, def string) string {
	if IsEmpty(s) {
		return def
	}
	return s
}

// ToBoolean returns def for an empty string, otherwise whether s is "true"
// in any case.
func ToBoolean(s string, def bool) bool {
	if IsEmpty(s) {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// ToInt returns def for an empty string and an error when s is not an
// integer.
func ToInt(s string, def int) (int, error) {
	if IsEmpty(s) {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// ToNewline converts a newline description into the characters it names.
// `\n` and `\r` are the escaped forms, an empty string means "\n", anything
// else is a comma separated list of character codes ("0,38,64,116").
func ToNewline(s string) (string, error) {
	switch s {
	case "":
		return "\n", nil
	case `\n`:
		return "\n", nil
	case `\r`:
		return "\r", nil
	case `\r\n`:
		return "\r\n", nil
	}

	var b strings.Builder
	for _, code := range strings.Split(s, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < 0 || n > 0x10FFFF {
			return "", fmt.Errorf("invalid newline character code %q in %q", code, s)
		}
		b.WriteRune(rune(n))
	}
	return b.String(), nil
}
