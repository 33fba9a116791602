package inputs

import (
	"strings"
	"time"
)

// Required records a problem when value is empty.
func (v *Validator) Required(name, value string) string {
	if IsEmpty(value) {
		v.Addf("the %s input is required", name)
	}
	return value
}

// Bool parses value as a boolean, requiring "true" or "false" when set.
func (v *Validator) Bool(name, value string, def bool) bool {
	if IsEmpty(value) {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return true
	case "false":
		return false
	}
	v.Addf("the %s input must be true or false, got %q", name, value)
	return def
}

// Int parses value as an integer in [min, max].
func (v *Validator) Int(name, value string, def, min, max int) int {
	n, err := ToInt(value, def)
	if err != nil {
		v.Addf("the %s input must be an integer, got %q", name, value)
		return def
	}
	if n < min || n > max {
		v.Addf("the %s input must be between %d and %d, got %d", name, min, max, n)
		return def
	}
	return n
}

// Port parses a TCP port number.
func (v *Validator) Port(name, value string, def int) int {
	return v.Int(name, value, def, 1, 65535)
}

// Millis parses a non-negative duration given in milliseconds.
func (v *Validator) Millis(name, value string, def time.Duration) time.Duration {
	n := v.Int(name, value, int(def/time.Millisecond), 0, int(^uint32(0)>>1))
	return time.Duration(n) * time.Millisecond
}

// OneOf requires value, after defaulting, to be one of the allowed values.
func (v *Validator) OneOf(name, value, def string, allowed ...string) string {
	value = Default(value, def)
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return a
		}
	}
	v.Addf("the %s input must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
	return value
}

// Newline parses a newline description, see ToNewline.
func (v *Validator) Newline(name, value string) string {
	nl, err := ToNewline(value)
	if err != nil {
		v.Addf("the %s input is invalid: %v", name, err)
		return "\n"
	}
	return nl
}
