// Package acf decodes Advanced Custom Fields values whose JSON shape depends on
// how the WordPress admin configured the field. Every field arrives as a Value
// holding the raw JSON; the decode functions in this package handle the known
// shapes and fall back to an empty result for anything else. None of them
// return errors.
package acf

import (
	"bytes"
	"encoding/json"
)

// Value is a raw ACF field of unknown shape.
type Value struct {
	raw json.RawMessage
}

// Raw wraps a JSON literal. It is mainly useful in tests and fixtures.
func Raw(s string) Value {
	return Value{raw: json.RawMessage(s)}
}

// UnmarshalJSON keeps the raw bytes so the shape can be decided later.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}

// MarshalJSON writes the raw bytes back out, or null when absent.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// IsZero reports whether the field is absent or holds a falsy scalar
// (null, false, "" or 0). WordPress uses all of these for "not set".
func (v Value) IsZero() bool {
	switch t := v.decode().(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case json.Number:
		return t.String() == "0"
	}
	return false
}

// decode parses the raw JSON into generic Go values, keeping numbers as
// json.Number. Invalid JSON decodes to nil.
func (v Value) decode() any {
	if len(v.raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(v.raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// Fields is the "acf" object of a WordPress post. WordPress serializes an
// empty field group as [] or false instead of {}, so those decode to an empty
// map rather than failing the whole post.
type Fields map[string]Value

// UnmarshalJSON accepts an object, or any non-object for an empty group.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var m map[string]Value
	if err := json.Unmarshal(data, &m); err != nil {
		*f = Fields{}
		return nil
	}
	*f = m
	return nil
}

// First returns the first field among keys that is set, following the
// "a || b || c" fallback chains used by the site's templates.
func (f Fields) First(keys ...string) Value {
	for _, k := range keys {
		if v, ok := f[k]; ok && !v.IsZero() {
			return v
		}
	}
	return Value{}
}
