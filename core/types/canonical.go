package types

import (
	"bytes"
	"encoding/json"
)

// Canonicalize produces the deterministic wire encoding used for hashing
// and signing: JSON with lexicographically sorted object keys and compact
// separators (§6). encoding/json already sorts map keys and emits compact
// output by default, so a marshal/unmarshal/marshal round trip through a
// generic interface{} is sufficient to normalise key order at every nesting
// level without hand-rolling a canonical encoder.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; trim it so the byte
	// stream is exactly the compact object the spec describes.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalizeMap normalises a nested map[string]interface{} payload (the
// transaction's "data" field, §6) the same way.
func CanonicalizeMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	return Canonicalize(m)
}
