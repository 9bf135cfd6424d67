package spec

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Canonical encodes v as compact JSON with sorted map keys and without HTML
// escaping. Equal inputs always produce identical bytes.
func Canonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode returns the canonical bytes of a compiled deployment. A nil
// deployment encodes as the empty object.
func Encode(d *Deployment) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return Canonical(d)
}

// Decode parses an encoded deployment. The empty object decodes to nil.
func Decode(data []byte) (*Deployment, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("{}")) {
		return nil, nil
	}
	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
