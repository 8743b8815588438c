package signature

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// CanonicalBytes serializes payload as canonical JSON: map keys sorted
// lexicographically, no indentation. This is the only serialization ever fed
// to the signing primitives.
func CanonicalBytes(payload interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(payload); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
