package codec

import (
	"bytes"
	"fmt"
)

// Encode serializes the given object using the opal codec rules: fixed-width
// little-endian integers, raw fixed-size arrays, length-prefixed slices, and
// struct fields in declaration order. Commitment stability depends on this
// ordering, so types must never reorder fields once released.
func Encode(obj interface{}) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	encoder := NewEncoder(buffer)

	err := encoder.Encode(obj)
	if err != nil {
		return nil, fmt.Errorf("encoding failed: %w", err)
	}

	return buffer.Bytes(), nil
}

// Decode deserializes the byte slice into dst, which must be a non-nil
// pointer. Decode rejects truncated input and input with trailing bytes.
func Decode(inp []byte, dst interface{}) error {
	err := Unmarshal(inp, dst)
	if err != nil {
		return fmt.Errorf("decoding failed: %w", err)
	}
	return nil
}
