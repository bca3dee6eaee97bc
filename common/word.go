package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/opalchain/opal/opalerrors"
)

// WordLength is the byte length of a canonically encoded Word.
const WordLength = 32

// Word is a 256-bit tree key: four canonical Goldilocks field elements.
// The canonical encoding is element 0 through element 3, each as 8
// big-endian bytes, so element 0 carries the high-order bits of the key.
type Word [4]goldilocks.Element

// NewWordFromBytes decodes a 32-byte canonical Word encoding. It returns an
// error if the input has the wrong length or any limb is not a canonical
// field element (>= the Goldilocks modulus).
func NewWordFromBytes(b []byte) (Word, error) {
	var w Word
	if len(b) != WordLength {
		return w, fmt.Errorf("%w: invalid length %d", opalerrors.ErrSMalformedKey, len(b))
	}
	for i := 0; i < 4; i++ {
		if err := w[i].SetBytesCanonical(b[i*8 : (i+1)*8]); err != nil {
			return w, fmt.Errorf("%w: limb %d: %v", opalerrors.ErrSMalformedKey, i, err)
		}
	}
	return w, nil
}

// NewWordFromUint64s builds a Word from four unreduced limbs. Limbs are
// reduced modulo the field, so the result is always canonical.
func NewWordFromUint64s(a, b, c, d uint64) Word {
	var w Word
	w[0].SetUint64(a)
	w[1].SetUint64(b)
	w[2].SetUint64(c)
	w[3].SetUint64(d)
	return w
}

// HashToWord maps arbitrary data onto a Word by hashing and reducing each
// 8-byte chunk of the digest into the field.
func HashToWord(data []byte) Word {
	digest := ComputeHash(data)
	var w Word
	for i := 0; i < 4; i++ {
		w[i].SetBytes(digest[i*8 : (i+1)*8])
	}
	return w
}

// Bytes returns the canonical 32-byte encoding.
func (w Word) Bytes() [WordLength]byte {
	var out [WordLength]byte
	for i := 0; i < 4; i++ {
		limb := w[i].Bytes()
		copy(out[i*8:], limb[:])
	}
	return out
}

// Bit returns the bit at position i (0 = most significant bit of element 0)
// of the canonical encoding.
func (w Word) Bit(i int) int {
	b := w.Bytes()
	byteIdx := i / 8
	bitIdx := 7 - (i % 8)
	return int((b[byteIdx] >> bitIdx) & 1)
}

// Cmp compares two words by their canonical encodings.
func (w Word) Cmp(other Word) int {
	a, b := w.Bytes(), other.Bytes()
	return bytes.Compare(a[:], b[:])
}

func (w Word) Hex() string {
	b := w.Bytes()
	return Bytes2Hex(b[:])
}

func (w Word) String() string {
	return w.Hex()
}

// MarshalOpal implements the codec Marshaler interface.
func (w Word) MarshalOpal() ([]byte, error) {
	b := w.Bytes()
	return b[:], nil
}

// UnmarshalOpal implements the codec Unmarshaler interface.
func (w *Word) UnmarshalOpal(r io.Reader) error {
	var buf [WordLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("truncated word: %w", err)
	}
	decoded, err := NewWordFromBytes(buf[:])
	if err != nil {
		return err
	}
	*w = decoded
	return nil
}

func (w Word) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Hex())
}

func (w *Word) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := NewWordFromBytes(FromHex(s))
	if err != nil {
		return err
	}
	*w = decoded
	return nil
}
