package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordRoundTrip(t *testing.T) {
	w := NewWordFromUint64s(1, 2, 3, 4)
	b := w.Bytes()

	decoded, err := NewWordFromBytes(b[:])
	require.NoError(t, err)
	require.Equal(t, 0, w.Cmp(decoded))

	enc, err := w.MarshalOpal()
	require.NoError(t, err)
	require.Equal(t, b[:], enc)

	var viaReader Word
	require.NoError(t, viaReader.UnmarshalOpal(bytes.NewReader(enc)))
	require.Equal(t, 0, w.Cmp(viaReader))
}

func TestWordRejectsNonCanonicalLimb(t *testing.T) {
	// 2^64-1 is above the Goldilocks modulus 2^64-2^32+1.
	var raw [WordLength]byte
	for i := 0; i < 8; i++ {
		raw[i] = 0xFF
	}
	_, err := NewWordFromBytes(raw[:])
	require.Error(t, err)

	var w Word
	require.Error(t, w.UnmarshalOpal(bytes.NewReader(raw[:])))
}

func TestWordRejectsBadLength(t *testing.T) {
	_, err := NewWordFromBytes(make([]byte, 31))
	require.Error(t, err)
	var w Word
	require.Error(t, w.UnmarshalOpal(bytes.NewReader(make([]byte, 16))))
}

func TestWordBitOrder(t *testing.T) {
	// Element 0 carries the high-order bits: its LSB is bit 63.
	w := NewWordFromUint64s(1, 0, 0, 0)
	require.Equal(t, 1, w.Bit(63))
	require.Equal(t, 0, w.Bit(0))
	require.Equal(t, 0, w.Bit(64))

	// Element 3's LSB is the last bit of the key.
	w = NewWordFromUint64s(0, 0, 0, 1)
	require.Equal(t, 1, w.Bit(255))
}

func TestHashToWordDeterministic(t *testing.T) {
	a := HashToWord([]byte("hello"))
	b := HashToWord([]byte("hello"))
	c := HashToWord([]byte("world"))
	require.Equal(t, 0, a.Cmp(b))
	require.NotEqual(t, 0, a.Cmp(c))
}

func TestWordJSON(t *testing.T) {
	w := NewWordFromUint64s(7, 0, 0, 42)
	data, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded Word
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, 0, w.Cmp(decoded))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("payload")
	require.NotEqual(t, DomainHash(DomainLeaf, data), DomainHash(DomainNode, data))
	require.NotEqual(t, DomainHash(DomainHeader, data), DomainHash(DomainTx, data))
	require.NotEqual(t, Blake2Hash(data), DomainHash(DomainChain, data))
}
