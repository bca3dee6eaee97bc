package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type inner struct {
	A uint8
	B [4]byte
}

type outer struct {
	Flag   bool
	Num    uint32
	Wide   uint64
	Name   string
	Raw    []byte
	Items  []inner
	Nested inner
	hidden uint32 // unexported, skipped
}

func sample() outer {
	return outer{
		Flag: true,
		Num:  0xDEADBEEF,
		Wide: 1 << 40,
		Name: "opal",
		Raw:  []byte{1, 2, 3},
		Items: []inner{
			{A: 1, B: [4]byte{9, 8, 7, 6}},
			{A: 2, B: [4]byte{5, 5, 5, 5}},
		},
		Nested: inner{A: 3, B: [4]byte{0xFF, 0, 0xFF, 0}},
	}
}

func TestEncodeLayout(t *testing.T) {
	enc, err := Encode(inner{A: 0x42, B: [4]byte{1, 2, 3, 4}})
	require.NoError(t, err)
	// uint8 raw, byte array raw, no padding.
	require.Equal(t, []byte{0x42, 1, 2, 3, 4}, enc)

	enc, err = Encode([]byte{0xAA, 0xBB})
	require.NoError(t, err)
	// u32 LE length prefix followed by the bytes.
	require.Equal(t, []byte{2, 0, 0, 0, 0xAA, 0xBB}, enc)
}

func TestRoundTripStruct(t *testing.T) {
	in := sample()
	enc, err := Encode(in)
	require.NoError(t, err)

	var out outer
	require.NoError(t, Decode(enc, &out))
	require.Equal(t, in.Flag, out.Flag)
	require.Equal(t, in.Num, out.Num)
	require.Equal(t, in.Wide, out.Wide)
	require.Equal(t, in.Name, out.Name)
	require.Equal(t, in.Raw, out.Raw)
	require.Equal(t, in.Items, out.Items)
	require.Equal(t, in.Nested, out.Nested)
	require.Equal(t, uint32(0), out.hidden)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	enc, err := Encode(sample())
	require.NoError(t, err)

	for _, cut := range []int{1, 5, len(enc) - 1} {
		require.Error(t, Decode(enc[:cut], &outer{}), "cut at %d", cut)
	}
}

func TestDecodeRejectsTrailing(t *testing.T) {
	enc, err := Encode(sample())
	require.NoError(t, err)
	err = Decode(append(enc, 0x00), &outer{})
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeRejectsNonPointer(t *testing.T) {
	err := Decode([]byte{0}, outer{})
	require.ErrorIs(t, err, ErrUnsupportedDestination)
}

func TestEncodeRejectsNilPointer(t *testing.T) {
	type holder struct {
		P *inner
	}
	_, err := Encode(holder{})
	require.Error(t, err)
}

func TestDecodeRejectsBadBool(t *testing.T) {
	var b bool
	require.NoError(t, Decode([]byte{1}, &b))
	require.True(t, b)
	require.Error(t, Decode([]byte{2}, &b))
}
