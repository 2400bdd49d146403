package shortvec

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for n := 0; n <= math.MaxUint16; n++ {
		encoded, err := AppendLen(nil, n)
		require.NoError(t, err)
		require.LessOrEqual(t, len(encoded), MaxEncodedSize)

		decoded, err := ReadLen(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, n, decoded)
	}
}

func TestKnownEncodings(t *testing.T) {
	for _, tc := range []struct {
		n       int
		encoded []byte
	}{
		{0x0, []byte{0x0}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0xff, []byte{0xff, 0x01}},
		{0x100, []byte{0x80, 0x02}},
		{0x7fff, []byte{0xff, 0xff, 0x01}},
		{0xffff, []byte{0xff, 0xff, 0x03}},
	} {
		encoded, err := AppendLen([]byte{0xaa}, tc.n)
		require.NoError(t, err)
		assert.Equal(t, append([]byte{0xaa}, tc.encoded...), encoded)
	}
}

func TestAppendLen_OutOfRange(t *testing.T) {
	for _, n := range []int{-1, math.MaxUint16 + 1} {
		encoded, err := AppendLen([]byte{1}, n)
		assert.Equal(t, ErrLengthTooLarge, err)
		assert.Equal(t, []byte{1}, encoded)
	}
}

func TestReadLen_Invalid(t *testing.T) {
	for _, tc := range []struct {
		encoded  []byte
		expected error
	}{
		{[]byte{}, io.EOF},
		{[]byte{0x80}, io.EOF},
		{[]byte{0x80, 0x00}, ErrInvalidEncoding},
		{[]byte{0xff, 0xff, 0x04}, ErrLengthTooLarge},
		{[]byte{0x80, 0x80, 0x80, 0x01}, ErrInvalidEncoding},
	} {
		_, err := ReadLen(bytes.NewReader(tc.encoded))
		assert.Equal(t, tc.expected, err, "%x", tc.encoded)
	}
}
