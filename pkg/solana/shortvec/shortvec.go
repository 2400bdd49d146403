// Package shortvec implements the compact-u16 length prefix used by the
// transaction wire format.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxEncodedSize is the largest number of bytes a length can occupy.
const MaxEncodedSize = 3

var (
	ErrLengthTooLarge  = errors.Errorf("length exceeds %d", math.MaxUint16)
	ErrInvalidEncoding = errors.New("invalid compact-u16 encoding")
)

// AppendLen appends the encoding of n to dst.
func AppendLen(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > math.MaxUint16 {
		return dst, ErrLengthTooLarge
	}

	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n)), nil
}

// ReadLen reads an encoded length. Aliased encodings, such as a trailing zero
// continuation byte, are rejected so that every length has exactly one form.
func ReadLen(r io.ByteReader) (int, error) {
	var n int
	for i := 0; i < MaxEncodedSize; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		if i > 0 && b == 0 {
			return 0, ErrInvalidEncoding
		}

		n |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if n > math.MaxUint16 {
				return 0, ErrLengthTooLarge
			}
			return n, nil
		}
	}

	return 0, ErrInvalidEncoding
}
