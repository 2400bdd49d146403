// Package binary contains little-endian helpers for fixed-size account and
// instruction layouts. Every helper reads or writes at the start of the
// provided slice and advances offset by the encoded width, so calls chain as
//
//	PutKey32(b[offset:], key, &offset)
//
// Optional fields are encoded the way Borsh and the token program do: an
// optionSize flag prefix, 1 when present, followed by space for the value that
// is zero when absent.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

const (
	DiscriminatorSize = 8

	keySize = ed25519.PublicKeySize
)

var le = binary.LittleEndian

func PutDiscriminator(dst, src []byte, offset *int) {
	copy(dst[:DiscriminatorSize], src)
	*offset += DiscriminatorSize
}

func GetDiscriminator(src []byte, dst *[]byte, offset *int) {
	*dst = append([]byte(nil), src[:DiscriminatorSize]...)
	*offset += DiscriminatorSize
}

func PutKey32(dst, src []byte, offset *int) {
	copy(dst[:keySize], src)
	*offset += keySize
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = append(ed25519.PublicKey(nil), src[:keySize]...)
	*offset += keySize
}

func PutOptionalKey32(dst, src []byte, offset *int, optionSize int) {
	field := dst[:optionSize+keySize]
	clear(field)
	if len(src) > 0 {
		field[0] = 1
		copy(field[optionSize:], src)
	}
	*offset += len(field)
}

func GetOptionalKey32(src []byte, dst *ed25519.PublicKey, offset *int, optionSize int) {
	*dst = nil
	if src[0] == 1 {
		*dst = append(ed25519.PublicKey(nil), src[optionSize:optionSize+keySize]...)
	}
	*offset += optionSize + keySize
}

func PutUint64(dst []byte, v uint64, offset *int) {
	le.PutUint64(dst, v)
	*offset += 8
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = le.Uint64(src)
	*offset += 8
}

func PutInt64(dst []byte, v int64, offset *int) {
	PutUint64(dst, uint64(v), offset)
}

func GetInt64(src []byte, dst *int64, offset *int) {
	*dst = int64(le.Uint64(src))
	*offset += 8
}

func PutOptionalUint64(dst []byte, v *uint64, offset *int, optionSize int) {
	field := dst[:optionSize+8]
	clear(field)
	if v != nil {
		field[0] = 1
		le.PutUint64(field[optionSize:], *v)
	}
	*offset += len(field)
}

func GetOptionalUint64(src []byte, dst **uint64, offset *int, optionSize int) {
	*dst = nil
	if src[0] == 1 {
		v := le.Uint64(src[optionSize:])
		*dst = &v
	}
	*offset += optionSize + 8
}

func PutUint32(dst []byte, v uint32, offset *int) {
	le.PutUint32(dst, v)
	*offset += 4
}

func GetUint32(src []byte, dst *uint32, offset *int) {
	*dst = le.Uint32(src)
	*offset += 4
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset++
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[0]
	*offset++
}

func PutBool(dst []byte, v bool, offset *int) {
	var b uint8
	if v {
		b = 1
	}
	PutUint8(dst, b, offset)
}

func GetBool(src []byte, dst *bool, offset *int) {
	*dst = src[0] != 0
	*offset++
}
