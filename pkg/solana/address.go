package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrNoViableBumpSeed      = errors.New("unable to find a viable program address bump seed")

	ErrInvalidPublicKey = errors.New("invalid public key")
)

const programDerivedAddressMarker = "ProgramDerivedAddress"

// hashProgramAddress hashes the seeds, the program and the marker in order.
// Tests replace it to force specific outcomes.
var hashProgramAddress = func(program ed25519.PublicKey, seeds [][]byte) [sha256.Size]byte {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(program)
	h.Write([]byte(programDerivedAddressMarker))

	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}

// CreateProgramAddress derives the address owned by program for the seeds.
//
// A program address must not lie on the ed25519 curve, so that no private key
// exists for it. Seeds that hash to a point on the curve yield
// ErrInvalidPublicKey, and callers are expected to try another bump seed.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}
	}

	sum := hashProgramAddress(program, seeds)
	if isOnCurve(&sum) {
		return nil, ErrInvalidPublicKey
	}

	return sum[:], nil
}

// FindProgramAddressAndBump searches bump seeds downward from 255 and returns
// the first program address found along with its bump.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	bumped := make([][]byte, len(seeds)+1)
	copy(bumped, seeds)

	for bump := math.MaxUint8; bump > 0; bump-- {
		bumped[len(seeds)] = []byte{uint8(bump)}

		address, err := CreateProgramAddress(program, bumped...)
		switch err {
		case nil:
			return address, uint8(bump), nil
		case ErrInvalidPublicKey:
		default:
			return nil, 0, err
		}
	}

	return nil, 0, ErrNoViableBumpSeed
}

// FindProgramAddress is FindProgramAddressAndBump without the bump.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	address, _, err := FindProgramAddressAndBump(program, seeds...)
	return address, err
}

// IsOnCurve reports whether the key is a valid compressed ed25519 point, which
// is to say whether a private key could exist for it.
func IsOnCurve(key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}

	var pub [32]byte
	copy(pub[:], key)
	return isOnCurve(&pub)
}

// The point decoding used by ed25519.Verify is internal to the standard
// library, so the decoding is borrowed from a fork that exports it.
func isOnCurve(pub *[32]byte) bool {
	var p edwards25519.ExtendedGroupElement
	return p.FromBytes(pub)
}
