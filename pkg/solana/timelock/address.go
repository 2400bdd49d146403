package timelock

import (
	"crypto/ed25519"

	"github.com/code-payments/code-timelock/pkg/solana"
)

var timelockPrefix = []byte("timelock")

// GetTimelockAddress returns the timelock address of the receiver and the bump
// that derives it. There is exactly one timelock address per receiver.
func GetTimelockAddress(receiver ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		ProgramKey,
		timelockSeeds(receiver)...,
	)
}

// CreateTimelockAddress derives the timelock address of the receiver with a
// caller supplied bump. It fails if the result would lie on the curve.
func CreateTimelockAddress(receiver ed25519.PublicKey, bump uint8) (ed25519.PublicKey, error) {
	return solana.CreateProgramAddress(
		ProgramKey,
		append(timelockSeeds(receiver), []byte{bump})...,
	)
}

func timelockSeeds(receiver ed25519.PublicKey) [][]byte {
	return [][]byte{timelockPrefix, receiver}
}
