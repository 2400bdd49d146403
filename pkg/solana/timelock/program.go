// Package timelock implements the token timelock program: a program that
// takes custody of a token account on behalf of a receiver and releases the
// full balance to that receiver once the lock duration has elapsed.
//
// The custody account is held by reassigning its authority to an address
// derived from the receiver, for which no private key exists. Only this
// program can sign for it, and only when presented with the receiver and the
// bump recorded at lock time.
package timelock

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/mr-tron/base58/base58"
)

// ProgramKey is the default address of the timelock program.
//
// Current key: Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS
var ProgramKey = ed25519.PublicKey(mustBase58Decode("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"))

var (
	timelockAccountDiscriminator   = discriminator("account", "Timelock")
	lockInstructionDiscriminator   = discriminator("global", "lock")
	unlockInstructionDiscriminator = discriminator("global", "unlock")
)

// discriminator returns the 8 byte type tag prefixed to accounts and
// instruction data, computed the same way as the Anchor framework.
func discriminator(namespace, name string) []byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	return h[:8]
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
