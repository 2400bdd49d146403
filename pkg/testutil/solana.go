package testutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

// GenerateSolanaKeypair returns a random signer.
func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

// GenerateSolanaKeys returns n random public keys.
func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, 0, n)
	for len(keys) < n {
		keys = append(keys, PublicKey(GenerateSolanaKeypair(t)))
	}
	return keys
}

func PublicKey(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}
