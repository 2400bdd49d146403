package ledger

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-timelock/pkg/solana"
)

// verifyAccount checks the changes program made to an account within a
// single instruction:
//
//   - the owner may only be changed by the current owner, on a writable
//     account whose data is zeroed
//   - data may only be changed by the owner, on a writable account
//   - lamports may only be debited by the owner, and only change on a
//     writable account
func verifyAccount(program ed25519.PublicKey, pre, post *Account, writable bool) error {
	if !bytes.Equal(pre.Address, post.Address) {
		return solana.ErrGenericError
	}

	isOwner := bytes.Equal(pre.Owner, program)

	if !bytes.Equal(pre.Owner, post.Owner) {
		if !writable || !isOwner || !isZeroed(post.Data) {
			return solana.ErrModifiedProgramID
		}
	}

	if !bytes.Equal(pre.Data, post.Data) {
		if !writable {
			return solana.ErrReadonlyDataModified
		}
		if !isOwner {
			return solana.ErrExternalAccountDataModified
		}
	}

	if post.Lamports != pre.Lamports {
		if !writable {
			return solana.ErrReadonlyLamportChange
		}
		if post.Lamports < pre.Lamports && !isOwner {
			return solana.ErrExternalAccountLamportSpend
		}
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
