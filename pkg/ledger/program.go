package ledger

import (
	"crypto/ed25519"
)

// Program is an on-chain program the Bank can execute instructions against.
//
// Process must only modify state through the accounts exposed by the
// InvokeContext. Returning an error aborts the whole transaction.
type Program interface {
	ID() ed25519.PublicKey
	Process(ic *InvokeContext) error
}
