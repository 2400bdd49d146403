package ledger

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrInvalidAccount  = errors.New("ledger: invalid account")
	ErrTxnDone         = errors.New("ledger: transaction already committed or rolled back")

	// ErrConflict is returned by a Txn that lost a race with a concurrent
	// transaction. Retrying the whole transaction may succeed.
	ErrConflict = errors.New("ledger: conflicting concurrent transaction")
)

// Store persists committed accounts.
type Store interface {
	// Begin starts a transaction against the store.
	Begin(ctx context.Context) (Txn, error)

	// Get returns the latest committed state of an account.
	//
	// ErrAccountNotFound is returned if the account does not exist.
	Get(ctx context.Context, address ed25519.PublicKey) (*Account, error)
}

// Txn is a unit of work against a Store. Writes are only visible to other
// readers once Commit succeeds. Every Txn must end with exactly one call to
// Commit or Rollback.
type Txn interface {
	// Get returns the account as seen by this transaction, including writes
	// made through it.
	//
	// ErrAccountNotFound is returned if the account does not exist.
	Get(ctx context.Context, address ed25519.PublicKey) (*Account, error)

	// Put creates or replaces an account.
	Put(ctx context.Context, account *Account) error

	// Delete removes an account. Deleting a missing account is a no-op.
	Delete(ctx context.Context, address ed25519.PublicKey) error

	// Commit atomically applies every write and returns the slot assigned to
	// them. Slots strictly increase across commits.
	Commit(ctx context.Context) (uint64, error)

	// Rollback discards the transaction. It is safe to call after Commit.
	Rollback(ctx context.Context) error
}
