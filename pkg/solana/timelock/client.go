package timelock

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/memo"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

var ErrTimelockAccountNotFound = errors.New("timelock account not found")

// LockRequest describes a Lock of the custody token account for a receiver.
type LockRequest struct {
	Initializer ed25519.PublicKey
	Receiver    ed25519.PublicKey
	Mint        ed25519.PublicKey
	Custody     ed25519.PublicKey
	Duration    time.Duration

	// Destination is the receiver's token account the balance is released
	// to. When unset, the receiver's associated token account is used and
	// created in the same transaction if it does not already exist.
	Destination ed25519.PublicKey

	// Memo is an optional note signed by the initializer and attached after
	// the lock instruction.
	Memo string
}

// NewLockTransaction builds an unsigned Lock transaction paid for by the
// initializer. It returns the transaction and the timelock address.
//
// Durations are truncated to whole seconds.
func NewLockTransaction(req *LockRequest) (solana.Transaction, ed25519.PublicKey, error) {
	timelockAddress, bump, err := GetTimelockAddress(req.Receiver)
	if err != nil {
		return solana.Transaction{}, nil, errors.Wrap(err, "error deriving timelock address")
	}

	var instructions []solana.Instruction

	destination := req.Destination
	if len(destination) == 0 {
		var create solana.Instruction
		create, destination, err = token.CreateAssociatedTokenAccountIdempotent(req.Initializer, req.Receiver, req.Mint)
		if err != nil {
			return solana.Transaction{}, nil, errors.Wrap(err, "error deriving destination address")
		}
		instructions = append(instructions, create)
	}

	instructions = append(instructions, NewLockInstruction(
		&LockInstructionAccounts{
			Timelock:    timelockAddress,
			Initializer: req.Initializer,
			Custody:     req.Custody,
			Receiver:    req.Receiver,
			Destination: destination,
		},
		&LockInstructionArgs{
			Bump:     bump,
			Duration: int64(req.Duration / time.Second),
		},
	))

	if len(req.Memo) > 0 {
		instructions = append(instructions, memo.Instruction(req.Memo, req.Initializer))
	}

	return solana.NewTransaction(req.Initializer, instructions...), timelockAddress, nil
}

// NewUnlockTransaction builds an unsigned Unlock transaction paid for, and to
// be signed by, the receiver recorded in the timelock. The balance is released
// to the destination recorded at Lock.
func NewUnlockTransaction(timelockAddress ed25519.PublicKey, state *TimelockAccount) solana.Transaction {
	return solana.NewTransaction(
		state.Receiver,
		NewUnlockInstruction(&UnlockInstructionAccounts{
			Timelock:    timelockAddress,
			Custody:     state.Custody,
			Receiver:    state.Receiver,
			Destination: state.Destination,
		}),
	)
}

// GetTimelock returns the committed timelock of the receiver, and its address.
//
// ErrTimelockAccountNotFound is returned if the receiver has no timelock.
func GetTimelock(ctx context.Context, accounts token.AccountReader, receiver ed25519.PublicKey) (*TimelockAccount, ed25519.PublicKey, error) {
	address, _, err := GetTimelockAddress(receiver)
	if err != nil {
		return nil, nil, err
	}

	account, err := accounts.GetAccount(ctx, address)
	if err == ledger.ErrAccountNotFound {
		return nil, nil, ErrTimelockAccountNotFound
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error getting timelock account")
	}

	state, err := FromAccount(account)
	if err != nil {
		return nil, nil, err
	}

	return state, address, nil
}

// FromAccount decodes the timelock stored in a ledger account.
func FromAccount(account *ledger.Account) (*TimelockAccount, error) {
	if !bytes.Equal(account.Owner, ProgramKey) {
		return nil, ErrInvalidAccountData
	}

	var state TimelockAccount
	if err := state.Unmarshal(account.Data); err != nil {
		return nil, err
	}
	return &state, nil
}
