package async_timelock

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/ledger"
	timelock_program "github.com/code-payments/code-timelock/pkg/solana/timelock"
)

// isTimelockUpdate reports whether the update creates, changes or closes a
// timelock account.
func isTimelockUpdate(update ledger.AccountUpdate) bool {
	if update.Account != nil && update.Account.Exists() && update.Account.IsOwnedBy(timelock_program.ProgramKey) {
		return true
	}
	return update.Previous != nil && update.Previous.IsOwnedBy(timelock_program.ProgramKey)
}

func (p *service) handleUpdate(ctx context.Context, update ledger.AccountUpdate) error {
	account := update.Account

	if account.Exists() && account.IsOwnedBy(timelock_program.ProgramKey) {
		state, err := timelock_program.FromAccount(account)
		if err != nil {
			return errors.Wrap(err, "error decoding timelock account")
		}
		return p.onLocked(ctx, account, state, update.Slot)
	}

	// The account no longer holds a timelock
	previous, err := timelock_program.FromAccount(update.Previous)
	if err != nil {
		return errors.Wrap(err, "error decoding previous timelock account")
	}
	return p.onClosed(ctx, account, previous, update.Previous.Slot, update.Slot)
}

func (p *service) onLocked(ctx context.Context, account *ledger.Account, state *timelock_program.TimelockAccount, slot uint64) error {
	record, err := p.getRecord(ctx, account.Address)
	switch err {
	case nil:
	case timelock.ErrTimelockNotFound:
		record = &timelock.Record{Address: base58.Encode(account.Address)}
	default:
		return err
	}

	wasLocked := record.IsLocked()

	err = record.UpdateFromAccount(state, slot)
	if err == timelock.ErrStaleTimelockState {
		return nil
	} else if err != nil {
		return err
	}

	if err := p.saveWithRetry(ctx, record); err != nil {
		return errors.Wrap(err, "error saving timelock record")
	}

	if !wasLocked {
		recordTimelockLockedEvent(ctx, record)
	}
	return nil
}

func (p *service) onClosed(ctx context.Context, account *ledger.Account, previous *timelock_program.TimelockAccount, previousSlot, slot uint64) error {
	record, err := p.getRecord(ctx, account.Address)
	switch err {
	case nil:
	case timelock.ErrTimelockNotFound:
		// The lock was never observed, so it's reconstructed from the state
		// prior to closing.
		record, err = timelock.NewRecordFromAccount(account.Address, previous, previousSlot)
		if err != nil {
			return err
		}
	default:
		return err
	}

	if record.Receiver != base58.Encode(previous.Receiver) {
		return errors.Wrap(timelock.ErrInvalidTimelock, "receiver does not match record")
	}

	err = record.MarkClosed(slot)
	if err == timelock.ErrStaleTimelockState {
		return nil
	} else if err != nil {
		return err
	}

	if err := p.saveWithRetry(ctx, record); err != nil {
		return errors.Wrap(err, "error saving timelock record")
	}

	recordTimelockClosedEvent(ctx, record)
	return nil
}

func (p *service) getRecord(ctx context.Context, address []byte) (*timelock.Record, error) {
	key := base58.Encode(address)
	if cached, ok := p.cache.Retrieve(key); ok {
		return cached.Clone(), nil
	}

	return p.records.GetByAddress(ctx, key)
}
