package timelock

import (
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	timelock_program "github.com/code-payments/code-timelock/pkg/solana/timelock"
)

var (
	ErrTimelockNotFound   = errors.New("no records could be found")
	ErrInvalidTimelock    = errors.New("invalid timelock")
	ErrStaleTimelockState = errors.New("timelock state is stale")
)

type State uint8

const (
	StateUnknown State = iota
	StateLocked
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Record is the off-chain view of a timelock account, mirrored from committed
// ledger updates. A closed record keeps the values of the last lock it
// observed at that address.
type Record struct {
	Id uint64

	Address string
	Bump    uint8

	Receiver    string
	Initializer string
	Destination string
	Custody     string

	UnlockAt int64
	Amount   uint64

	State State

	Slot uint64

	LastUpdatedAt time.Time
}

// NewRecordFromAccount creates a Locked record from the timelock state stored
// at the address.
func NewRecordFromAccount(address ed25519.PublicKey, data *timelock_program.TimelockAccount, slot uint64) (*Record, error) {
	r := &Record{
		Address: base58.Encode(address),
	}
	if err := r.UpdateFromAccount(data, slot); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Record) IsLocked() bool {
	return r.State == StateLocked
}

func (r *Record) IsClosed() bool {
	return r.State == StateClosed
}

// IsUnlockable reports whether the recorded lock permits Unlock at the
// provided time.
func (r *Record) IsUnlockable(at time.Time) bool {
	return r.IsLocked() && at.Unix() >= r.UnlockAt
}

// UpdateFromAccount applies the timelock state committed at the slot. A timelock
// address is reused when a receiver locks again after an unlock, so every field
// is replaced.
func (r *Record) UpdateFromAccount(data *timelock_program.TimelockAccount, slot uint64) error {
	// Avoid updates looking backwards in ledger history
	if slot <= r.Slot {
		return ErrStaleTimelockState
	}

	address, err := timelock_program.CreateTimelockAddress(data.Receiver, data.Bump)
	if err != nil {
		return errors.Wrap(ErrInvalidTimelock, err.Error())
	}
	if len(r.Address) > 0 && r.Address != base58.Encode(address) {
		return errors.Wrap(ErrInvalidTimelock, "address does not match derivation")
	}

	r.Address = base58.Encode(address)
	r.Bump = data.Bump
	r.Receiver = base58.Encode(data.Receiver)
	r.Initializer = base58.Encode(data.Initializer)
	r.Destination = base58.Encode(data.Destination)
	r.Custody = base58.Encode(data.Custody)
	r.UnlockAt = data.UnlockTime
	r.Amount = data.Amount
	r.State = StateLocked
	r.Slot = slot

	return nil
}

// MarkClosed records the removal of the timelock account at the slot.
func (r *Record) MarkClosed(slot uint64) error {
	if slot <= r.Slot {
		return ErrStaleTimelockState
	}

	r.State = StateClosed
	r.Slot = slot

	return nil
}

// Clone returns a copy of the record. Records hold no references, so a shallow
// copy is sufficient.
func (r *Record) Clone() *Record {
	cloned := *r
	return &cloned
}

func (r *Record) CopyTo(dst *Record) {
	*dst = *r
}

func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}

	switch r.State {
	case StateUnknown, StateLocked, StateClosed:
	default:
		return errors.New("invalid timelock state")
	}

	for name, value := range map[string]string{
		"address":     r.Address,
		"receiver":    r.Receiver,
		"initializer": r.Initializer,
		"destination": r.Destination,
		"custody":     r.Custody,
	} {
		if len(value) == 0 {
			return errors.Errorf("%s is required", name)
		}
	}

	return nil
}
