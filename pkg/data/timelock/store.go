package timelock

import (
	"context"

	"github.com/code-payments/code-timelock/pkg/database/query"
)

type Store interface {
	// Save saves a timelock record. ErrStaleTimelockState is returned if the
	// stored record was observed at the same or a later slot.
	Save(ctx context.Context, record *Record) error

	// GetByAddress gets a timelock record by its address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByReceiver gets a timelock record by the receiver it was locked for
	GetByReceiver(ctx context.Context, receiver string) (*Record, error)

	// GetAllByState gets all timelock records in the provided state
	GetAllByState(ctx context.Context, state State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetCountByState gets the count of records in the provided state
	GetCountByState(ctx context.Context, state State) (uint64, error)
}
