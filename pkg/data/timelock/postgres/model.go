package postgres

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	pgutil "github.com/code-payments/code-timelock/pkg/database/postgres"
	q "github.com/code-payments/code-timelock/pkg/database/query"
)

const (
	tableName = "timelock__core_timelock"

	allColumns = `id, address, bump, receiver, initializer, destination, custody, unlock_at, amount, state, slot, last_updated_at`

	// The address is reused when a receiver locks again after an unlock, so
	// an upsert replaces every other column. Older slots never overwrite newer
	// ones.
	upsertQuery = `INSERT INTO ` + tableName + `
		(address, bump, receiver, initializer, destination, custody, unlock_at, amount, state, slot, last_updated_at)
		VALUES (:address, :bump, :receiver, :initializer, :destination, :custody, :unlock_at, :amount, :state, :slot, :last_updated_at)
		ON CONFLICT (address) DO UPDATE SET
			bump = EXCLUDED.bump,
			receiver = EXCLUDED.receiver,
			initializer = EXCLUDED.initializer,
			destination = EXCLUDED.destination,
			custody = EXCLUDED.custody,
			unlock_at = EXCLUDED.unlock_at,
			amount = EXCLUDED.amount,
			state = EXCLUDED.state,
			slot = EXCLUDED.slot,
			last_updated_at = EXCLUDED.last_updated_at
		WHERE ` + tableName + `.slot < EXCLUDED.slot
		RETURNING ` + allColumns
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address     string `db:"address"`
	Bump        uint   `db:"bump"`
	Receiver    string `db:"receiver"`
	Initializer string `db:"initializer"`
	Destination string `db:"destination"`
	Custody     string `db:"custody"`

	UnlockAt int64 `db:"unlock_at"`
	Amount   int64 `db:"amount"`
	State    uint  `db:"state"`
	Slot     int64 `db:"slot"`

	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(r *timelock.Record) (*model, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	// Both columns are BIGINT.
	if r.Amount > math.MaxInt64 {
		return nil, errors.Wrap(timelock.ErrInvalidTimelock, "amount overflow")
	}
	if r.Slot > math.MaxInt64 {
		return nil, errors.Wrap(timelock.ErrInvalidTimelock, "slot overflow")
	}

	return &model{
		Address:       r.Address,
		Bump:          uint(r.Bump),
		Receiver:      r.Receiver,
		Initializer:   r.Initializer,
		Destination:   r.Destination,
		Custody:       r.Custody,
		UnlockAt:      r.UnlockAt,
		Amount:        int64(r.Amount),
		State:         uint(r.State),
		Slot:          int64(r.Slot),
		LastUpdatedAt: r.LastUpdatedAt,
	}, nil
}

func (m *model) toRecord() *timelock.Record {
	return &timelock.Record{
		Id:            uint64(m.Id.Int64),
		Address:       m.Address,
		Bump:          uint8(m.Bump),
		Receiver:      m.Receiver,
		Initializer:   m.Initializer,
		Destination:   m.Destination,
		Custody:       m.Custody,
		UnlockAt:      m.UnlockAt,
		Amount:        uint64(m.Amount),
		State:         timelock.State(m.State),
		Slot:          uint64(m.Slot),
		LastUpdatedAt: m.LastUpdatedAt,
	}
}

// dbUpsert saves the model and scans the stored row back into it. No row is
// returned when the stored slot is not older.
func (m *model) dbUpsert(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, upsertQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		m.LastUpdatedAt = time.Now().UTC()

		err = stmt.QueryRowxContext(ctx, m).StructScan(m)
		return pgutil.CheckNoRows(err, timelock.ErrStaleTimelockState)
	})
}

func dbGetBy(ctx context.Context, db *sqlx.DB, column, value string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE ` + column + ` = $1 LIMIT 1`
	if err := db.GetContext(ctx, res, query, value); err != nil {
		return nil, pgutil.CheckNoRows(err, timelock.ErrTimelockNotFound)
	}
	return res, nil
}

func dbGetAllByState(ctx context.Context, db *sqlx.DB, state timelock.State, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	var res []*model

	query, args := q.PaginateQuery(
		`SELECT `+allColumns+` FROM `+tableName+` WHERE (state = $1)`,
		[]any{state},
		cursor,
		limit,
		direction,
	)

	if err := db.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, pgutil.CheckNoRows(err, timelock.ErrTimelockNotFound)
	}
	if len(res) == 0 {
		return nil, timelock.ErrTimelockNotFound
	}
	return res, nil
}

func dbGetCountByState(ctx context.Context, db *sqlx.DB, state timelock.State) (uint64, error) {
	var count uint64
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+tableName+` WHERE state = $1`, state)
	return count, err
}
