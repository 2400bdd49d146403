package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	pgutil "github.com/code-payments/code-timelock/pkg/database/postgres"
	"github.com/code-payments/code-timelock/pkg/ledger"
)

const (
	tableName    = "ledger__core_account"
	slotSequence = "ledger__core_slot"
)

type model struct {
	Address  string `db:"address"`
	Owner    string `db:"owner"`
	Lamports int64  `db:"lamports"`
	Data     []byte `db:"data"`
	Slot     int64  `db:"slot"`

	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *ledger.Account) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.Lamports > (1<<63)-1 {
		return nil, errors.Wrap(ledger.ErrInvalidAccount, "lamports overflow")
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Address:  base58.Encode(obj.Address),
		Owner:    base58.Encode(obj.Owner),
		Lamports: int64(obj.Lamports),
		Data:     data,
		Slot:     int64(obj.Slot),
	}, nil
}

func fromModel(obj *model) (*ledger.Account, error) {
	address, err := base58.Decode(obj.Address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid address")
	}

	owner, err := base58.Decode(obj.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}

	var data []byte
	if len(obj.Data) > 0 {
		data = obj.Data
	}

	return &ledger.Account{
		Address:  address,
		Owner:    owner,
		Lamports: uint64(obj.Lamports),
		Data:     data,
		Slot:     uint64(obj.Slot),
	}, nil
}

func (m *model) dbPut(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(address, owner, lamports, data, slot, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)

		ON CONFLICT (address)
		DO UPDATE
			SET owner = $2, lamports = $3, data = $4, slot = $5, last_updated_at = $6`

	m.LastUpdatedAt = time.Now()

	_, err := tx.ExecContext(
		ctx,
		query,
		m.Address,
		m.Owner,
		m.Lamports,
		m.Data,
		m.Slot,
		m.LastUpdatedAt.UTC(),
	)
	return err
}

func dbDelete(ctx context.Context, tx *sqlx.Tx, address string) error {
	query := `DELETE FROM ` + tableName + ` WHERE address = $1`

	_, err := tx.ExecContext(ctx, query, address)
	return err
}

func dbGet(ctx context.Context, queryer sqlx.QueryerContext, address string, forUpdate bool) (*model, error) {
	res := &model{}

	query := `SELECT
		address, owner, lamports, data, slot, last_updated_at
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	err := sqlx.GetContext(ctx, queryer, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, ledger.ErrAccountNotFound)
	}
	return res, nil
}

func dbNextSlot(ctx context.Context, tx *sqlx.Tx) (uint64, error) {
	var slot int64
	err := tx.GetContext(ctx, &slot, `SELECT nextval('`+slotSequence+`')`)
	if err != nil {
		return 0, err
	}
	return uint64(slot), nil
}
