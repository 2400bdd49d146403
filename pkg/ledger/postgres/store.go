package postgres

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	pgutil "github.com/code-payments/code-timelock/pkg/database/postgres"
	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/metrics"
)

const (
	metricsStructName = "ledger.postgres.store"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed ledger.Store
func New(db *sql.DB) ledger.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Begin implements ledger.Store.Begin
//
// Transactions run at the serializable isolation level, and every account
// read through them is locked until the transaction ends.
func (s *store) Begin(ctx context.Context) (ledger.Txn, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}

	return &txn{
		tx:     tx,
		writes: make(map[string]*ledger.Account),
	}, nil
}

// Get implements ledger.Store.Get
func (s *store) Get(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Get")
	defer tracer.End()

	m, err := dbGet(ctx, s.db, base58.Encode(address), false)
	if err != nil {
		return nil, err
	}
	return fromModel(m)
}

type txn struct {
	tx *sqlx.Tx

	mu     sync.Mutex
	writes map[string]*ledger.Account
	done   bool
}

func (t *txn) Get(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, ledger.ErrTxnDone
	}

	if written, ok := t.writes[string(address)]; ok {
		if written == nil {
			return nil, ledger.ErrAccountNotFound
		}
		return written.Clone(), nil
	}

	m, err := dbGet(ctx, t.tx, base58.Encode(address), true)
	if err != nil {
		return nil, pgutil.CheckSerializationFailure(err, ledger.ErrConflict)
	}
	return fromModel(m)
}

func (t *txn) Put(_ context.Context, account *ledger.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ledger.ErrTxnDone
	}

	t.writes[string(account.Address)] = account.Clone()
	return nil
}

func (t *txn) Delete(_ context.Context, address ed25519.PublicKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ledger.ErrTxnDone
	}

	t.writes[string(address)] = nil
	return nil
}

func (t *txn) Commit(ctx context.Context) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Commit")
	defer tracer.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return 0, ledger.ErrTxnDone
	}
	t.done = true

	slot, err := t.apply(ctx)
	if err != nil {
		tracer.OnError(err)
		if rollbackErr := t.tx.Rollback(); rollbackErr != nil {
			return 0, errors.Wrap(rollbackErr, "failed to rollback transaction")
		}
		return 0, pgutil.CheckSerializationFailure(err, ledger.ErrConflict)
	}

	if err := t.tx.Commit(); err != nil {
		tracer.OnError(err)
		return 0, pgutil.CheckSerializationFailure(err, ledger.ErrConflict)
	}
	return slot, nil
}

func (t *txn) apply(ctx context.Context) (uint64, error) {
	slot, err := dbNextSlot(ctx, t.tx)
	if err != nil {
		return 0, errors.Wrap(err, "error allocating slot")
	}

	// Writes are applied in a stable order so that concurrent commits take row
	// locks in the same order.
	keys := maps.Keys(t.writes)
	slices.Sort(keys)

	for _, key := range keys {
		account := t.writes[key]
		if account == nil {
			if err := dbDelete(ctx, t.tx, base58.Encode([]byte(key))); err != nil {
				return 0, err
			}
			continue
		}

		account.Slot = slot
		m, err := toModel(account)
		if err != nil {
			return 0, err
		}
		if err := m.dbPut(ctx, t.tx); err != nil {
			return 0, err
		}
	}

	return slot, nil
}

func (t *txn) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	t.done = true
	t.writes = nil

	return t.tx.Rollback()
}
