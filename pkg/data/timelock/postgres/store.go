package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/database/query"
	"github.com/code-payments/code-timelock/pkg/metrics"
)

const metricsStructName = "data.timelock.postgres.store"

type store struct {
	db *sqlx.DB
}

// New returns a timelock.Store over the timelock__core_timelock table.
func New(db *sql.DB) timelock.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *timelock.Record) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Save")
	defer tracer.End()

	m, err := toModel(record)
	if err != nil {
		return err
	}

	if err := m.dbUpsert(ctx, s.db); err != nil {
		tracer.OnError(err)
		return err
	}

	m.toRecord().CopyTo(record)
	return nil
}

func (s *store) GetByAddress(ctx context.Context, address string) (*timelock.Record, error) {
	return s.getBy(ctx, "address", address)
}

func (s *store) GetByReceiver(ctx context.Context, receiver string) (*timelock.Record, error) {
	return s.getBy(ctx, "receiver", receiver)
}

func (s *store) getBy(ctx context.Context, column, value string) (*timelock.Record, error) {
	m, err := dbGetBy(ctx, s.db, column, value)
	if err != nil {
		return nil, err
	}
	return m.toRecord(), nil
}

func (s *store) GetAllByState(ctx context.Context, state timelock.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*timelock.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetAllByState")
	defer tracer.End()

	models, err := dbGetAllByState(ctx, s.db, state, cursor, limit, direction)
	if err != nil {
		if err != timelock.ErrTimelockNotFound {
			tracer.OnError(err)
		}
		return nil, err
	}

	records := make([]*timelock.Record, len(models))
	for i, m := range models {
		records[i] = m.toRecord()
	}
	return records, nil
}

func (s *store) GetCountByState(ctx context.Context, state timelock.State) (uint64, error) {
	return dbGetCountByState(ctx, s.db, state)
}
