package pg

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ExecuteInTx runs fn within a new transaction, committing if fn succeeds and
// rolling back otherwise. sql.LevelDefault maps to read committed, which is
// the postgres default.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		// Rollback releases the connection back to the pool.
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "failed to rollback transaction after: %v", err)
		}
		return err
	}

	return tx.Commit()
}
