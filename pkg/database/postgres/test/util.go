// Package test starts throwaway postgres containers for store tests.
package test

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
	"github.com/code-payments/code-timelock/pkg/testutil"
)

const (
	image = "postgres"
	tag   = "13.4"

	user     = "localtest"
	password = "localpassword"
	dbname   = "testdb"

	readyAttempts = 50
	readyInterval = 500 * time.Millisecond
)

// StartPostgresDB runs postgres and returns a pool connected to an empty
// database. closeFunc purges the container and is always safe to call.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, closeFunc func(), err error) {
	resource, closeFunc, err := testutil.RunContainer(pool, &dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"listen_addresses = '*'",
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbname,
		},
	})
	if err != nil {
		return nil, closeFunc, err
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		user, password, resource.GetHostPort("5432/tcp"), dbname,
	)

	db, err = sql.Open("pgx", dsn)
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "failed to open postgres")
	}

	_, err = retry.Retry(
		db.Ping,
		retry.Limit(readyAttempts),
		retry.Backoff(backoff.Constant(readyInterval), readyInterval),
	)
	if err != nil {
		db.Close()
		return nil, closeFunc, errors.Wrap(err, "postgres did not become ready")
	}

	return db, closeFunc, nil
}
