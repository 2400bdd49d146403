package pg

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// DriverName is the pgx driver with New Relic datastore segments.
const DriverName = "nrpgx"

type Config struct {
	User               string
	Host               string
	Password           string
	Port               int
	DbName             string
	SslMode            string
	MaxOpenConnections int
	MaxIdleConnections int
}

// DSN returns the connection url for the config.
func (c Config) DSN() string {
	sslMode := c.SslMode
	if len(sslMode) == 0 {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DbName, sslMode,
	)
}

// New opens a connection pool using the provided config and verifies the
// database is reachable.
func New(config Config) (*sqlx.DB, error) {
	db, err := sql.Open(DriverName, config.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}

	return sqlx.NewDb(db, "pgx"), nil
}
