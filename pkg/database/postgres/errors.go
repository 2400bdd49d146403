package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// CheckNoRows translates sql.ErrNoRows into outErr.
func CheckNoRows(inErr, outErr error) error {
	if IsNoRows(inErr) {
		return outErr
	}
	return inErr
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// CheckSerializationFailure translates conflicts between concurrent
// transactions into outErr.
func CheckSerializationFailure(inErr, outErr error) error {
	if IsSerializationFailure(inErr) {
		return outErr
	}
	return inErr
}

// IsSerializationFailure reports whether err is a serializable isolation
// conflict or a deadlock, both of which are safe to retry in a new
// transaction.
func IsSerializationFailure(err error) bool {
	switch code(err) {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	default:
		return false
	}
}

func code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
