// Package query provides cursor based pagination over tables keyed by a
// monotonic id column.
package query

import (
	"encoding/binary"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Cursor is an opaque position within a result set. An empty cursor starts
// from the beginning.
type Cursor []byte

const cursorSize = 8

var (
	EmptyCursor = Cursor{}

	ErrInvalidCursor = errors.New("invalid cursor")
)

func ToCursor(id uint64) Cursor {
	return binary.BigEndian.AppendUint64(make(Cursor, 0, cursorSize), id)
}

// ParseCursor decodes a cursor previously produced by ToBase58.
func ParseCursor(encoded string) (Cursor, error) {
	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != cursorSize {
		return nil, ErrInvalidCursor
	}
	return decoded, nil
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}

func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}

// Ordering is the direction in which results are returned.
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)

func ToOrdering(val string) (Ordering, error) {
	switch val {
	case "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	default:
		return 0, errors.Errorf("unexpected ordering: %v", val)
	}
}

func (o Ordering) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// PaginateQuery appends the cursor condition, ordering and limit to query,
// returning the extended query and arguments. The input must end with a
// parenthesized WHERE clause:
//
//	PaginateQuery("SELECT * FROM t WHERE (state = $1)", []any{1}, ToCursor(123), 10, Ascending)
//	> "SELECT * FROM t WHERE (state = $1) AND id > $2 ORDER BY id ASC LIMIT $3"
func PaginateQuery(query string, args []any, cursor Cursor, limit uint64, direction Ordering) (string, []any) {
	next := func() string {
		return "$" + strconv.Itoa(len(args)+1)
	}

	comparison, order := " > ", " ASC"
	if direction == Descending {
		comparison, order = " < ", " DESC"
	}

	if len(cursor) > 0 {
		query += " AND id" + comparison + next()
		args = append(args, cursor.ToUint64())
	}

	query += " ORDER BY id" + order

	if limit > 0 {
		query += " LIMIT " + next()
		args = append(args, limit)
	}

	return query, args
}
