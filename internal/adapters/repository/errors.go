package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/pitwall/internal/domain/model"
)

// Sentinel kinds for store setup errors.
var (
	ErrUnknownDialect = errors.New("unknown sql dialect")
	ErrClosed         = errors.New("store closed")
)

// classify maps a backend error onto the domain taxonomy. Errors that already
// carry a domain kind pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	switch model.KindOf(err) {
	case "not_found", "invalid_argument", "transient", "consistency_violation":
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.WrapKind(op, model.ErrNotFound, err)
	case errors.Is(err, context.Canceled):
		return model.Wrap(op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, ErrClosed):
		return model.WrapKind(op, model.ErrTransientStore, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(op, pqErr)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return classifySQLite(op, liteErr)
	}

	return model.Wrap(op, err)
}

func classifyPostgres(op string, err *pq.Error) error {
	code := string(err.Code)
	switch {
	case code == "23505":
		// unique_violation on (collection_id, position) or a primary key.
		return model.WrapKind(op, model.ErrConsistencyViolation, err)
	case code == "40001", // serialization_failure
		code == "40P01", // deadlock_detected
		code == "55P03", // lock_not_available
		code == "57014", // query_canceled (statement_timeout)
		strings.HasPrefix(code, "08"):
		return model.WrapKind(op, model.ErrTransientStore, err)
	default:
		return model.Wrap(op, err)
	}
}

func classifySQLite(op string, err *sqlite.Error) error {
	code := err.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return model.WrapKind(op, model.ErrConsistencyViolation, err)
	case code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE constraint failed"):
		// Connections without extended result codes report the primary code only.
		return model.WrapKind(op, model.ErrConsistencyViolation, err)
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return model.WrapKind(op, model.ErrTransientStore, err)
	default:
		return model.Wrap(op, err)
	}
}

// errKind is the metric label for err.
func errKind(err error) string {
	return model.KindOf(err)
}
