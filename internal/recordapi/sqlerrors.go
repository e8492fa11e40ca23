package recordapi

import (
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/autobrr/litebase/internal/apierr"
)

// translateWriteError mirrors the teacher's internal/models/sql_errors.go
// errors.As(*sqlite.Error) + constraint-code translation, minus its
// Postgres arm: this repository has exactly one dialect.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apierr.Conflict("a record with that value already exists")
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return apierr.BadRequest("recordapi: referenced record does not exist")
		case sqlitelib.SQLITE_CONSTRAINT_CHECK:
			return apierr.BadRequest("recordapi: value fails a column check constraint")
		case sqlitelib.SQLITE_CONSTRAINT_NOTNULL:
			return apierr.BadRequest("recordapi: a required column was left empty")
		}
	}
	return apierr.Internal(err)
}
