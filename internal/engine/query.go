package engine

import (
	"context"
	"database/sql"
)

// Row is a deep-owned result row of column values, safe to carry across
// the async boundary (spec.md §9 "row encoding"). Column names are shared
// via the Columns slice on Rows rather than stored per row.
type Row []any

// Rows is the deep-owned result of a multi-row read.
type Rows struct {
	Columns []string
	Values  []Row
}

// ReadQueryRows runs query on a reader connection and materializes every
// row before returning, so no *sql.Rows escapes the worker goroutine that
// owns the connection.
func (e *Engine) ReadQueryRows(ctx context.Context, query string, args ...any) (*Rows, error) {
	if !isReadOnlyQuery(query) {
		return nil, errNotReadOnly
	}
	var out Rows
	err := e.CallReader(ctx, func(w *workerConn) error {
		stmt, err := w.prepare(ctx, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		out.Columns = cols

		for rows.Next() {
			vals := make(Row, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			out.Values = append(out.Values, vals)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadQueryRow runs query and returns at most one row. When the query
// matched nothing, the returned Rows has no Values (callers check
// len(Values) == 0).
func (e *Engine) ReadQueryRow(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := e.ReadQueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows.Values) > 1 {
		rows.Values = rows.Values[:1]
	}
	return rows, nil
}

// ReadQueryValue runs query and scans the first column of the first row
// into dest.
func (e *Engine) ReadQueryValue(ctx context.Context, dest any, query string, args ...any) error {
	if !isReadOnlyQuery(query) {
		return errNotReadOnly
	}
	return e.CallReader(ctx, func(w *workerConn) error {
		stmt, err := w.prepare(ctx, query)
		if err != nil {
			return err
		}
		return stmt.QueryRowContext(ctx, args...).Scan(dest)
	})
}

// WriteQueryRow runs a mutating query with a RETURNING clause on the
// writer connection and returns the single resulting row.
func (e *Engine) WriteQueryRow(ctx context.Context, query string, args ...any) (*Rows, error) {
	var out Rows
	err := e.Call(ctx, func(w *workerConn) error {
		stmt, err := w.prepare(ctx, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		out.Columns = cols

		for rows.Next() {
			vals := make(Row, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			out.Values = append(out.Values, vals)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute runs a mutating query on the writer connection and returns the
// standard sql.Result (affected rows / last insert id).
func (e *Engine) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := e.Call(ctx, func(w *workerConn) error {
		stmt, err := w.prepare(ctx, query)
		if err != nil {
			return err
		}
		var execErr error
		res, execErr = stmt.ExecContext(ctx, args...)
		return execErr
	})
	return res, err
}

// ExecuteBatch runs every statement in stmts inside one writer
// transaction; a failure rolls back all of them.
func (e *Engine) ExecuteBatch(ctx context.Context, stmts []BatchStatement) ([]sql.Result, error) {
	var results []sql.Result
	err := e.Call(ctx, func(w *workerConn) error {
		tx, err := w.Conn().BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		results = make([]sql.Result, 0, len(stmts))
		for _, s := range stmts {
			res, err := tx.ExecContext(ctx, s.Query, s.Args...)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BatchStatement is one statement within an ExecuteBatch transaction.
type BatchStatement struct {
	Query string
	Args  []any
}

// Transaction runs fn inside a writer-side transaction, committing on a nil
// return and rolling back otherwise. Used by internal/migrate, which needs
// a raw *sql.Tx so every pending migration applies all-or-nothing.
func (e *Engine) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return e.Call(ctx, func(w *workerConn) error {
		tx, err := w.Conn().BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}
