package engine

import (
	"context"
	"database/sql"
	"fmt"
)

// DatabaseInfo describes one entry from PRAGMA database_list.
type DatabaseInfo struct {
	Seq  int
	Name string
	File string
}

// ListDatabases enumerates every database attached to the writer
// connection (spec.md §4.1).
func (e *Engine) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	var out []DatabaseInfo
	err := e.Call(ctx, func(w *workerConn) error {
		rows, err := w.Conn().QueryContext(ctx, "PRAGMA database_list")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d DatabaseInfo
			var file sql.NullString
			if err := rows.Scan(&d.Seq, &d.Name, &file); err != nil {
				return err
			}
			d.File = file.String
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// Attach synchronously attaches path under name on every connection the
// engine owns — writer and readers alike, since an ATTACH on one physical
// connection is invisible to the others (spec.md §4.1).
func (e *Engine) Attach(ctx context.Context, path, name string) error {
	stmt := fmt.Sprintf("ATTACH DATABASE ? AS %s", quoteIdent(name))

	if err := e.Call(ctx, func(w *workerConn) error {
		_, err := w.Conn().ExecContext(ctx, stmt, path)
		return err
	}); err != nil {
		return err
	}

	if e.shared {
		return nil
	}

	for _, r := range e.readers {
		if _, err := r.conn.ExecContext(ctx, stmt, path); err != nil {
			return fmt.Errorf("engine: attach on reader: %w", err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + escapeDoubleQuotes(name) + `"`
}

func escapeDoubleQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"', '"')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
