package schema

import (
	"context"
	"fmt"

	"github.com/autobrr/litebase/internal/engine"
)

// triggerNames follows spec.md §6's persisted-state naming convention
// exactly: __<table>__<col>__update_trigger / _delete_trigger.
func triggerNames(table, column string) (update, delete_ string) {
	return fmt.Sprintf("__%s__%s__update_trigger", table, column),
		fmt.Sprintf("__%s__%s__delete_trigger", table, column)
}

// InstallFileDeletionTriggers creates the pair of triggers that append a
// row to _file_deletions whenever a file column is overwritten or its
// owning row is deleted (spec.md §4.7 file lifecycle invariant). PK must be
// resolvable; callers should have already validated the entity via
// PKColumn.
func InstallFileDeletionTriggers(ctx context.Context, eng *engine.Engine, table string, pkColumn string, fileColumn string) error {
	updateName, deleteName := triggerNames(table, fileColumn)

	tq := quoteIdent(table)
	pq := quoteIdent(pkColumn)
	cq := quoteIdent(fileColumn)

	stmts := []string{
		fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %s
			AFTER UPDATE OF %s ON %s
			WHEN OLD.%s IS NOT NULL AND OLD.%s IS NOT NEW.%s
			BEGIN
				INSERT INTO _file_deletions (table_name, record_rowid, column_name, json, deleted_ts)
				VALUES (%s, OLD.%s, %s, OLD.%s, strftime('%%s','now'));
			END;
		`, quoteIdent(updateName), cq, tq, cq, cq, cq, sqlLit(table), pq, sqlLit(fileColumn), cq),

		fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %s
			AFTER DELETE ON %s
			WHEN OLD.%s IS NOT NULL
			BEGIN
				INSERT INTO _file_deletions (table_name, record_rowid, column_name, json, deleted_ts)
				VALUES (%s, OLD.%s, %s, OLD.%s, strftime('%%s','now'));
			END;
		`, quoteIdent(deleteName), tq, cq, sqlLit(table), pq, sqlLit(fileColumn), cq),
	}

	for _, s := range stmts {
		if _, err := eng.Execute(ctx, s); err != nil {
			return fmt.Errorf("schema: install file deletion trigger: %w", err)
		}
	}
	return nil
}

func sqlLit(s string) string {
	return "'" + escapeSingleQuotes(s) + "'"
}

func escapeSingleQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
