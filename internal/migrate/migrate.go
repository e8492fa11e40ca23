// Package migrate applies this repository's own bookkeeping schema (the
// `_users`/`_api_keys`/`_record_apis`/`_json_column_schemas`/
// `_file_deletions`/`sessions` tables every other component depends on) the
// same way the teacher tracks its application migrations: an embedded,
// lexically-ordered set of `.sql` files, each applied at most once inside a
// single transaction, recorded in a `migrations` table.
//
// Grounded on the teacher's internal/database/db.go `migrate`/
// `findPendingMigrations`/`applyAllMigrations` trio, adapted from a raw
// `*sql.DB` connection to internal/engine's single-writer gateway.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/litebase/internal/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// currentSchemaVersionHeader prefixes the `-- schema_version X.Y.Z` header
// comment each embedded migration carries; the newest migration's header is
// this binary's bookkeeping schema version.
// Apply refuses to run against a database whose recorded version is newer
// than this binary understands, the same downgrade guard the teacher's
// update checker applies to release versions rather than schema versions.
const currentSchemaVersionHeader = "-- schema_version "

// Apply runs every pending migration against eng inside one transaction,
// then records the schema version actually applied. It is idempotent: a
// database already at the latest version is a no-op.
func Apply(ctx context.Context, eng *engine.Engine) error {
	if _, err := eng.Execute(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			filename   TEXT NOT NULL UNIQUE,
			version    TEXT NOT NULL DEFAULT '',
			applied_at INTEGER NOT NULL DEFAULT (unixepoch())
		)
	`); err != nil {
		return fmt.Errorf("migrate: create migrations table: %w", err)
	}

	files, err := sortedMigrationFiles()
	if err != nil {
		return err
	}

	applied, err := appliedFilenames(ctx, eng)
	if err != nil {
		return err
	}

	if err := checkDowngrade(ctx, eng, files); err != nil {
		return err
	}

	var pending []string
	for _, f := range files {
		if !applied[f] {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		log.Debug().Msg("migrate: no pending migrations")
		return nil
	}

	return eng.Transaction(ctx, func(tx *sql.Tx) error {
		for _, filename := range pending {
			content, err := migrationsFS.ReadFile("migrations/" + filename)
			if err != nil {
				return fmt.Errorf("migrate: read %s: %w", filename, err)
			}
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("migrate: apply %s: %w", filename, err)
			}

			v, _ := parseSchemaVersionHeader(string(content))
			versionStr := ""
			if v != nil {
				versionStr = v.String()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO migrations (filename, version) VALUES (?, ?)`, filename, versionStr,
			); err != nil {
				return fmt.Errorf("migrate: record %s: %w", filename, err)
			}
			log.Info().Str("migration", filename).Msg("migrate: applied")
		}
		return nil
	})
}

func sortedMigrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedFilenames(ctx context.Context, eng *engine.Engine) (map[string]bool, error) {
	rows, err := eng.ReadQueryRows(ctx, `SELECT filename FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied migrations: %w", err)
	}
	out := make(map[string]bool, len(rows.Values))
	for _, v := range rows.Values {
		if name, ok := v[0].(string); ok {
			out[name] = true
		}
	}
	return out, nil
}

// checkDowngrade parses the schema_version header of the newest migration
// file and compares it against the highest version already recorded,
// refusing to proceed if the database has moved ahead of this binary.
func checkDowngrade(ctx context.Context, eng *engine.Engine, files []string) error {
	if len(files) == 0 {
		return nil
	}
	latestFile := files[len(files)-1]
	content, err := migrationsFS.ReadFile("migrations/" + latestFile)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", latestFile, err)
	}
	binVersion, ok := parseSchemaVersionHeader(string(content))
	if !ok {
		return nil
	}

	var recorded string
	err = eng.ReadQueryValue(ctx, &recorded, `SELECT COALESCE(MAX(version), '') FROM migrations`)
	if err != nil || recorded == "" {
		return nil
	}
	dbVersion, err := version.NewVersion(recorded)
	if err != nil {
		return nil
	}
	if dbVersion.GreaterThan(binVersion) {
		return fmt.Errorf("migrate: database schema version %s is newer than this binary's %s; refusing to downgrade", dbVersion, binVersion)
	}
	return nil
}

func parseSchemaVersionHeader(sqlText string) (*version.Version, bool) {
	for _, line := range strings.Split(sqlText, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, currentSchemaVersionHeader) {
			v, err := version.NewVersion(strings.TrimSpace(strings.TrimPrefix(line, currentSchemaVersionHeader)))
			if err != nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}
