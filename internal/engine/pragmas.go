package engine

import (
	"context"
	"fmt"
	"sync"

	"modernc.org/sqlite"
)

var driverInit sync.Once

type pragmaExecFn func(ctx context.Context, stmt string) error

// registerConnectionHook installs the process-wide pragma hook exactly once.
// modernc.org/sqlite calls it for every new connection it opens, writer and
// reader alike, so WAL mode and busy_timeout are never forgotten on a fresh
// reader.
func registerConnectionHook(busyTimeoutMillis int) {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			return applyConnectionPragmas(ctx, busyTimeoutMillis, func(ctx context.Context, stmt string) error {
				if _, err := conn.ExecContext(ctx, stmt, nil); err != nil {
					return fmt.Errorf("connection hook exec %q: %w", stmt, err)
				}
				return nil
			})
		})
	})
}

func applyConnectionPragmas(ctx context.Context, busyTimeoutMillis int, exec pragmaExecFn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis),
		"PRAGMA analysis_limit = 400",
	}

	for _, pragma := range pragmas {
		if err := exec(ctx, pragma); err != nil {
			return fmt.Errorf("apply connection pragma %q: %w", pragma, err)
		}
	}

	return nil
}
