package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
)

// MigrateCommand applies every pending embedded schema migration and
// exits, for operators who want migration as a separate deploy step
// ahead of starting serve. Grounded on the teacher's db_command.go
// RunE/cmd.Printf reporting style (cmd/qui/db_command.go), generalized
// from its offline SQLite-to-Postgres report to litebase's own
// migrate.Apply.
func MigrateCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(*configDir)
			if _, err := os.Stat(path); err != nil {
				return err
			}

			cfg, err := config.New(path)
			if err != nil {
				return err
			}

			eng, err := engine.Open(cfg.GetDatabasePath(), engine.Options{})
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := migrate.Apply(cmd.Context(), eng); err != nil {
				return err
			}

			cmd.Printf("Database: %s\n", cfg.GetDatabasePath())
			cmd.Println("Migrations applied successfully.")
			return nil
		},
	}
}
