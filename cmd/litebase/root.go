package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

// defaultConfigDir is relative to the current working directory, matching
// the teacher's cmd/qui default of a config/ directory next to the binary
// rather than an XDG path — operators are expected to run litebase from a
// dedicated data directory.
const defaultConfigDir = "config"

// RootCommand builds the litebase CLI: a --config-dir persistent flag
// every subcommand resolves config.toml against, plus the serve/migrate/
// create-user subcommands. Grounded on the teacher's cmd/qui command tree
// (RunDBCommand, user_commands.go) — no teacher main.go/root.go was
// retrieved into the example pack, so the root command itself is
// reconstructed from general spf13/cobra convention plus that grounding
// (see DESIGN.md).
func RootCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:           "litebase",
		Short:         "A SQLite-backed, single-binary backend-as-a-service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir, "Path to the directory holding config.toml")

	cmd.AddCommand(
		ServeCommand(&configDir),
		MigrateCommand(&configDir),
		CreateUserCommand(&configDir),
		ChangePasswordCommand(&configDir),
	)
	return cmd
}

func configPath(configDir string) string {
	return filepath.Join(configDir, "config.toml")
}
