package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/autobrr/litebase/internal/auth"
	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
)

// CreateUserCommand provisions the single admin account offline, for
// deployments that don't want to expose /api/auth/setup publicly.
// Grounded on cmd/qui/user_commands_test.go's RunCreateUserCommand
// contract: --config-dir/--username/--password flags, a "created
// successfully" message on success, and a no-op "already exists" message
// (rather than an error) when the admin account is already set up.
func CreateUserCommand(configDir *string) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create the admin user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}

			eng, err := openConfiguredEngine(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer eng.Close()

			authService := auth.NewService(eng)
			_, err = authService.SetupUser(cmd.Context(), username, password)
			if errors.Is(err, auth.ErrUserAlreadyExists) {
				cmd.Println("User account already exists, skipping.")
				return nil
			}
			if err != nil {
				return err
			}

			cmd.Printf("User '%s' created successfully\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username")
	cmd.Flags().StringVar(&password, "password", "", "Admin password")
	return cmd
}

// ChangePasswordCommand resets the admin account's password offline,
// e.g. after a lockout. Grounded on the same test file's
// RunChangePasswordCommand contract.
func ChangePasswordCommand(configDir *string) *cobra.Command {
	var username, newPassword string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the admin user's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || newPassword == "" {
				return errors.New("--username and --new-password are required")
			}

			eng, err := openConfiguredEngine(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer eng.Close()

			authService := auth.NewService(eng)
			if err := authService.ResetPassword(cmd.Context(), username, newPassword); err != nil {
				return err
			}

			cmd.Println("Password changed successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "New password")
	return cmd
}

func openConfiguredEngine(ctx context.Context, configDir string) (*engine.Engine, error) {
	path := configPath(configDir)
	cfg, err := config.New(path)
	if err != nil {
		return nil, err
	}
	eng, err := engine.Open(cfg.GetDatabasePath(), engine.Options{})
	if err != nil {
		return nil, err
	}
	if err := migrate.Apply(ctx, eng); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}
