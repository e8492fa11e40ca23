package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/auth"
	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
)

func TestCreateUserCommandCreatesUser(t *testing.T) {
	ctx := context.Background()
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	output := mustRunUserCommand(t, CreateUserCommand(ptr(configDir)),
		"--username", "testuser",
		"--password", "testpassword123",
	)
	assert.Contains(t, output, "User 'testuser' created successfully")

	eng := openDatabase(t, configDir)
	authService := auth.NewService(eng)
	_, err := authService.Login(ctx, "testuser", "testpassword123")
	require.NoError(t, err)
}

func TestCreateUserCommandSkipsWhenUserExists(t *testing.T) {
	ctx := context.Background()
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	mustRunUserCommand(t, CreateUserCommand(ptr(configDir)),
		"--username", "testuser",
		"--password", "initialpass123",
	)

	output := mustRunUserCommand(t, CreateUserCommand(ptr(configDir)),
		"--username", "testuser",
		"--password", "differentpass123",
	)
	assert.Contains(t, output, "already exists")

	eng := openDatabase(t, configDir)
	authService := auth.NewService(eng)
	_, err := authService.Login(ctx, "testuser", "initialpass123")
	require.NoError(t, err)
}

func TestChangePasswordCommandUpdatesStoredHash(t *testing.T) {
	ctx := context.Background()
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	mustRunUserCommand(t, CreateUserCommand(ptr(configDir)),
		"--username", "testuser",
		"--password", "initialpass123",
	)

	output := mustRunUserCommand(t, ChangePasswordCommand(ptr(configDir)),
		"--username", "testuser",
		"--new-password", "newpassword456",
	)
	assert.Contains(t, output, "Password changed successfully")

	eng := openDatabase(t, configDir)
	authService := auth.NewService(eng)

	_, err := authService.Login(ctx, "testuser", "initialpass123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = authService.Login(ctx, "testuser", "newpassword456")
	require.NoError(t, err)
}

func prepareConfigDir(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, config.WriteDefaultConfig(filepath.Join(dir, "config.toml")))
}

func mustRunUserCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	output, err := runUserCommand(cmd, args...)
	require.NoError(t, err)
	return output
}

func runUserCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func openDatabase(t *testing.T, configDir string) *engine.Engine {
	t.Helper()
	cfg, err := config.New(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	eng, err := engine.Open(cfg.GetDatabasePath(), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func ptr(s string) *string { return &s }
