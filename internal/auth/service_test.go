package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	eng, err := engine.Open(filepath.Join(t.TempDir(), "auth-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	require.NoError(t, migrate.Apply(context.Background(), eng))

	return NewService(eng)
}

func TestServiceSetupUser(t *testing.T) {
	t.Parallel()

	t.Run("successful user creation", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		user, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
	})

	t.Run("user already exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.SetupUser(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrUserAlreadyExists)
	})

	t.Run("password too short", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "short")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})
}

func TestServiceLogin(t *testing.T) {
	t.Parallel()

	t.Run("successful login", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		user, err := svc.Login(ctx, "admin", "password123")
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
	})

	t.Run("setup not complete", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.Login(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrNotSetup)
	})

	t.Run("invalid username", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "wronguser", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("invalid password", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "admin", "wrongpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestServiceChangePassword(t *testing.T) {
	t.Parallel()

	t.Run("successful password change", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		require.NoError(t, svc.ChangePassword(ctx, "password123", "newpassword456"))

		_, err = svc.Login(ctx, "admin", "newpassword456")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong old password", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, "wrongpassword", "newpassword456")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("new password too short", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, "password123", "short")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})
}

func TestServiceIsSetupComplete(t *testing.T) {
	t.Parallel()

	t.Run("returns false when no user", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		complete, err := svc.IsSetupComplete(ctx)
		require.NoError(t, err)
		assert.False(t, complete)
	})

	t.Run("returns true when user exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		complete, err := svc.IsSetupComplete(ctx)
		require.NoError(t, err)
		assert.True(t, complete)
	})
}

func TestServiceAPIKeys(t *testing.T) {
	t.Parallel()

	t.Run("create and list API keys", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		rawKey, apiKey, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)
		assert.NotEmpty(t, rawKey)
		assert.Equal(t, "Test Key", apiKey.Name)

		keys, err := svc.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("validate API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		rawKey, _, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)

		validated, err := svc.ValidateAPIKey(ctx, rawKey)
		require.NoError(t, err)
		assert.Equal(t, "Test Key", validated.Name)
	})

	t.Run("invalid API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.ValidateAPIKey(ctx, "invalid-key")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("delete API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, apiKey, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)

		require.NoError(t, svc.DeleteAPIKey(ctx, apiKey.ID))

		keys, err := svc.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("delete unknown API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		err := svc.DeleteAPIKey(ctx, 999)
		assert.ErrorIs(t, err, ErrAPIKeyNotFound)
	})
}
