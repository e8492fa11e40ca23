package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/autobrr/litebase/internal/engine"
)

// Sentinel errors mirroring the teacher's internal/auth package (see
// service_test.go in the example pack): internal/api's auth handlers
// translate these into HTTP status codes the same way the teacher's
// handlers/auth.go does for models.ErrUserAlreadyExists and friends.
var (
	ErrNotSetup           = errors.New("auth: setup not complete")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrUserAlreadyExists  = errors.New("auth: user already exists")
	ErrInvalidAPIKey      = errors.New("auth: invalid api key")
	ErrAPIKeyNotFound     = errors.New("auth: api key not found")
)

const minPasswordLength = 8

// User is the single local admin account this repository supports (spec.md
// §6 scopes auth to "one operator identity plus API keys", generalized
// from the teacher's single-row `user` table with the same `CHECK (id = 1)`
// single-row constraint).
type User struct {
	Username  string
	CreatedAt int64
	UpdatedAt int64
}

// APIKey is a caller-presentable API key record. It never carries the raw
// key: CreateAPIKey returns that as a separate string, and only its hash is
// persisted.
type APIKey struct {
	ID         int64
	Name       string
	CreatedAt  int64
	LastUsedAt *int64
}

// Service implements user setup/login/password-change and API key
// management against the `_users`/`_api_keys` bookkeeping tables
// internal/migrate creates.
type Service struct {
	eng *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// IsSetupComplete reports whether the single admin user has been created.
func (s *Service) IsSetupComplete(ctx context.Context) (bool, error) {
	var count int64
	if err := s.eng.ReadQueryValue(ctx, &count, `SELECT COUNT(*) FROM _users`); err != nil {
		return false, fmt.Errorf("auth: check setup: %w", err)
	}
	return count > 0, nil
}

// SetupUser creates the single admin user. It fails if one already exists
// (ErrUserAlreadyExists) or the password is too short.
func (s *Service) SetupUser(ctx context.Context, username, password string) (User, error) {
	if len(password) < minPasswordLength {
		return User{}, fmt.Errorf("auth: password must be at least %d characters", minPasswordLength)
	}

	complete, err := s.IsSetupComplete(ctx)
	if err != nil {
		return User{}, err
	}
	if complete {
		return User{}, ErrUserAlreadyExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	row, err := s.eng.WriteQueryRow(ctx, `
		INSERT INTO _users (id, username, password_hash, created_at, updated_at)
		VALUES (1, ?, ?, unixepoch(), unixepoch())
		RETURNING username, created_at, updated_at
	`, username, hash)
	if err != nil {
		return User{}, translateUserWriteError(err)
	}
	return userFromRow(row.Values[0]), nil
}

// Login validates credentials against the stored admin user.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	complete, err := s.IsSetupComplete(ctx)
	if err != nil {
		return User{}, err
	}
	if !complete {
		return User{}, ErrNotSetup
	}

	row, err := s.eng.ReadQueryRow(ctx, `
		SELECT username, password_hash, created_at, updated_at FROM _users WHERE id = 1
	`)
	if err != nil {
		return User{}, fmt.Errorf("auth: load user: %w", err)
	}
	if len(row.Values) == 0 {
		return User{}, ErrInvalidCredentials
	}

	v := row.Values[0]
	storedUsername, _ := v[0].(string)
	storedHash, _ := v[1].(string)

	if storedUsername != username {
		return User{}, ErrInvalidCredentials
	}
	valid, err := VerifyPassword(password, storedHash)
	if err != nil || !valid {
		return User{}, ErrInvalidCredentials
	}

	return User{Username: storedUsername, CreatedAt: toInt64(v[2]), UpdatedAt: toInt64(v[3])}, nil
}

// ChangePassword re-authenticates with oldPassword before writing newPassword.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("auth: password must be at least %d characters", minPasswordLength)
	}

	var username string
	if err := s.eng.ReadQueryValue(ctx, &username, `SELECT username FROM _users WHERE id = 1`); err != nil {
		return ErrNotSetup
	}

	if _, err := s.Login(ctx, username, oldPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	_, err = s.eng.Execute(ctx, `
		UPDATE _users SET password_hash = ?, updated_at = unixepoch() WHERE id = 1
	`, newHash)
	return err
}

// ResetPassword overwrites the admin password without re-authenticating
// first, for the `litebase change-password` CLI recovery path — a caller
// able to run that command already has filesystem access to the database,
// so there is nothing ChangePassword's old-password check would add.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("auth: password must be at least %d characters", minPasswordLength)
	}

	var storedUsername string
	if err := s.eng.ReadQueryValue(ctx, &storedUsername, `SELECT username FROM _users WHERE id = 1`); err != nil {
		return ErrNotSetup
	}
	if storedUsername != username {
		return ErrInvalidCredentials
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	_, err = s.eng.Execute(ctx, `
		UPDATE _users SET password_hash = ?, updated_at = unixepoch() WHERE id = 1
	`, newHash)
	return err
}

// CreateAPIKey mints a new random API key, returning the raw key (shown to
// the caller exactly once) and the persisted record (key hash only).
func (s *Service) CreateAPIKey(ctx context.Context, name string) (string, APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", APIKey{}, fmt.Errorf("auth: generate api key: %w", err)
	}
	rawKey := base64.RawURLEncoding.EncodeToString(raw)

	row, err := s.eng.WriteQueryRow(ctx, `
		INSERT INTO _api_keys (name, key_hash, created_at)
		VALUES (?, ?, unixepoch())
		RETURNING id, name, created_at, last_used_at
	`, name, hashAPIKey(rawKey))
	if err != nil {
		return "", APIKey{}, fmt.Errorf("auth: create api key: %w", err)
	}
	return rawKey, apiKeyFromRow(row.Values[0]), nil
}

// ValidateAPIKey looks up rawKey by its hash and stamps last_used_at.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (APIKey, error) {
	row, err := s.eng.ReadQueryRow(ctx, `
		SELECT id, name, created_at, last_used_at FROM _api_keys WHERE key_hash = ?
	`, hashAPIKey(rawKey))
	if err != nil {
		return APIKey{}, fmt.Errorf("auth: validate api key: %w", err)
	}
	if len(row.Values) == 0 {
		return APIKey{}, ErrInvalidAPIKey
	}
	key := apiKeyFromRow(row.Values[0])

	_, _ = s.eng.Execute(ctx, `UPDATE _api_keys SET last_used_at = unixepoch() WHERE id = ?`, key.ID)
	return key, nil
}

// ListAPIKeys returns every API key record (never the raw key).
func (s *Service) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.eng.ReadQueryRows(ctx, `
		SELECT id, name, created_at, last_used_at FROM _api_keys ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("auth: list api keys: %w", err)
	}
	out := make([]APIKey, 0, len(rows.Values))
	for _, v := range rows.Values {
		out = append(out, apiKeyFromRow(v))
	}
	return out, nil
}

// DeleteAPIKey removes an API key by ID.
func (s *Service) DeleteAPIKey(ctx context.Context, id int64) error {
	res, err := s.eng.Execute(ctx, `DELETE FROM _api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("auth: delete api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func hashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func userFromRow(v engine.Row) User {
	username, _ := v[0].(string)
	return User{Username: username, CreatedAt: toInt64(v[1]), UpdatedAt: toInt64(v[2])}
}

func apiKeyFromRow(v engine.Row) APIKey {
	name, _ := v[1].(string)
	key := APIKey{ID: toInt64(v[0]), Name: name, CreatedAt: toInt64(v[2])}
	if v[3] != nil {
		lu := toInt64(v[3])
		key.LastUsedAt = &lu
	}
	return key
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func translateUserWriteError(err error) error {
	if err == nil {
		return nil
	}
	// SQLITE_CONSTRAINT on the `id = 1` primary key or the username unique
	// index both mean "a user already exists" from this package's point of
	// view; internal/recordapi's sqlerrors.go handles the general case, but
	// _users is not a record API table so this package does its own narrow
	// translation. Any other error is returned unchanged.
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlitelib.SQLITE_CONSTRAINT_UNIQUE:
			return ErrUserAlreadyExists
		}
	}
	return err
}
