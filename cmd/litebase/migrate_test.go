package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommandAppliesAndIsIdempotent(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	output := mustRunUserCommand(t, MigrateCommand(ptr(configDir)))
	assert.Contains(t, output, "Migrations applied successfully")

	// Running again against an already-migrated database must not error.
	output = mustRunUserCommand(t, MigrateCommand(ptr(configDir)))
	assert.Contains(t, output, "Migrations applied successfully")

	eng := openDatabase(t, configDir)
	var count int64
	require.NoError(t, eng.ReadQueryValue(context.Background(), &count, `SELECT COUNT(*) FROM _users`))
	assert.Equal(t, int64(0), count)
}
