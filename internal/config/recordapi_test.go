package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/recordapi"
)

func TestLoadRecordAPIConfigsParsesYAMLArray(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "record_apis.yaml")

	content := `
- table: posts
  audience:
    world: 2
    authenticated: 15
  rules:
    read: "_ROW_.published = 1"
  pageSize: 20
  maxPageSize: 100
  excludedColumns: [internal_notes]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	configs, err := LoadRecordAPIConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs[0]
	assert.Equal(t, "posts", cfg.Table)
	assert.Equal(t, access.ACL(2), cfg.Audience.World)
	assert.Equal(t, access.ACL(15), cfg.Audience.Authenticated)
	assert.Equal(t, "_ROW_.published = 1", cfg.Rules.Read)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, []string{"internal_notes"}, cfg.ExcludedColumns)
}

func TestSaveRecordAPIConfigsRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "record_apis.yaml")

	want := []recordapi.Config{
		{
			Table:    "posts",
			Audience: access.Audience{World: access.ACL(2), Authenticated: access.ACL(15)},
		},
	}
	require.NoError(t, SaveRecordAPIConfigs(path, want))

	got, err := LoadRecordAPIConfigs(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "posts", got[0].Table)
	assert.Equal(t, access.ACL(2), got[0].Audience.World)
}
