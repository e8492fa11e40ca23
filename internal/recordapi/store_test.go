package recordapi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
)

func newMigratedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "store-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, migrate.Apply(context.Background(), eng))
	return eng
}

func TestSaveLoadDeleteConfig(t *testing.T) {
	eng := newMigratedEngine(t)
	ctx := context.Background()

	cfg := Config{
		Table:             "widgets",
		Audience:          access.Audience{World: access.ACL(access.OpRead), Authenticated: access.ACL(access.OpRead | access.OpCreate)},
		Rules:             access.Rules{Read: "1", List: "owner_id = :__user_id"},
		PageSize:          20,
		MaxPageSize:       100,
		BulkInsertLimit:   10,
		ExcludedColumns:   []string{"secret"},
		ExpandableColumns: []string{"owner_id"},
	}
	require.NoError(t, SaveConfig(ctx, eng, cfg))

	loaded, err := LoadConfigs(ctx, eng)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, cfg, loaded[0])

	cfg.PageSize = 50
	require.NoError(t, SaveConfig(ctx, eng, cfg))
	loaded, err = LoadConfigs(ctx, eng)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 50, loaded[0].PageSize)

	require.NoError(t, DeleteConfig(ctx, eng, "widgets"))
	loaded, err = LoadConfigs(ctx, eng)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRegistrySetGetRemoveUpdatesService(t *testing.T) {
	eng := newMigratedEngine(t)
	ctx := context.Background()

	svc := &Service{}
	reg := NewRegistry(svc)
	require.NoError(t, reg.Load(ctx, eng))
	assert.Empty(t, reg.All())

	cfg := Config{Table: "widgets", PageSize: 10}
	require.NoError(t, reg.Set(ctx, eng, cfg))

	got, ok := reg.Get("widgets")
	require.True(t, ok)
	assert.Equal(t, 10, got.PageSize)
	assert.Contains(t, svc.Configs, "widgets")

	require.NoError(t, reg.Remove(ctx, eng, "widgets"))
	_, ok = reg.Get("widgets")
	assert.False(t, ok)
	assert.NotContains(t, svc.Configs, "widgets")
}
