package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
	"github.com/autobrr/litebase/internal/recordapi"
)

func newTestRouter(t *testing.T) (*engine.Engine, *recordapi.Registry, http.Handler) {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "admin-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, migrate.Apply(context.Background(), eng))

	registry := recordapi.NewRegistry(&recordapi.Service{})
	require.NoError(t, registry.Load(context.Background(), eng))

	return eng, registry, NewRouter(eng, registry, &config.AppConfig{Host: "localhost"})
}

func TestListStartsEmpty(t *testing.T) {
	_, _, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/record-apis", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestPutCreatesThenListReflectsIt(t *testing.T) {
	_, registry, r := newTestRouter(t)

	body := `{"pageSize":25,"maxPageSize":100}`
	req := httptest.NewRequest(http.MethodPut, "/record-apis/widgets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got recordapi.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "widgets", got.Table)
	assert.Equal(t, 25, got.PageSize)

	cfg, ok := registry.Get("widgets")
	require.True(t, ok)
	assert.Equal(t, 25, cfg.PageSize)
}

func TestPutRejectsInvalidListRule(t *testing.T) {
	_, _, r := newTestRouter(t)

	body := `{"rules":{"list":"_ROW_.owner_id = 1"}}`
	req := httptest.NewRequest(http.MethodPut, "/record-apis/widgets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRemovesConfig(t *testing.T) {
	_, registry, r := newTestRouter(t)

	putReq := httptest.NewRequest(http.MethodPut, "/record-apis/widgets", strings.NewReader(`{}`))
	putRec := httptest.NewRecorder()
	r.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/record-apis/widgets", nil)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	_, ok := registry.Get("widgets")
	assert.False(t, ok)
}
