package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/auth"
	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/migrate"
	"github.com/autobrr/litebase/internal/realtime"
	"github.com/autobrr/litebase/internal/recordapi"
	"github.com/autobrr/litebase/internal/schema"
)

func newTestDeps(t *testing.T) *Dependencies {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "api-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Apply(ctx, eng))
	_, err = eng.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	sc := schema.New(eng)
	require.NoError(t, sc.Reload(ctx))
	ev := access.New(eng)
	hub := realtime.New(eng, sc, ev)
	require.NoError(t, hub.Start())
	t.Cleanup(hub.Stop)

	svc := &recordapi.Service{Eng: eng, Schema: sc, Access: ev, Configs: map[string]recordapi.Config{}}
	registry := recordapi.NewRegistry(svc)
	require.NoError(t, registry.Set(ctx, eng, recordapi.Config{
		Table:    "widgets",
		Audience: access.Audience{World: access.ACL(access.OpRead | access.OpCreate | access.OpUpdate | access.OpDelete)},
	}))

	return &Dependencies{
		Config:         &config.AppConfig{Host: "localhost", Port: 0},
		Engine:         eng,
		AuthService:    auth.NewService(eng),
		SessionManager: auth.NewSessionManager(eng),
		RecordAPI:      svc,
		RecordAPIs:     registry,
		Schema:         sc,
		Realtime:       hub,
	}
}

func TestHealthEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSetupRequiredGatesRecordRoutes(t *testing.T) {
	deps := newTestDeps(t)
	r := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/records/widgets/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "setup_required")
}

func TestSetupLoginAndRecordCRUDFlow(t *testing.T) {
	deps := newTestDeps(t)
	r := NewRouter(deps)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	setupResp, err := client.Post(server.URL+"/api/auth/setup", "application/json",
		strings.NewReader(`{"username":"admin","password":"correct horse battery staple"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, setupResp.StatusCode)
	setupResp.Body.Close()

	createResp, err := client.Post(server.URL+"/api/records/widgets/", "application/json",
		strings.NewReader(`{"name":"sprocket"}`))
	require.NoError(t, err)
	defer createResp.Body.Close()
	assert.Equal(t, http.StatusCreated, createResp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(createResp.Body).Decode(&created))
	assert.Equal(t, "sprocket", created["name"])

	listResp, err := client.Get(server.URL + "/api/records/widgets/")
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var list recordapi.ListResult
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Len(t, list.Items, 1)
}

func TestUnknownRecordAPIReturnsNotFound(t *testing.T) {
	deps := newTestDeps(t)
	r := NewRouter(deps)

	ctx := context.Background()
	_, err := deps.AuthService.SetupUser(ctx, "admin", "correct horse battery staple")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/records/does-not-exist/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
