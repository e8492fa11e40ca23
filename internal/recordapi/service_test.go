package recordapi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/filestore"
	"github.com/autobrr/litebase/internal/schema"
)

func newTestService(t *testing.T, ddl ...string) (*Service, *schema.Cache) {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "recordapi-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	for _, stmt := range ddl {
		_, err := eng.Execute(ctx, stmt)
		require.NoError(t, err)
	}

	store, err := filestore.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	sc := schema.New(eng)
	require.NoError(t, sc.Reload(ctx))

	svc := &Service{
		Eng:     eng,
		Schema:  sc,
		Access:  access.New(eng),
		Files:   store,
		Configs: map[string]Config{},
	}
	return svc, sc
}

func mustEntity(t *testing.T, sc *schema.Cache, table string) schema.Entity {
	t.Helper()
	ent, ok := sc.Entity(table)
	require.True(t, ok, "entity %q not found", table)
	return ent
}

func openACL() access.Audience {
	all := access.OpCreate | access.OpRead | access.OpUpdate | access.OpDelete | access.OpSchema
	return access.Audience{World: access.ACL(all), Authenticated: access.ACL(all)}
}

func TestServiceCreateGetUpdateDelete(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		owner_id TEXT,
		title TEXT NOT NULL,
		published INTEGER
	)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL()}
	caller := Caller{Authenticated: true}
	ctx := context.Background()

	created, err := svc.Create(ctx, cfg, caller, ent, map[string]any{
		"owner_id": "alice",
		"title":    "hello world",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", created["owner_id"])
	assert.Equal(t, "hello world", created["title"])
	assert.Nil(t, created["published"])

	id := created["id"]
	pkRaw, err := EncodePK(schema.PKIntegerRowID, id)
	require.NoError(t, err)

	got, err := svc.Get(ctx, cfg, caller, ent, pkRaw, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got["title"])

	updated, err := svc.Update(ctx, cfg, caller, ent, pkRaw, map[string]any{"title": "edited"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "edited", updated["title"])
	assert.Equal(t, "alice", updated["owner_id"], "update must be partial, leaving other columns untouched")

	require.NoError(t, svc.Delete(ctx, cfg, caller, ent, pkRaw))

	_, err = svc.Get(ctx, cfg, caller, ent, pkRaw, nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeNotFound, apiErr.Code)
}

func TestServiceUpdateRejectsEmptyBody(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL()}
	caller := Caller{Authenticated: true}
	ctx := context.Background()

	created, err := svc.Create(ctx, cfg, caller, ent, map[string]any{"title": "x"}, nil)
	require.NoError(t, err)
	pkRaw, err := EncodePK(schema.PKIntegerRowID, created["id"])
	require.NoError(t, err)

	_, err = svc.Update(ctx, cfg, caller, ent, pkRaw, map[string]any{}, nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeBadRequest, apiErr.Code)
}

func TestServiceCreateDeniedByTableACL(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: access.Audience{World: access.ACL(access.OpRead)}}
	ctx := context.Background()

	_, err := svc.Create(ctx, cfg, Caller{}, ent, map[string]any{"title": "x"}, nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok, "P3: an audience without OpCreate must deny before any rule runs")
	assert.Equal(t, apierr.CodeForbidden, apiErr.Code)
}

func TestServiceCreateDeniedByRecordRule(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, owner_id TEXT, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{
		Table:    "posts",
		Audience: openACL(),
		Rules:    access.Rules{Create: "_REQ_.owner_id = _USER_.id"},
	}
	ctx := context.Background()
	alice := "alice"

	_, err := svc.Create(ctx, cfg, Caller{UserID: &alice, Authenticated: true}, ent, map[string]any{
		"owner_id": "mallory",
		"title":    "not mine",
	}, nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeForbidden, apiErr.Code)
}

func TestServiceListPaginatesByCursor(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL(), PageSize: 2, MaxPageSize: 2}
	caller := Caller{Authenticated: true}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, cfg, caller, ent, map[string]any{"title": "post"}, nil)
		require.NoError(t, err)
	}

	page1, err := svc.List(ctx, cfg, caller, ent, map[string][]string{})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := svc.List(ctx, cfg, caller, ent, map[string][]string{"cursor": {page1.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.True(t, page2.HasMore)

	page3, err := svc.List(ctx, cfg, caller, ent, map[string][]string{"cursor": {page2.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.False(t, page3.HasMore)
}

func TestServiceListAppliesListRule(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, owner_id TEXT, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{
		Table:    "posts",
		Audience: openACL(),
		Rules:    access.Rules{List: "owner_id = _USER_.id"},
	}
	ctx := context.Background()
	alice := "alice"
	bob := "bob"

	_, err := svc.Create(ctx, cfg, Caller{UserID: &alice, Authenticated: true}, ent, map[string]any{
		"owner_id": "alice", "title": "alice's post",
	}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, cfg, Caller{UserID: &bob, Authenticated: true}, ent, map[string]any{
		"owner_id": "bob", "title": "bob's post",
	}, nil)
	require.NoError(t, err)

	result, err := svc.List(ctx, cfg, Caller{UserID: &alice, Authenticated: true}, ent, map[string][]string{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "alice's post", result.Items[0]["title"])
}

func TestServiceListFiltersByQueryString(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL()}
	caller := Caller{Authenticated: true}
	ctx := context.Background()

	_, err := svc.Create(ctx, cfg, caller, ent, map[string]any{"title": "keep"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, cfg, caller, ent, map[string]any{"title": "drop"}, nil)
	require.NoError(t, err)

	result, err := svc.List(ctx, cfg, caller, ent, map[string][]string{"filter[title]": {"keep"}})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "keep", result.Items[0]["title"])
}

func TestServiceExpandAttachesReferencedRow(t *testing.T) {
	svc, sc := newTestService(t,
		`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER REFERENCES authors(id), title TEXT)`,
	)
	authorEnt := mustEntity(t, sc, "authors")
	postEnt := mustEntity(t, sc, "posts")

	authorCfg := Config{Table: "authors", Audience: openACL(), ExpandableColumns: nil}
	postCfg := Config{Table: "posts", Audience: openACL(), ExpandableColumns: []string{"author_id"}}
	svc.Configs["authors"] = authorCfg
	svc.Configs["posts"] = postCfg

	caller := Caller{Authenticated: true}
	ctx := context.Background()

	author, err := svc.Create(ctx, authorCfg, caller, authorEnt, map[string]any{"name": "Ada"}, nil)
	require.NoError(t, err)

	post, err := svc.Create(ctx, postCfg, caller, postEnt, map[string]any{
		"author_id": author["id"],
		"title":     "on computation",
	}, nil)
	require.NoError(t, err)

	pkRaw, err := EncodePK(schema.PKIntegerRowID, post["id"])
	require.NoError(t, err)

	got, err := svc.Get(ctx, postCfg, caller, postEnt, pkRaw, []string{"author_id"})
	require.NoError(t, err)

	expand, ok := got["expand"].(map[string]any)
	require.True(t, ok, "expand must attach the referenced author")
	authorRow, ok := expand["author_id"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", authorRow["name"])
}

func TestServiceGetReturnsNotFoundForMissingRow(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL()}
	ctx := context.Background()

	_, err := svc.Get(ctx, cfg, Caller{Authenticated: true}, ent, "999", nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeNotFound, apiErr.Code)
}

func TestServiceGetRejectsMalformedPK(t *testing.T) {
	svc, sc := newTestService(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	ent := mustEntity(t, sc, "posts")
	cfg := Config{Table: "posts", Audience: openACL()}
	ctx := context.Background()

	_, err := svc.Get(ctx, cfg, Caller{Authenticated: true}, ent, "not-a-number", nil)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeBadRequest, apiErr.Code)
}
