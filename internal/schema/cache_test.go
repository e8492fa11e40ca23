package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/engine"
)

func newTestCache(t *testing.T) (*Cache, *engine.Engine) {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "schema-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return New(eng), eng
}

func TestReloadClassifiesIntegerAndBlobPrimaryKeys(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, `CREATE TABLE owners (id BLOB PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, `CREATE VIEW post_titles AS SELECT id, title FROM posts`)
	require.NoError(t, err)

	require.NoError(t, c.Reload(ctx))

	posts, ok := c.Table("posts")
	require.True(t, ok)
	_, kind := posts.PKColumn()
	assert.Equal(t, PKIntegerRowID, kind)

	owners, ok := c.Table("owners")
	require.True(t, ok)
	_, kind = owners.PKColumn()
	assert.Equal(t, PKBlobUUIDv7, kind)

	view, ok := c.View("post_titles")
	require.True(t, ok)
	assert.True(t, view.IsView())
}

func TestReloadResolvesForeignKeys(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, `CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, `CREATE TABLE books (id INTEGER PRIMARY KEY, author_id INTEGER REFERENCES authors(id))`)
	require.NoError(t, err)

	require.NoError(t, c.Reload(ctx))

	books, ok := c.Table("books")
	require.True(t, ok)
	col, ok := books.Column("author_id")
	require.True(t, ok)
	require.NotNil(t, col.ForeignKey)
	assert.Equal(t, "authors", col.ForeignKey.RefTable)
	assert.Equal(t, "id", col.ForeignKey.RefColumn)
}

func TestReloadToleratesMissingJSONAnnotationTable(t *testing.T) {
	c, eng := newTestCache(t)
	_, err := eng.Execute(context.Background(), `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	require.NoError(t, c.Reload(context.Background()))
	_, ok := c.Table("t")
	assert.True(t, ok)
}
