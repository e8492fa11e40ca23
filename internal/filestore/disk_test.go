package filestore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePutOpenDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	id := uuid.Must(uuid.NewV7())
	n, err := store.Put(context.Background(), id, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	rc, err := store.Open(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, store.Delete(context.Background(), id))
	_, err = store.Open(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreDeleteMissingIsNotError(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), uuid.Must(uuid.NewV7())))
}

func TestStagedWriteRollsBackUnlessReleased(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	sw := NewStagedWrite(store)
	id, err := sw.Put(context.Background(), bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, sw.Rollback(context.Background()))
	_, err = store.Open(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound, "unreleased staged write must be rolled back")
}

func TestStagedWriteSurvivesAfterRelease(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	sw := NewStagedWrite(store)
	id, err := sw.Put(context.Background(), bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	sw.Release()
	require.NoError(t, sw.Rollback(context.Background()))

	_, err = store.Open(context.Background(), id)
	assert.NoError(t, err, "a released staged write must survive Rollback")
}
