package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	key, err := NewKey("photos/ana.png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "_ana.png"), key)
	assert.Len(t, key, 36+len("_ana.png"))

	key, err = NewKey("  ")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "_blob"), key)

	_, err = NewKey("../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidName)
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	key, err := store.Put(ctx, "ana.jpg", []byte("jpeg"))
	require.NoError(t, err)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	// повторное удаление не ошибка
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Put(ctx, "a/../../b.jpg", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Zero(t, store.Len())
}

func TestFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	store, err := NewFSStore(dir)
	require.NoError(t, err)
	exerciseStore(t, store)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must not be left behind")
}

func TestFSStore_RejectsTraversalKeys(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../secret")
	require.ErrorIs(t, err, ErrInvalidName)
	require.ErrorIs(t, store.Delete(context.Background(), "a/b"), ErrInvalidName)

	if _, err := NewFSStore(""); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
