package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/pallet/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocalStore(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	return map[string]Store{
		"local":  local,
		"memory": NewMemoryStore(),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "b.seg", []byte("hello world")))
			require.NoError(t, store.Put(ctx, "a.seg", []byte("first")))
			require.NoError(t, store.Put(ctx, "CURRENT", []byte("meta-000001.json")))

			blob, err := store.Open(ctx, "b.seg")
			require.NoError(t, err)
			assert.Equal(t, int64(11), blob.Size())
			buf := make([]byte, 5)
			n, err := blob.ReadAt(buf, 6)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))
			require.NoError(t, blob.Close())

			data, err := ReadAll(ctx, store, "a.seg")
			require.NoError(t, err)
			assert.Equal(t, "first", string(data))

			require.NoError(t, store.Put(ctx, "a.seg", []byte("replaced")))
			data, err = ReadAll(ctx, store, "a.seg")
			require.NoError(t, err)
			assert.Equal(t, "replaced", string(data))

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"CURRENT", "a.seg", "b.seg"}, names)

			names, err = store.List(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []string{"a.seg"}, names)

			require.NoError(t, store.Delete(ctx, "a.seg"))
			require.NoError(t, store.Delete(ctx, "a.seg"))
			_, err = ReadAll(ctx, store, "a.seg")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_EmptyBlob(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "empty", nil))
			data, err := ReadAll(ctx, store, "empty")
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestStore_Locking(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			locker, ok := store.(Locker)
			require.True(t, ok)

			unlock, err := locker.TryLock("writer")
			require.NoError(t, err)

			_, err = locker.TryLock("writer")
			assert.ErrorIs(t, err, ErrLocked)

			require.NoError(t, unlock())
			require.NoError(t, unlock())

			unlock, err = locker.TryLock("writer")
			require.NoError(t, err)
			require.NoError(t, unlock())
		})
	}
}

func TestLocalStore_ListSkipsTemporaryAndLockFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.seg.tmp"), []byte("partial"), 0o644))
	unlock, err := store.TryLock("writer")
	require.NoError(t, err)
	defer unlock()
	require.NoError(t, store.Put(ctx, "x.seg", []byte("done")))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.seg"}, names)
}

func TestLocalStore_FailedPutKeepsPreviousBlob(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	store, err := NewLocalStore(t.TempDir(), WithFileSystem(ffs))
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("meta-000001.json")))

	ffs.AddRule("CURRENT", fs.Fault{FailOnSync: true})
	err = store.Put(ctx, "CURRENT", []byte("meta-000002.json"))
	require.ErrorIs(t, err, fs.ErrInjected)

	ffs.ClearRules()
	data, err := ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "meta-000001.json", string(data))
}

func TestLocalStore_PutHonorsCanceledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Put(ctx, "x", []byte("y")), context.Canceled)
}
