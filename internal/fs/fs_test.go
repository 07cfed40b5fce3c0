package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CURRENT")

	require.NoError(t, WriteFileAtomic(Default, dir, path, []byte("meta-000001.json")))
	require.NoError(t, WriteFileAtomic(Default, dir, path, []byte("meta-000002.json")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "meta-000002.json", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_FailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CURRENT")
	require.NoError(t, WriteFileAtomic(Default, dir, path, []byte("old")))

	tests := []struct {
		name  string
		fault Fault
	}{
		{"write", Fault{FailOnWrite: true}},
		{"sync", Fault{FailOnSync: true}},
		{"rename", Fault{FailOnRename: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ffs := NewFaultyFS(nil)
			ffs.AddRule("CURRENT", tt.fault)

			err := WriteFileAtomic(ffs, dir, path, []byte("new"))
			require.ErrorIs(t, err, ErrInjected)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(data))

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFaultyFS_UnmatchedPathsPassThrough(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("segment", Fault{FailOnWrite: true})

	require.NoError(t, WriteFileAtomic(ffs, dir, filepath.Join(dir, "meta"), []byte("ok")))

	ffs.ClearRules()
	require.NoError(t, WriteFileAtomic(ffs, dir, filepath.Join(dir, "segment"), []byte("ok")))

	entries, err := ffs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
