package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Set PALLET_MINIO_ENDPOINT (e.g. localhost:9000) to enable it.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("PALLET_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("PALLET_MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	store := NewStore(client, "test-pallet", "test-prefix/")
	if err := store.EnsureBucket(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("meta-000001.json")))

	data, err := blobstore.ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "meta-000001.json", string(data))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "CURRENT")

	require.NoError(t, store.Delete(ctx, "CURRENT"))
	_, err = store.Open(ctx, "CURRENT")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
