package pallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/testutil"
)

type Book = testutil.Book

func newTestStore(t *testing.T, mutate ...func(*Config)) *Store[Book] {
	t.Helper()
	cfg := Config{
		DB:        testutil.NewDB(t),
		Directory: blobstore.NewMemoryStore(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := Open[Book](context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hitIDs[T any](res *Results[T]) []uint64 {
	out := make([]uint64, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Doc.ID
	}
	return out
}
