package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pallet/blobstore"
)

type testFields struct {
	id, title, body, rating, price, published Field
}

func testSchema(t *testing.T) (*Schema, testFields) {
	t.Helper()
	b := NewSchemaBuilder()
	f := testFields{
		id:        b.AddU64Field("id", INDEXED|FAST),
		title:     b.AddTextField("title", TEXT),
		body:      b.AddTextField("body", TEXT),
		rating:    b.AddU64Field("rating", INDEXED|FAST),
		price:     b.AddF64Field("price", FAST),
		published: b.AddDateField("published", INDEXED),
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s, f
}

func newTestIndex(t *testing.T, settings Settings) (*Index, testFields, *blobstore.MemoryStore) {
	t.Helper()
	schema, f := testSchema(t)
	dir := blobstore.NewMemoryStore()
	idx, err := Create(context.Background(), dir, schema, settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, f, dir
}

func (f testFields) doc(id uint64, title string, rating uint64) *Document {
	return NewDocument().AddU64(f.id, id).AddText(f.title, title).AddU64(f.rating, rating)
}

func addAndCommit(t *testing.T, idx *Index, docs ...*Document) {
	t.Helper()
	ctx := context.Background()
	w, err := idx.Writer(ctx, 1<<20)
	require.NoError(t, err)
	defer w.Close()
	for _, d := range docs {
		_, err := w.AddDocument(d)
		require.NoError(t, err)
	}
	_, err = w.Commit(ctx)
	require.NoError(t, err)
}

func count(t *testing.T, idx *Index, q Query) int {
	t.Helper()
	n, err := Search(context.Background(), idx.Reader().Searcher(), q, Count())
	require.NoError(t, err)
	return n
}

func ids(t *testing.T, idx *Index, f testFields, q Query) []uint64 {
	t.Helper()
	hits, err := Search(context.Background(), idx.Reader().Searcher(), q, ScoredIDs(f.id, 0))
	require.NoError(t, err)
	out := make([]uint64, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func parse(t *testing.T, idx *Index, text string, defaults ...Field) Query {
	t.Helper()
	q, err := idx.QueryParser(defaults).Parse(text)
	require.NoError(t, err)
	return q
}
