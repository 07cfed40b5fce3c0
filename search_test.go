package pallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pallet/index"
)

func TestSearchWith(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateMulti(ctx, []Book{
		{Title: "The Old Man and the Sea", Rating: 10},
		{Title: "The Sea Wolf", Rating: 7},
		{Title: "The Great Gatsby", Rating: 8},
	})
	require.NoError(t, err)

	t.Run("CustomCollector", func(t *testing.T) {
		top, err := SearchWith(ctx, s, Params[[]index.DocAddress, int]{
			Query:     Text("sea"),
			Collector: index.TopDocs(1),
			Handler:   func(addrs []index.DocAddress) (int, error) { return len(addrs), nil },
		})
		require.NoError(t, err)
		assert.Equal(t, 1, top)
	})

	t.Run("Structured", func(t *testing.T) {
		rating := s.Fields().MustNamed("rating")
		q := index.NewRangeQuery(rating, index.Inclusive(index.U64(8)), nil)

		res, err := s.Search(ctx, Structured(q))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
	})

	t.Run("HandlerErrorIsCustom", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := SearchWith(ctx, s, Params[int, int]{
			Query:     Text("sea"),
			Collector: index.Count(),
			Handler:   func(int) (int, error) { return 0, boom },
		})
		require.ErrorIs(t, err, ErrCustom)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("HandlerErrorKeepsKind", func(t *testing.T) {
		_, err := SearchWith(ctx, s, Params[int, int]{
			Query:     Text("sea"),
			Collector: index.Count(),
			Handler:   func(int) (int, error) { return 0, wrap(ErrStorage, errors.New("gone")) },
		})
		require.ErrorIs(t, err, ErrStorage)
		assert.NotErrorIs(t, err, ErrCustom)
	})

	t.Run("CustomHelpers", func(t *testing.T) {
		_, err := SearchWith(ctx, s, Params[int, int]{
			Query:     Text("sea"),
			Collector: index.Count(),
			Handler:   func(n int) (int, error) { return 0, Customf("too many: %d", n) },
		})
		require.ErrorIs(t, err, ErrCustom)
		assert.Contains(t, err.Error(), "too many: 2")
		assert.ErrorIs(t, Custom("x"), ErrCustom)
	})

	t.Run("SyntaxError", func(t *testing.T) {
		_, err := s.SearchString(ctx, "(sea")
		require.ErrorIs(t, err, ErrQuerySyntax)
		assert.NotErrorIs(t, err, ErrSearchEngine)

		var syn *index.SyntaxError
		assert.ErrorAs(t, err, &syn)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.SearchString(cctx, "sea")
		require.ErrorIs(t, err, context.Canceled)
	})
}
