package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booksIndex(t *testing.T) (*Index, testFields) {
	t.Helper()
	idx, f, _ := newTestIndex(t, Settings{})
	date := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
	addAndCommit(t, idx,
		f.doc(1, "The Man in the High Castle", 8).AddF64(f.price, 9.5).AddDate(f.published, date(1962)),
		f.doc(2, "Dune", 9).AddF64(f.price, 12).AddDate(f.published, date(1965)),
		f.doc(3, "The Old Man and the Sea", 7).AddF64(f.price, 7.25).AddDate(f.published, date(1952)),
		f.doc(4, "Man Man Man", 3),
	)
	return idx, f
}

func TestTermQuery(t *testing.T) {
	idx, f := booksIndex(t)

	assert.Equal(t, 3, count(t, idx, NewTermQuery(TextTerm(f.title, "man"))))
	assert.Equal(t, 0, count(t, idx, NewTermQuery(TextTerm(f.title, "missing"))))
	assert.Equal(t, []uint64{2}, ids(t, idx, f, NewTermQuery(U64Term(f.rating, 9))))

	// higher term frequency in a short field ranks first
	hits := ids(t, idx, f, NewTermQuery(TextTerm(f.title, "man")))
	require.Len(t, hits, 3)
	assert.Equal(t, uint64(4), hits[0])

	_, err := Search(context.Background(), idx.Reader().Searcher(), NewTermQuery(Term{Field: f.rating, Value: Text("x")}), Count())
	assert.ErrorIs(t, err, ErrSchema)
}

func TestPhraseQuery(t *testing.T) {
	idx, f := booksIndex(t)

	phrase := func(s string) Query { return NewPhraseQuery(f.title, Analyze(TokenizerDefault, s)) }
	assert.Equal(t, []uint64{1}, ids(t, idx, f, phrase("high castle")))
	assert.Equal(t, []uint64{3}, ids(t, idx, f, phrase("old man")))
	assert.Equal(t, 0, count(t, idx, phrase("castle high")))
	assert.Equal(t, 1, count(t, idx, phrase("man man man")))
	assert.Equal(t, 0, count(t, idx, NewPhraseQuery(f.title, nil)))
}

func TestPhraseDoesNotSpanValues(t *testing.T) {
	idx, f, _ := newTestIndex(t, Settings{})
	addAndCommit(t, idx, NewDocument().AddU64(f.id, 1).AddText(f.title, "high").AddText(f.title, "castle"))

	assert.Equal(t, 0, count(t, idx, NewPhraseQuery(f.title, Analyze(TokenizerDefault, "high castle"))))
	assert.Equal(t, 1, count(t, idx, NewTermQuery(TextTerm(f.title, "castle"))))
}

func TestRangeQuery(t *testing.T) {
	idx, f := booksIndex(t)

	tests := []struct {
		name  string
		query Query
		want  []uint64
	}{
		{"inclusive", NewRangeQuery(f.rating, Inclusive(U64(7)), Inclusive(U64(8))), []uint64{1, 3}},
		{"exclusive", NewRangeQuery(f.rating, Exclusive(U64(7)), Exclusive(U64(9))), []uint64{1}},
		{"open upper", NewRangeQuery(f.rating, Exclusive(U64(8)), nil), []uint64{2}},
		{"open lower", NewRangeQuery(f.rating, nil, Inclusive(U64(3))), []uint64{4}},
		{"empty", NewRangeQuery(f.rating, Inclusive(U64(9)), Inclusive(U64(3))), nil},
		{"fast only column", NewRangeQuery(f.price, Inclusive(F64(9)), Inclusive(F64(20))), []uint64{1, 2}},
		{"date", NewRangeQuery(f.published, Inclusive(Date(time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC))), nil), []uint64{1, 2}},
		{"unbounded has value", NewRangeQuery(f.price, nil, nil), []uint64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(t, idx, f, tt.query)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	_, err := Search(context.Background(), idx.Reader().Searcher(), NewRangeQuery(f.title, nil, nil), Count())
	assert.ErrorIs(t, err, ErrSchema)
}

func TestBooleanQuery(t *testing.T) {
	idx, f := booksIndex(t)
	man := NewTermQuery(TextTerm(f.title, "man"))
	the := NewTermQuery(TextTerm(f.title, "the"))
	good := NewRangeQuery(f.rating, Inclusive(U64(8)), nil)

	assert.Equal(t, 0, count(t, idx, NewBooleanQuery()))
	assert.ElementsMatch(t, []uint64{1}, ids(t, idx, f, NewBooleanQuery(Clause{Must, man}, Clause{Must, good})))
	assert.ElementsMatch(t, []uint64{2, 4}, ids(t, idx, f, NewBooleanQuery(Clause{MustNot, the})))
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4}, ids(t, idx, f, NewBooleanQuery(Clause{Should, man}, Clause{Should, good})))
	assert.ElementsMatch(t, []uint64{4}, ids(t, idx, f, NewBooleanQuery(Clause{Must, man}, Clause{MustNot, the})))

	// optional clauses only add score when a required clause exists
	hits, err := Search(context.Background(), idx.Reader().Searcher(),
		NewBooleanQuery(Clause{Must, man}, Clause{Should, NewTermQuery(TextTerm(f.title, "sea"))}),
		ScoredIDs(f.id, 0))
	require.NoError(t, err)
	require.Len(t, hits, 3)
	plain, err := Search(context.Background(), idx.Reader().Searcher(), man, ScoredIDs(f.id, 0))
	require.NoError(t, err)
	for _, h := range hits {
		for _, p := range plain {
			if p.ID == h.ID && h.ID == 3 {
				assert.Greater(t, h.Score, p.Score)
			} else if p.ID == h.ID {
				assert.InDelta(t, p.Score, h.Score, 1e-6)
			}
		}
	}
}

func TestAllQueryExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	idx, f := booksIndex(t)

	w, err := idx.Writer(ctx, 1<<20)
	require.NoError(t, err)
	defer w.Close()
	w.DeleteTerm(U64Term(f.id, 2))
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint64{1, 3, 4}, ids(t, idx, f, NewAllQuery()))
	assert.Equal(t, 0, count(t, idx, NewTermQuery(TextTerm(f.title, "dune"))))
	assert.Equal(t, uint64(3), idx.Reader().Searcher().NumDocs())
	assert.Equal(t, uint64(0), idx.Reader().Searcher().DocFreq(TextTerm(f.title, "dune")))
}

func TestIDF(t *testing.T) {
	assert.Greater(t, idf(1, 100), idf(50, 100))
	assert.Greater(t, idf(99, 100), float32(0))
}

func TestQueryString(t *testing.T) {
	q := NewBooleanQuery(
		Clause{Must, NewTermQuery(U64Term(0, 1))},
		Clause{MustNot, NewRangeQuery(1, Inclusive(U64(1)), nil)},
	)
	assert.Equal(t, "(+Term(0:1) -Range(1:[1 TO *)))", q.String())
}

func TestScoringIgnoresDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	apple := func(idx *Index, f testFields) float32 {
		hits, err := Search(ctx, idx.Reader().Searcher(), NewTermQuery(TextTerm(f.title, "apple")), ScoredIDs(f.id, 0))
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, uint64(1), hits[0].ID)
		return hits[0].Score
	}

	withDeletes, f, _ := newTestIndex(t, Settings{})
	addAndCommit(t, withDeletes,
		f.doc(1, "apple", 1),
		f.doc(2, "apple banana cherry date elder fig grape", 1),
		f.doc(3, "kiwi", 1))
	w, err := withDeletes.Writer(ctx, MinWriterMemoryBudget)
	require.NoError(t, err)
	w.DeleteTerm(U64Term(f.id, 2))
	_, err = w.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Len(t, withDeletes.Reader().Searcher().Segments(), 1)

	fresh, g, _ := newTestIndex(t, Settings{})
	addAndCommit(t, fresh,
		g.doc(1, "apple", 1),
		g.doc(3, "kiwi", 1))

	assert.InDelta(t, apple(fresh, g), apple(withDeletes, f), 1e-6)
}
