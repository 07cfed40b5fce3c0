package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserMatches(t *testing.T) {
	idx, f := booksIndex(t)

	tests := []struct {
		query string
		want  []uint64
	}{
		{"man", []uint64{1, 3, 4}},
		{"MAN", []uint64{1, 3, 4}},
		{"man AND rating:>8", nil},
		{"man AND rating:>=8", []uint64{1}},
		{"man rating:>=8", []uint64{1}},
		{"dune OR sea", []uint64{2, 3}},
		{"man -the", []uint64{4}},
		{"man NOT the", []uint64{4}},
		{"+man +old", []uint64{3}},
		{"NOT man", []uint64{2}},
		{`"high castle"`, []uint64{1}},
		{`title:"old man"`, []uint64{3}},
		{"title:(dune OR castle)", []uint64{1, 2}},
		{"rating:[7 TO 8]", []uint64{1, 3}},
		{"rating:{7 TO 9]", []uint64{1, 2}},
		{"rating:[* TO 7}", []uint64{4}},
		{"rating:9", []uint64{2}},
		{"price:<10", []uint64{1, 3}},
		{"published:>=1960-01-01", []uint64{1, 2}},
		{"published:<1960-01-01T00:00:00Z", []uint64{3}},
		{"*", []uint64{1, 2, 3, 4}},
		{"(dune OR sea) AND rating:<9", []uint64{3}},
		{"nonexistent", nil},
		{"high-castle", []uint64{1}},
		{"title:,", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := ids(t, idx, f, parse(t, idx, tt.query, f.title, f.body))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestParserNumericDefaultField(t *testing.T) {
	idx, f := booksIndex(t)

	assert.Equal(t, []uint64{2}, ids(t, idx, f, parse(t, idx, "9", f.title, f.rating)))
	assert.ElementsMatch(t, []uint64{1, 3, 4}, ids(t, idx, f, parse(t, idx, "man", f.title, f.rating)))

	_, err := idx.QueryParser([]Field{f.rating}).Parse("man")
	assert.ErrorIs(t, err, ErrQuerySyntax)
}

func TestParserErrors(t *testing.T) {
	idx, f := booksIndex(t)
	qp := idx.QueryParser([]Field{f.title})

	tests := []struct {
		query  string
		offset int
	}{
		{"", 0},
		{"   ", 0},
		{"(man", 0},
		{"man)", 3},
		{"man (dune", 4},
		{`"high castle`, 0},
		{`man "high`, 4},
		{"man AND", 4},
		{"man OR", 4},
		{"AND man", 0},
		{"OR man", 0},
		{"NOT", 0},
		{"man -", 4},
		{"+", 0},
		{"()", 0},
		{"author:dick", 0},
		{"man rating:high", 11},
		{"rating:>x", 8},
		{"rating:[1 TO x]", 7},
		{"rating:[1 5]", 7},
		{"rating:[1 TO 5", 7},
		{"title:[a TO b]", 0},
		{"title:>a", 0},
		{"title:*", 0},
		{"title: man", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := qp.Parse(tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrQuerySyntax)

			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.query, se.Query)
			assert.Equal(t, tt.offset, se.Offset, se.Msg)
		})
	}

	_, err := idx.QueryParser(nil).Parse("man")
	assert.ErrorIs(t, err, ErrQuerySyntax)
	_, err = idx.QueryParser(nil).Parse("title:man")
	assert.NoError(t, err)
}
