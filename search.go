package pallet

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pallet/index"
)

// Query produces an index query for a store.
type Query interface {
	AsQuery(idx *index.Index, defaults []index.Field) (index.Query, error)
}

// Text is query text in the syntax of index.QueryParser. Unqualified terms
// search the default search fields of the record type.
type Text string

// AsQuery parses the text.
func (t Text) AsQuery(idx *index.Index, defaults []index.Field) (index.Query, error) {
	return idx.QueryParser(defaults).Parse(string(t))
}

// Structured wraps a query built in code.
func Structured(q index.Query) Query { return structured{q} }

type structured struct{ q index.Query }

func (s structured) AsQuery(*index.Index, []index.Field) (index.Query, error) { return s.q, nil }

// Params configures SearchWith. Collector gathers the matches and Handler
// turns its fruit into the result.
type Params[F, O any] struct {
	Query     Query
	Collector index.Collector[F]
	Handler   func(F) (O, error)
}

// SearchWith runs a search with a custom collector and handler against the
// latest committed snapshot of the index.
//
// Handler errors are returned as ErrCustom unless they already match one of
// the error kinds.
func SearchWith[T, F, O any](ctx context.Context, s *Store[T], p Params[F, O]) (O, error) {
	var zero O
	if err := s.checkOpen(); err != nil {
		return zero, err
	}

	start := time.Now()
	out, err := searchWith(ctx, s, p)
	s.metrics.RecordSearch(time.Since(start), err)
	s.logger.LogSearch(ctx, describe(p.Query), time.Since(start), err)
	return out, err
}

func searchWith[T, F, O any](ctx context.Context, s *Store[T], p Params[F, O]) (O, error) {
	var zero O
	q, err := p.Query.AsQuery(s.idx, s.defaults)
	if err != nil {
		return zero, translateError(err)
	}
	fruit, err := index.Search(ctx, s.idx.Reader().Searcher(), q, p.Collector)
	if err != nil {
		return zero, translateError(err)
	}
	out, err := p.Handler(fruit)
	if err != nil {
		if isContextErr(err) {
			return zero, err
		}
		return zero, wrap(ErrCustom, err)
	}
	return out, nil
}

func describe(q Query) string {
	switch q := q.(type) {
	case Text:
		return string(q)
	case structured:
		return q.q.String()
	default:
		return "custom"
	}
}

// Search returns the number of matches and every matching record ordered by
// descending score, ties broken by ascending identifier.
func (s *Store[T]) Search(ctx context.Context, q Query) (*Results[T], error) {
	return SearchWith(ctx, s, Params[index.Pair[int, []index.ScoredID], *Results[T]]{
		Query:     q,
		Collector: index.Both(index.Count(), index.ScoredIDs(s.idField, 0)),
		Handler: func(fruit index.Pair[int, []index.ScoredID]) (*Results[T], error) {
			hits, err := s.fetch(ctx, fruit.Second)
			if err != nil {
				return nil, err
			}
			return &Results[T]{Count: fruit.First, Hits: hits}, nil
		},
	})
}

// SearchString is Search with query text.
func (s *Store[T]) SearchString(ctx context.Context, text string) (*Results[T], error) {
	return s.Search(ctx, Text(text))
}

// fetch loads the records of matches concurrently, keeping their order.
// Matches whose record is gone are skipped.
func (s *Store[T]) fetch(ctx context.Context, matches []index.ScoredID) ([]Hit[T], error) {
	found := make([]bool, len(matches))
	hits := make([]Hit[T], len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchN)
	for i, m := range matches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, ok, err := s.find(m.ID)
			if err != nil || !ok {
				return err
			}
			hits[i] = Hit[T]{Score: m.Score, Doc: doc}
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := hits[:0]
	for i, h := range hits {
		if found[i] {
			out = append(out, h)
		}
	}
	return out, nil
}
