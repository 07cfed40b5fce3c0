package index

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pallet/resource"
)

// SetMultithreadExecutor lets searches run up to n segments on helper
// goroutines while the calling goroutine works on the rest.
func (idx *Index) SetMultithreadExecutor(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: executor threads %d", ErrInvalidArgument, n)
	}
	idx.workers.Store(resource.NewController(resource.Config{MaxWorkers: int64(n)}))
	return nil
}

// SetDefaultMultithreadExecutor sizes the executor to GOMAXPROCS.
func (idx *Index) SetDefaultMultithreadExecutor() error {
	return idx.SetMultithreadExecutor(runtime.GOMAXPROCS(0))
}

// SetSingleThreadExecutor runs every segment on the calling goroutine.
func (idx *Index) SetSingleThreadExecutor() {
	idx.workers.Store(nil)
}

// Search runs q against every segment of s and merges the fruits of c.
func Search[F any](ctx context.Context, s *Searcher, q Query, c Collector[F]) (F, error) {
	var zero F

	w, err := q.weight(s, c.RequiresScoring())
	if err != nil {
		return zero, err
	}

	var workers *resource.Controller
	if s.idx != nil {
		workers = s.idx.workers.Load()
	}

	fruits := make([]F, len(s.segments))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range s.segments {
		if workers.TryAcquireWorker() {
			g.Go(func() error {
				defer workers.ReleaseWorker()
				f, err := searchSegment(gctx, w, r, c)
				fruits[i] = f
				return err
			})
			continue
		}
		f, err := searchSegment(gctx, w, r, c)
		if err != nil {
			_ = g.Wait()
			return zero, err
		}
		fruits[i] = f
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}
	return c.Merge(fruits)
}

func searchSegment[F any](ctx context.Context, w weight, r *SegmentReader, c Collector[F]) (F, error) {
	var zero F
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	sc, err := c.ForSegment(r)
	if err != nil {
		return zero, err
	}
	ds := w.eval(r)
	it := ds.docs.Iterator()
	for it.HasNext() {
		d := it.Next()
		sc.Collect(d, ds.score(d))
	}
	return sc.Harvest(), nil
}
