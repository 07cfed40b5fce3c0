package index

import (
	"cmp"
	"container/heap"
	"fmt"
	"math"
	"slices"
)

// Collector gathers the matches of a search. ForSegment is called once per
// segment, possibly from several goroutines; the per-segment fruits are
// combined with Merge in segment order.
type Collector[F any] interface {
	ForSegment(r *SegmentReader) (SegmentCollector[F], error)
	// RequiresScoring reports whether Collect needs real scores.
	RequiresScoring() bool
	Merge(fruits []F) (F, error)
}

// SegmentCollector receives the matches of one segment in ascending DocID
// order.
type SegmentCollector[F any] interface {
	Collect(doc DocID, score float32)
	Harvest() F
}

// Count returns a collector counting matches.
func Count() Collector[int] { return countCollector{} }

type countCollector struct{}

func (countCollector) ForSegment(*SegmentReader) (SegmentCollector[int], error) {
	return &segmentCount{}, nil
}

func (countCollector) RequiresScoring() bool { return false }

func (countCollector) Merge(fruits []int) (int, error) {
	n := 0
	for _, f := range fruits {
		n += f
	}
	return n, nil
}

type segmentCount struct{ n int }

func (c *segmentCount) Collect(DocID, float32) { c.n++ }
func (c *segmentCount) Harvest() int           { return c.n }

// DocAddress locates a match.
type DocAddress struct {
	Segment int
	Doc     DocID
	Score   float32
}

// compareAddresses orders by score descending, then by address.
func compareAddresses(a, b DocAddress) int {
	if c := compareScores(a.Score, b.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
		return c
	}
	return cmp.Compare(a.Doc, b.Doc)
}

// compareScores orders higher scores first and NaN last.
func compareScores(a, b float32) int {
	an, bn := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmp.Compare(b, a)
}

// TopDocs returns a collector keeping the limit best matches.
func TopDocs(limit int) Collector[[]DocAddress] { return topDocsCollector{limit: limit} }

type topDocsCollector struct{ limit int }

func (c topDocsCollector) ForSegment(r *SegmentReader) (SegmentCollector[[]DocAddress], error) {
	if c.limit < 1 {
		return nil, fmt.Errorf("%w: top docs limit %d", ErrInvalidArgument, c.limit)
	}
	return &segmentTopDocs{seg: r.Ordinal(), limit: c.limit}, nil
}

func (topDocsCollector) RequiresScoring() bool { return true }

func (c topDocsCollector) Merge(fruits [][]DocAddress) ([]DocAddress, error) {
	var all []DocAddress
	for _, f := range fruits {
		all = append(all, f...)
	}
	slices.SortFunc(all, compareAddresses)
	if len(all) > c.limit {
		all = all[:c.limit]
	}
	return all, nil
}

// addressHeap is a min-heap by rank: the worst kept match is at the root.
type addressHeap []DocAddress

func (h addressHeap) Len() int           { return len(h) }
func (h addressHeap) Less(i, j int) bool { return compareAddresses(h[i], h[j]) > 0 }
func (h addressHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *addressHeap) Push(x any)        { *h = append(*h, x.(DocAddress)) }
func (h *addressHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

type segmentTopDocs struct {
	seg   int
	limit int
	h     addressHeap
}

func (c *segmentTopDocs) Collect(doc DocID, score float32) {
	a := DocAddress{Segment: c.seg, Doc: doc, Score: score}
	if len(c.h) < c.limit {
		heap.Push(&c.h, a)
		return
	}
	if compareAddresses(a, c.h[0]) < 0 {
		c.h[0] = a
		heap.Fix(&c.h, 0)
	}
}

func (c *segmentTopDocs) Harvest() []DocAddress {
	out := []DocAddress(c.h)
	slices.SortFunc(out, compareAddresses)
	return out
}

// ScoredID is a match identified by the value of its id field.
type ScoredID struct {
	Score float32
	ID    uint64
}

func compareScoredIDs(a, b ScoredID) int {
	if c := compareScores(a.Score, b.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ScoredIDs returns a collector of every match's id, read from the FAST u64
// field idField. Matches without an id are skipped. sizeHint preallocates
// the per-segment buffers.
func ScoredIDs(idField Field, sizeHint int) Collector[[]ScoredID] {
	return scoredIDsCollector{field: idField, sizeHint: max(sizeHint, 0)}
}

type scoredIDsCollector struct {
	field    Field
	sizeHint int
}

func (c scoredIDsCollector) ForSegment(r *SegmentReader) (SegmentCollector[[]ScoredID], error) {
	col, err := r.FastU64(c.field)
	if err != nil {
		return nil, err
	}
	return &segmentScoredIDs{col: col, out: make([]ScoredID, 0, min(c.sizeHint, int(r.NumDocs())))}, nil
}

func (scoredIDsCollector) RequiresScoring() bool { return true }

func (scoredIDsCollector) Merge(fruits [][]ScoredID) ([]ScoredID, error) {
	n := 0
	for _, f := range fruits {
		n += len(f)
	}
	all := make([]ScoredID, 0, n)
	for _, f := range fruits {
		all = append(all, f...)
	}
	slices.SortFunc(all, compareScoredIDs)
	return all, nil
}

type segmentScoredIDs struct {
	col FastColumn
	out []ScoredID
}

func (c *segmentScoredIDs) Collect(doc DocID, score float32) {
	if id, ok := c.col.Get(doc); ok {
		c.out = append(c.out, ScoredID{Score: score, ID: id})
	}
}

func (c *segmentScoredIDs) Harvest() []ScoredID { return c.out }

// Pair holds the fruits of two collectors run together.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Both runs two collectors in one pass.
func Both[A, B any](a Collector[A], b Collector[B]) Collector[Pair[A, B]] {
	return bothCollector[A, B]{a: a, b: b}
}

type bothCollector[A, B any] struct {
	a Collector[A]
	b Collector[B]
}

func (c bothCollector[A, B]) ForSegment(r *SegmentReader) (SegmentCollector[Pair[A, B]], error) {
	sa, err := c.a.ForSegment(r)
	if err != nil {
		return nil, err
	}
	sb, err := c.b.ForSegment(r)
	if err != nil {
		return nil, err
	}
	return &segmentBoth[A, B]{a: sa, b: sb}, nil
}

func (c bothCollector[A, B]) RequiresScoring() bool {
	return c.a.RequiresScoring() || c.b.RequiresScoring()
}

func (c bothCollector[A, B]) Merge(fruits []Pair[A, B]) (Pair[A, B], error) {
	as := make([]A, len(fruits))
	bs := make([]B, len(fruits))
	for i, f := range fruits {
		as[i], bs[i] = f.First, f.Second
	}
	a, err := c.a.Merge(as)
	if err != nil {
		return Pair[A, B]{}, err
	}
	b, err := c.b.Merge(bs)
	if err != nil {
		return Pair[A, B]{}, err
	}
	return Pair[A, B]{First: a, Second: b}, nil
}

type segmentBoth[A, B any] struct {
	a SegmentCollector[A]
	b SegmentCollector[B]
}

func (c *segmentBoth[A, B]) Collect(doc DocID, score float32) {
	c.a.Collect(doc, score)
	c.b.Collect(doc, score)
}

func (c *segmentBoth[A, B]) Harvest() Pair[A, B] {
	return Pair[A, B]{First: c.a.Harvest(), Second: c.b.Harvest()}
}
