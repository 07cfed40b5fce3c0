package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// SegmentReader is a read-only view of one segment and its deletes at the
// time the owning Searcher was created.
type SegmentReader struct {
	ord     int
	seg     *segment
	deletes *roaring.Bitmap
	numDocs uint32
	schema  *Schema
}

// Ordinal returns the position of the segment within its Searcher.
func (r *SegmentReader) Ordinal() int { return r.ord }

// ID returns the segment id.
func (r *SegmentReader) ID() string { return r.seg.ID }

// MaxDoc returns one past the largest DocID in the segment.
func (r *SegmentReader) MaxDoc() uint32 { return r.seg.MaxDoc }

// NumDocs returns the number of live documents.
func (r *SegmentReader) NumDocs() uint32 { return r.numDocs }

// IsDeleted reports whether doc has been deleted.
func (r *SegmentReader) IsDeleted(doc DocID) bool {
	return r.deletes != nil && r.deletes.Contains(doc)
}

func (r *SegmentReader) alive() *roaring.Bitmap {
	bm := roaring.New()
	bm.AddRange(0, uint64(r.seg.MaxDoc))
	if r.deletes != nil {
		bm.AndNot(r.deletes)
	}
	return bm
}

// FastColumn reads per-document values of a FAST field.
type FastColumn struct {
	values  []uint64
	present *roaring.Bitmap
}

// Get returns the first value of doc, if it has one.
func (c FastColumn) Get(doc DocID) (uint64, bool) {
	if c.present == nil || !c.present.Contains(doc) || int(doc) >= len(c.values) {
		return 0, false
	}
	return c.values[doc], true
}

// FastU64 returns the column of a FAST u64 field.
func (r *SegmentReader) FastU64(f Field) (FastColumn, error) {
	if !r.schema.valid(f) {
		return FastColumn{}, schemaErrorf("unknown field ordinal %d", f)
	}
	e := r.schema.Entry(f)
	if e.Type != FieldU64 || !e.Fast {
		return FastColumn{}, schemaErrorf("field %q is not a fast u64 field", e.Name)
	}
	ni := r.seg.Numeric[f]
	if ni == nil {
		return FastColumn{}, nil
	}
	return FastColumn{values: ni.Column, present: ni.Present}, nil
}

// Searcher is a consistent, immutable snapshot of the committed index.
// It is safe for concurrent use.
type Searcher struct {
	idx        *Index
	schema     *Schema
	generation uint64
	segments   []*SegmentReader
	numDocs    uint64
	avgLen     map[Field]float32
}

func newSearcher(idx *Index, m *meta, segs []*segment, dels []*roaring.Bitmap) *Searcher {
	s := &Searcher{
		idx:        idx,
		schema:     m.Schema,
		generation: m.Generation,
		segments:   make([]*SegmentReader, len(segs)),
		avgLen:     make(map[Field]float32),
	}

	// field length statistics cover live documents, like document frequencies
	totalLen := make(map[Field]uint64)
	for i, seg := range segs {
		r := &SegmentReader{ord: i, seg: seg, deletes: dels[i], numDocs: m.Segments[i].numDocs(), schema: m.Schema}
		s.segments[i] = r
		s.numDocs += uint64(r.numDocs)
		for f, ti := range seg.Text {
			totalLen[f] += liveFieldLen(ti, dels[i])
		}
	}
	if s.numDocs > 0 {
		for f, n := range totalLen {
			s.avgLen[f] = float32(float64(n) / float64(s.numDocs))
		}
	}
	return s
}

func liveFieldLen(ti *textIndex, deletes *roaring.Bitmap) uint64 {
	n := ti.TotalLen
	if deletes == nil {
		return n
	}
	it := deletes.Iterator()
	for it.HasNext() {
		if d := it.Next(); int(d) < len(ti.FieldLens) {
			n -= uint64(ti.FieldLens[d])
		}
	}
	return n
}

// Schema returns the index schema.
func (s *Searcher) Schema() *Schema { return s.schema }

// Generation returns the commit generation the snapshot was taken from.
func (s *Searcher) Generation() uint64 { return s.generation }

// Segments returns the segment readers in ordinal order.
func (s *Searcher) Segments() []*SegmentReader { return s.segments }

// NumDocs returns the number of live documents.
func (s *Searcher) NumDocs() uint64 { return s.numDocs }

// DocFreq returns the number of live documents containing t.
func (s *Searcher) DocFreq(t Term) uint64 {
	var n uint64
	for _, r := range s.segments {
		for _, d := range r.seg.termDocs(s.schema, t) {
			if !r.IsDeleted(d) {
				n++
			}
		}
	}
	return n
}

// ReloadPolicy controls when a Reader picks up new commits.
type ReloadPolicy uint8

const (
	// ReloadOnCommit publishes every commit made through this Index.
	ReloadOnCommit ReloadPolicy = iota
	// ReloadManual publishes only on Reader.Reload.
	ReloadManual
)

func (p ReloadPolicy) String() string {
	if p == ReloadManual {
		return "manual"
	}
	return "on_commit"
}

// Reader hands out Searchers. The current Searcher is swapped atomically, so
// a search in progress keeps its snapshot.
type Reader struct {
	idx     *Index
	policy  ReloadPolicy
	mu      sync.Mutex
	current atomic.Pointer[Searcher]
}

// Searcher returns the most recently published snapshot.
func (r *Reader) Searcher() *Searcher { return r.current.Load() }

// Policy returns the reload policy.
func (r *Reader) Policy() ReloadPolicy { return r.policy }

// Reload publishes the latest commit found in the directory.
func (r *Reader) Reload(ctx context.Context) error {
	m, err := loadMeta(ctx, r.idx.dir)
	if err != nil {
		return err
	}
	return r.publish(ctx, m)
}

func (r *Reader) publish(ctx context.Context, m *meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.current.Load(); cur != nil && cur.generation > m.Generation {
		return nil
	}
	s, err := r.idx.openSearcher(ctx, m)
	if err != nil {
		return fmt.Errorf("open generation %d: %w", m.Generation, err)
	}
	r.current.Store(s)
	return nil
}
