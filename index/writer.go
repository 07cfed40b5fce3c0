package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/resource"
)

// MinWriterMemoryBudget is the smallest accepted writer memory budget.
const MinWriterMemoryBudget = 4096

const writerLock = "writer"

// Writer adds and deletes documents. Changes become visible to new
// Searchers only after Commit. There is at most one Writer per Index, and
// per directory when the directory implements blobstore.Locker.
//
// Every operation is stamped with an increasing opstamp. A delete applies to
// documents added with a smaller opstamp only.
type Writer struct {
	idx     *Index
	mem     *resource.Controller
	release func()

	mu      sync.Mutex
	base    *meta
	opstamp uint64
	buffer  *segmentBuilder
	bufOps  []uint64
	bufMem  int64
	flushed []*flushedSegment
	dels    []pendingDelete
	closed  bool
}

// flushedSegment is a sealed but uncommitted buffer.
type flushedSegment struct {
	seg *segment
	ops []uint64 // opstamp of each document
}

type pendingDelete struct {
	term    Term
	all     bool
	opstamp uint64
}

// Writer acquires the writer, waiting while another goroutine of this
// process holds it. memoryBudget bounds the documents buffered in memory
// between flushes.
func (idx *Index) Writer(ctx context.Context, memoryBudget int64) (*Writer, error) {
	if memoryBudget < MinWriterMemoryBudget {
		return nil, fmt.Errorf("%w: writer memory budget %d below %d", ErrInvalidArgument, memoryBudget, MinWriterMemoryBudget)
	}
	if err := idx.writerSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return idx.newWriter(ctx, memoryBudget)
}

// TryWriter is like Writer but returns ErrWriterBusy instead of waiting.
func (idx *Index) TryWriter(ctx context.Context, memoryBudget int64) (*Writer, error) {
	if memoryBudget < MinWriterMemoryBudget {
		return nil, fmt.Errorf("%w: writer memory budget %d below %d", ErrInvalidArgument, memoryBudget, MinWriterMemoryBudget)
	}
	if !idx.writerSem.TryAcquire(1) {
		return nil, ErrWriterBusy
	}
	return idx.newWriter(ctx, memoryBudget)
}

// newWriter is called with writerSem held and releases it on failure.
func (idx *Index) newWriter(ctx context.Context, memoryBudget int64) (*Writer, error) {
	if idx.closed.Load() {
		idx.writerSem.Release(1)
		return nil, ErrClosed
	}

	unlockDir := func() error { return nil }
	if l, ok := idx.dir.(blobstore.Locker); ok {
		unlock, err := l.TryLock(writerLock)
		if err != nil {
			idx.writerSem.Release(1)
			if errors.Is(err, blobstore.ErrLocked) {
				return nil, ErrWriterBusy
			}
			return nil, fmt.Errorf("lock index directory: %w", err)
		}
		unlockDir = unlock
	}

	// another process may have committed since this index was opened
	m, err := loadMeta(ctx, idx.dir)
	if err != nil {
		_ = unlockDir()
		idx.writerSem.Release(1)
		return nil, err
	}

	w := &Writer{
		idx:     idx,
		mem:     resource.NewController(resource.Config{MemoryLimitBytes: memoryBudget}),
		base:    m,
		opstamp: m.Opstamp,
		buffer:  newSegmentBuilder(idx.schema),
	}
	w.release = func() {
		if err := unlockDir(); err != nil {
			idx.log.Warn("index writer: unlock failed", "error", err)
		}
		idx.writerSem.Release(1)
	}
	return w, nil
}

// Opstamp returns the opstamp of the latest operation.
func (w *Writer) Opstamp() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opstamp
}

// MemoryUsage returns the bytes held by buffered documents.
func (w *Writer) MemoryUsage() int64 { return w.mem.MemoryUsage() }

// AddDocument buffers doc and returns its opstamp.
func (w *Writer) AddDocument(doc *Document) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	if err := doc.validate(w.idx.schema); err != nil {
		return 0, err
	}

	size := doc.memSize()
	if !w.mem.TryAcquireMemory(size) {
		w.seal()
		if !w.mem.TryAcquireMemory(size) {
			return 0, fmt.Errorf("%w: document of %d bytes exceeds the writer memory budget", ErrInvalidArgument, size)
		}
	}
	w.bufMem += size

	w.opstamp++
	w.buffer.add(doc)
	w.bufOps = append(w.bufOps, w.opstamp)
	return w.opstamp, nil
}

// DeleteTerm deletes every document containing t that was added before this
// call.
func (w *Writer) DeleteTerm(t Term) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opstamp++
	w.dels = append(w.dels, pendingDelete{term: t, opstamp: w.opstamp})
	return w.opstamp
}

// DeleteAllDocuments deletes every document added before this call.
func (w *Writer) DeleteAllDocuments() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opstamp++
	w.dels = append(w.dels, pendingDelete{all: true, opstamp: w.opstamp})
	return w.opstamp
}

// seal turns the buffer into a flushed segment.
func (w *Writer) seal() {
	if w.buffer.maxDoc == 0 {
		return
	}
	w.flushed = append(w.flushed, &flushedSegment{seg: w.buffer.build(uuid.NewString()), ops: w.bufOps})
	w.buffer = newSegmentBuilder(w.idx.schema)
	w.bufOps = nil
	w.mem.ReleaseMemory(w.bufMem)
	w.bufMem = 0
}

// Rollback discards every operation since the last commit.
func (w *Writer) Rollback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discard()
}

func (w *Writer) discard() {
	w.buffer = newSegmentBuilder(w.idx.schema)
	w.bufOps = nil
	w.mem.ReleaseMemory(w.bufMem)
	w.bufMem = 0
	w.flushed = nil
	w.dels = nil
	w.opstamp = w.base.Opstamp
}

// Close discards pending operations and releases the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.discard()
	w.closed = true
	w.release()
	return nil
}

// Commit persists every pending operation and returns the opstamp of the
// last one. On error the committed state is unchanged and the pending
// operations are kept.
func (w *Writer) Commit(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	if w.idx.closed.Load() {
		return 0, ErrClosed
	}

	w.seal()
	if len(w.flushed) == 0 && len(w.dels) == 0 {
		return w.opstamp, nil
	}

	start := time.Now()
	next, err := w.prepare(ctx)
	if err != nil {
		return 0, err
	}
	if err := w.persist(ctx, next); err != nil {
		return 0, err
	}

	w.base = next.meta
	w.flushed = nil
	w.dels = nil
	for id, seg := range next.newSegments {
		w.idx.segments.Store(id, seg)
	}
	for name, bm := range next.newDeletes {
		w.idx.deletes.Store(name, bm)
	}

	if w.idx.reader.policy == ReloadOnCommit {
		if err := w.idx.reader.publish(ctx, next.meta); err != nil {
			w.idx.log.Warn("index commit: reader reload failed", "generation", next.meta.Generation, "error", err)
		}
	}
	w.idx.collectGarbage(ctx, next.meta)

	w.idx.log.Debug("index commit",
		"generation", next.meta.Generation,
		"opstamp", w.opstamp,
		"segments", len(next.meta.Segments),
		"duration", time.Since(start))
	return w.opstamp, nil
}

// commitPlan is the state a commit is about to persist.
type commitPlan struct {
	meta        *meta
	newSegments map[string]*segment
	newDeletes  map[string]*roaring.Bitmap
	encoded     map[string][]byte
}

type liveSegment struct {
	meta    segmentMeta
	seg     *segment
	deletes *roaring.Bitmap
	dirty   bool
}

func (w *Writer) prepare(ctx context.Context) (*commitPlan, error) {
	idx := w.idx
	gen := w.base.Generation + 1

	committed := make([]*liveSegment, len(w.base.Segments))
	for i, sm := range w.base.Segments {
		seg, err := idx.loadSegment(ctx, sm.ID)
		if err != nil {
			return nil, err
		}
		ls := &liveSegment{meta: sm, seg: seg}
		if sm.DelGen > 0 {
			bm, err := idx.loadDeletes(ctx, sm.ID, sm.DelGen)
			if err != nil {
				return nil, err
			}
			ls.deletes = bm
		}
		committed[i] = ls
	}

	flushedDels := make([]*roaring.Bitmap, len(w.flushed))
	for i := range w.flushed {
		flushedDels[i] = roaring.New()
	}

	for _, d := range w.dels {
		for _, ls := range committed {
			var docs []DocID
			if d.all {
				docs = allDocs(ls.seg.MaxDoc)
			} else {
				docs = ls.seg.termDocs(idx.schema, d.term)
			}
			for _, doc := range docs {
				if ls.deletes != nil && ls.deletes.Contains(doc) {
					continue
				}
				if !ls.dirty {
					ls.deletes = cloneOrNew(ls.deletes)
					ls.dirty = true
				}
				ls.deletes.Add(doc)
			}
		}
		for i, fs := range w.flushed {
			var docs []DocID
			if d.all {
				docs = allDocs(fs.seg.MaxDoc)
			} else {
				docs = fs.seg.termDocs(idx.schema, d.term)
			}
			for _, doc := range docs {
				if fs.ops[doc] < d.opstamp {
					flushedDels[i].Add(doc)
				}
			}
		}
	}

	plan := &commitPlan{
		newSegments: make(map[string]*segment),
		newDeletes:  make(map[string]*roaring.Bitmap),
		encoded:     make(map[string][]byte),
	}

	var live []*liveSegment
	for _, ls := range committed {
		ls.meta.NumDeleted = uint32(cardinality(ls.deletes))
		if ls.meta.numDocs() == 0 {
			continue
		}
		live = append(live, ls)
	}

	if len(w.flushed) > 0 {
		inputs := make([]mergeInput, len(w.flushed))
		for i, fs := range w.flushed {
			inputs[i] = mergeInput{seg: fs.seg, deletes: flushedDels[i]}
		}
		seg := mergeSegments(idx.schema, uuid.NewString(), inputs)
		if seg.MaxDoc > 0 {
			live = append(live, &liveSegment{meta: segmentMeta{ID: seg.ID, MaxDoc: seg.MaxDoc}, seg: seg})
			plan.newSegments[seg.ID] = seg
		}
	}

	live = w.mergeIfNeeded(live, plan)

	m := &meta{
		Generation:  gen,
		Opstamp:     w.opstamp,
		Schema:      idx.schema,
		Compression: idx.settings.Compression,
	}
	for _, ls := range live {
		if ls.dirty && ls.deletes != nil && !ls.deletes.IsEmpty() {
			ls.meta.DelGen = gen
			name := deletesBlob(ls.meta.ID, gen)
			data, err := encodeDeletes(ls.deletes)
			if err != nil {
				return nil, err
			}
			plan.encoded[name] = data
			plan.newDeletes[name] = ls.deletes
		}
		m.Segments = append(m.Segments, ls.meta)
	}
	for id, seg := range plan.newSegments {
		data, err := encodeSegment(seg, idx.settings.Compression)
		if err != nil {
			return nil, err
		}
		plan.encoded[segmentBlob(id)] = data
	}
	plan.meta = m
	return plan, nil
}

// mergeIfNeeded merges the smallest segments until at most MergeFactor
// remain.
func (w *Writer) mergeIfNeeded(live []*liveSegment, plan *commitPlan) []*liveSegment {
	factor := w.idx.settings.MergeFactor
	if factor < 0 || len(live) <= factor {
		return live
	}
	factor = max(factor, 1)

	n := len(live) - factor + 1
	bySize := slices.Clone(live)
	slices.SortStableFunc(bySize, func(a, b *liveSegment) int {
		return int(a.meta.numDocs()) - int(b.meta.numDocs())
	})
	victims := bySize[:n]

	var (
		inputs []mergeInput
		kept   []*liveSegment
	)
	for _, ls := range live {
		if slices.Contains(victims, ls) {
			inputs = append(inputs, mergeInput{seg: ls.seg, deletes: ls.deletes})
			delete(plan.newSegments, ls.meta.ID)
			continue
		}
		kept = append(kept, ls)
	}

	seg := mergeSegments(w.idx.schema, uuid.NewString(), inputs)
	plan.newSegments[seg.ID] = seg
	w.idx.log.Debug("index merge", "segments", len(inputs), "docs", seg.MaxDoc)
	return append(kept, &liveSegment{meta: segmentMeta{ID: seg.ID, MaxDoc: seg.MaxDoc}, seg: seg})
}

func (w *Writer) persist(ctx context.Context, plan *commitPlan) error {
	names := make([]string, 0, len(plan.encoded))
	for name := range plan.encoded {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		data := plan.encoded[name]
		if err := w.idx.io.AcquireIO(ctx, len(data)); err != nil {
			return err
		}
		if err := w.idx.dir.Put(ctx, name, data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return saveMeta(ctx, w.idx.dir, plan.meta)
}

func allDocs(maxDoc uint32) []DocID {
	docs := make([]DocID, maxDoc)
	for i := range docs {
		docs[i] = DocID(i)
	}
	return docs
}

func cloneOrNew(bm *roaring.Bitmap) *roaring.Bitmap {
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}

func cardinality(bm *roaring.Bitmap) uint64 {
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}
