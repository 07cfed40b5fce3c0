package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/resource"
)

// DefaultMergeFactor is the number of committed segments above which a
// commit merges segments.
const DefaultMergeFactor = 8

// Settings tune an Index. The zero value is usable.
type Settings struct {
	// Compression of new segment blobs. Defaults to ZSTD.
	Compression Compression
	// MergeFactor caps the number of segments after a commit.
	// 0 means DefaultMergeFactor, a negative value disables merging.
	MergeFactor int
	// ReloadPolicy controls when the shared Reader sees new commits.
	ReloadPolicy ReloadPolicy
	// IOLimitBytesPerSec throttles blob uploads during commit. 0 is unlimited.
	IOLimitBytesPerSec int64
	// Logger receives commit and garbage collection events.
	Logger *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.MergeFactor == 0 {
		s.MergeFactor = DefaultMergeFactor
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	s.Compression = s.Compression.resolve()
	return s
}

// Index is a search index stored in a blobstore.Store. It hands out one
// Writer at a time and any number of Searchers.
type Index struct {
	dir      blobstore.Store
	schema   *Schema
	settings Settings
	log      *slog.Logger

	io      *resource.Controller
	workers atomic.Pointer[resource.Controller]

	segments *xsync.MapOf[string, *segment]
	deletes  *xsync.MapOf[string, *roaring.Bitmap]

	writerSem *semaphore.Weighted // one writer at a time
	reader    *Reader
	closed    atomic.Bool
}

// Create initializes an empty index in dir.
func Create(ctx context.Context, dir blobstore.Store, schema *Schema, settings Settings) (*Index, error) {
	if schema == nil || schema.NumFields() == 0 {
		return nil, schemaErrorf("empty schema")
	}
	if _, err := loadMeta(ctx, dir); err == nil {
		return nil, ErrIndexExists
	} else if !errors.Is(err, ErrIndexNotFound) {
		return nil, err
	}

	settings = settings.withDefaults()
	m := &meta{Schema: schema, Compression: settings.Compression}
	if err := saveMeta(ctx, dir, m); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return open(ctx, dir, m, settings)
}

// Open opens the index in dir.
func Open(ctx context.Context, dir blobstore.Store, settings Settings) (*Index, error) {
	m, err := loadMeta(ctx, dir)
	if err != nil {
		return nil, err
	}
	return open(ctx, dir, m, settings.withDefaults())
}

// OpenOrCreate opens the index in dir, creating it with schema if the
// directory is empty. An existing index must have been created with an
// equal schema.
func OpenOrCreate(ctx context.Context, dir blobstore.Store, schema *Schema, settings Settings) (*Index, error) {
	idx, err := Open(ctx, dir, settings)
	if errors.Is(err, ErrIndexNotFound) {
		return Create(ctx, dir, schema, settings)
	}
	if err != nil {
		return nil, err
	}
	if !idx.schema.Equal(schema) {
		_ = idx.Close()
		return nil, ErrSchemaMismatch
	}
	return idx, nil
}

func open(ctx context.Context, dir blobstore.Store, m *meta, settings Settings) (*Index, error) {
	idx := &Index{
		dir:      dir,
		schema:   m.Schema,
		settings: settings,
		log:      settings.Logger,
		io:       resource.NewController(resource.Config{IOLimitBytesPerSec: settings.IOLimitBytesPerSec}),
		segments: xsync.NewMapOf[string, *segment](),
		deletes:  xsync.NewMapOf[string, *roaring.Bitmap](),

		writerSem: semaphore.NewWeighted(1),
	}
	idx.reader = &Reader{idx: idx, policy: settings.ReloadPolicy}
	if err := idx.reader.publish(ctx, m); err != nil {
		return nil, err
	}
	idx.log.Debug("index opened",
		"generation", m.Generation,
		"segments", len(m.Segments),
		"compression", settings.Compression.String())
	return idx, nil
}

// Schema returns the index schema.
func (idx *Index) Schema() *Schema { return idx.schema }

// Settings returns the effective settings.
func (idx *Index) Settings() Settings { return idx.settings }

// Directory returns the store holding the index.
func (idx *Index) Directory() blobstore.Store { return idx.dir }

// Reader returns the shared reader.
func (idx *Index) Reader() *Reader { return idx.reader }

// QueryParser returns a parser searching defaultFields for unqualified
// terms.
func (idx *Index) QueryParser(defaultFields []Field) *QueryParser {
	return NewQueryParser(idx.schema, defaultFields)
}

// Close releases the index. Searchers already handed out stay usable.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return nil
	}
	idx.segments.Clear()
	idx.deletes.Clear()
	return nil
}

func (idx *Index) openSearcher(ctx context.Context, m *meta) (*Searcher, error) {
	segs := make([]*segment, len(m.Segments))
	dels := make([]*roaring.Bitmap, len(m.Segments))
	for i, sm := range m.Segments {
		seg, err := idx.loadSegment(ctx, sm.ID)
		if err != nil {
			return nil, err
		}
		segs[i] = seg
		if sm.DelGen > 0 {
			if dels[i], err = idx.loadDeletes(ctx, sm.ID, sm.DelGen); err != nil {
				return nil, err
			}
		}
	}
	return newSearcher(idx, m, segs, dels), nil
}

func (idx *Index) loadSegment(ctx context.Context, id string) (*segment, error) {
	if seg, ok := idx.segments.Load(id); ok {
		return seg, nil
	}
	data, err := blobstore.ReadAll(ctx, idx.dir, segmentBlob(id))
	if err != nil {
		return nil, err
	}
	seg, err := decodeSegment(data)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", id, err)
	}
	seg, _ = idx.segments.LoadOrStore(id, seg)
	return seg, nil
}

func (idx *Index) loadDeletes(ctx context.Context, id string, gen uint64) (*roaring.Bitmap, error) {
	name := deletesBlob(id, gen)
	if bm, ok := idx.deletes.Load(name); ok {
		return bm, nil
	}
	data, err := blobstore.ReadAll(ctx, idx.dir, name)
	if err != nil {
		return nil, err
	}
	bm, err := decodeDeletes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	bm, _ = idx.deletes.LoadOrStore(name, bm)
	return bm, nil
}

// collectGarbage deletes index blobs m does not reference.
func (idx *Index) collectGarbage(ctx context.Context, m *meta) {
	names, err := idx.dir.List(ctx, "")
	if err != nil {
		idx.log.Warn("index gc: list failed", "error", err)
		return
	}
	refs := m.referencedBlobs()
	removed := 0
	for _, name := range names {
		if _, ok := refs[name]; ok || !isIndexBlob(name) {
			continue
		}
		if err := idx.dir.Delete(ctx, name); err != nil {
			idx.log.Warn("index gc: delete failed", "blob", name, "error", err)
			continue
		}
		idx.segments.Delete(trimSegmentSuffix(name))
		idx.deletes.Delete(name)
		removed++
	}
	if removed > 0 {
		idx.log.Debug("index gc", "generation", m.Generation, "removed", removed)
	}
}

func trimSegmentSuffix(name string) string {
	if len(name) > 4 && name[len(name)-4:] == ".seg" {
		return name[:len(name)-4]
	}
	return name
}
