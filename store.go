package pallet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/codec"
	"github.com/hupe1980/pallet/index"
	"github.com/hupe1980/pallet/tree"
)

const codecMetaKey = "codec"

// Store keeps records of type T in a tree and their projections in a search
// index. Every write changes both or neither.
//
// A Store is safe for concurrent use.
type Store[T any] struct {
	tree     *tree.Tree
	idx      *index.Index
	mapping  Mapping[T]
	fields   index.Fields
	idField  index.Field
	defaults []index.Field

	codec   codec.Codec
	writer  WriterAccessor
	batch   bool
	fetchN  int
	logger  *Logger
	metrics MetricsCollector

	closed atomic.Bool
}

// Open opens the store of a DocumentLike record type.
func Open[T DocumentLike](ctx context.Context, cfg Config) (*Store[T], error) {
	return OpenMapping(ctx, cfg, MappingOf[T]())
}

// OpenMapping opens a store whose index projection is described by m.
//
// The record tree and the index are created when missing. Opening an index
// created with a different schema fails with ErrSearchEngine, and opening a
// tree written with another codec fails with ErrSerialization.
func OpenMapping[T any](ctx context.Context, cfg Config, m Mapping[T]) (*Store[T], error) {
	if cfg.TreeName == "" {
		cfg.TreeName = m.TreeName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger.WithTree(cfg.TreeName)

	s, err := openStore(ctx, cfg, m)
	if err != nil {
		logger.LogOpen(ctx, 0, 0, err)
		return nil, err
	}
	s.logger = logger

	n, err := s.tree.Len()
	if err != nil {
		_ = s.idx.Close()
		err = wrap(ErrStorage, err)
		logger.LogOpen(ctx, 0, 0, err)
		return nil, err
	}
	logger.LogOpen(ctx, n, s.idx.Reader().Searcher().Generation(), nil)
	return s, nil
}

func openStore[T any](ctx context.Context, cfg Config, m Mapping[T]) (*Store[T], error) {
	t, err := tree.Open(cfg.DB, cfg.TreeName)
	if err != nil {
		return nil, wrap(ErrStorage, err)
	}
	stored, err := t.EnsureMeta(codecMetaKey, []byte(cfg.Codec.Name()))
	if err != nil {
		return nil, wrap(ErrStorage, err)
	}
	if string(stored) != cfg.Codec.Name() {
		return nil, fmt.Errorf("%w: tree %q is encoded with codec %q, not %q", ErrSerialization, cfg.TreeName, stored, cfg.Codec.Name())
	}

	b := index.NewSchemaBuilder()
	fields, err := m.IndexFields(b)
	if err != nil {
		return nil, wrap(ErrSearchEngine, err)
	}
	if _, taken := b.Lookup(cfg.IDFieldName); taken {
		return nil, fmt.Errorf("%w: field %q collides with the id field", ErrSearchEngine, cfg.IDFieldName)
	}
	idField := b.AddU64Field(cfg.IDFieldName, index.INDEXED|index.FAST)
	schema, err := b.Build()
	if err != nil {
		return nil, wrap(ErrSearchEngine, err)
	}

	dir := cfg.Directory
	if dir == nil {
		if dir, err = blobstore.NewLocalStore(cfg.IndexDir); err != nil {
			return nil, wrap(ErrSearchEngine, err)
		}
	}

	idx, err := index.OpenOrCreate(ctx, dir, schema, cfg.IndexSettings)
	if err != nil {
		return nil, translateError(err)
	}
	if err := cfg.IndexConfiguration(idx); err != nil {
		_ = idx.Close()
		return nil, wrap(ErrSearchEngine, err)
	}

	return &Store[T]{
		tree:     t,
		idx:      idx,
		mapping:  m,
		fields:   fields,
		idField:  idField,
		defaults: m.DefaultSearchFields(fields),
		codec:    cfg.Codec,
		writer:   cfg.WriterAccessor,
		batch:    cfg.BatchWrites,
		fetchN:   cfg.FetchConcurrency,
		metrics:  cfg.Metrics,
	}, nil
}

// Tree returns the record tree.
func (s *Store[T]) Tree() *tree.Tree { return s.tree }

// Index returns the search index.
func (s *Store[T]) Index() *index.Index { return s.idx }

// IDField returns the index field holding record identifiers.
func (s *Store[T]) IDField() index.Field { return s.idField }

// Fields returns the fields declared by the record mapping.
func (s *Store[T]) Fields() index.Fields { return s.fields }

// DefaultSearchFields returns the fields searched by unqualified terms.
func (s *Store[T]) DefaultSearchFields() []index.Field { return s.defaults }

// Close closes the search index. The database is owned by the caller and
// stays open. Closing twice is a no-op.
func (s *Store[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.idx.Close(); err != nil {
		return translateError(err)
	}
	s.logger.Debug("store closed")
	return nil
}

func (s *Store[T]) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Create stores rec under a new identifier, indexes it and returns the
// identifier.
func (s *Store[T]) Create(ctx context.Context, rec T) (uint64, error) {
	ids, err := s.CreateMulti(ctx, []T{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateMulti stores and indexes recs in one transaction. The identifiers are
// assigned in slice order and increase.
func (s *Store[T]) CreateMulti(ctx context.Context, recs []T) ([]uint64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []uint64{}, nil
	}

	start := time.Now()
	var ids []uint64
	err := s.write(ctx, func(tx *tree.Tx, w *index.Writer) error {
		ids = make([]uint64, 0, len(recs))
		for _, rec := range recs {
			id, err := tx.NextID()
			if err != nil {
				return wrap(ErrStorage, err)
			}
			if err := s.put(tx, w, Document[T]{ID: id, Inner: rec}); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	s.metrics.RecordCreate(len(recs), time.Since(start), err)
	s.logger.LogCreate(ctx, ids, err)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Find returns the record stored under id.
func (s *Store[T]) Find(ctx context.Context, id uint64) (Document[T], bool, error) {
	if err := s.checkOpen(); err != nil {
		return Document[T]{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Document[T]{}, false, err
	}
	return s.find(id)
}

func (s *Store[T]) find(id uint64) (Document[T], bool, error) {
	raw, ok, err := s.tree.Get(id)
	if err != nil {
		return Document[T]{}, false, wrap(ErrStorage, err)
	}
	if !ok {
		return Document[T]{}, false, nil
	}
	rec, err := s.decode(raw)
	if err != nil {
		return Document[T]{}, false, err
	}
	return Document[T]{ID: id, Inner: rec}, true, nil
}

// All returns every record in ascending identifier order.
func (s *Store[T]) All(ctx context.Context) ([]Document[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var docs []Document[T]
	err := s.tree.Iterate(func(id uint64, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := s.decode(raw)
		if err != nil {
			return err
		}
		docs = append(docs, Document[T]{ID: id, Inner: rec})
		return nil
	})
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, wrap(ErrStorage, err)
	}
	return docs, nil
}

// Len returns the number of stored records.
func (s *Store[T]) Len() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, err := s.tree.Len()
	return n, wrap(ErrStorage, err)
}

// Update replaces the record stored under doc.ID and its projection. A
// missing identifier is inserted.
func (s *Store[T]) Update(ctx context.Context, doc Document[T]) error {
	return s.UpdateMulti(ctx, []Document[T]{doc})
}

// UpdateMulti applies Update to every document in one transaction.
func (s *Store[T]) UpdateMulti(ctx context.Context, docs []Document[T]) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	err := s.write(ctx, func(tx *tree.Tx, w *index.Writer) error {
		for _, doc := range docs {
			if err := s.put(tx, w, doc); err != nil {
				return err
			}
		}
		return nil
	})
	ids := make([]uint64, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	s.metrics.RecordUpdate(len(docs), time.Since(start), err)
	s.logger.LogUpdate(ctx, ids, err)
	return err
}

// Delete removes the record stored under id and its projection. Deleting a
// missing identifier is not an error.
func (s *Store[T]) Delete(ctx context.Context, id uint64) error {
	return s.DeleteMulti(ctx, []uint64{id})
}

// DeleteMulti removes every identifier in one transaction.
func (s *Store[T]) DeleteMulti(ctx context.Context, ids []uint64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	err := s.write(ctx, func(tx *tree.Tx, w *index.Writer) error {
		for _, id := range ids {
			if err := tx.Remove(id); err != nil {
				return wrap(ErrStorage, err)
			}
			w.DeleteTerm(index.U64Term(s.idField, id))
		}
		return nil
	})
	s.metrics.RecordDelete(len(ids), time.Since(start), err)
	s.logger.LogDelete(ctx, ids, err)
	return err
}

// write runs fn in a tree transaction with a fresh index writer and commits
// the index as the last step of the transaction. A failed index commit rolls
// the tree transaction back.
//
// In batch mode fn may run more than once. Every run starts with an empty
// writer and replaces projections by id, so reruns converge.
func (s *Store[T]) write(ctx context.Context, fn func(tx *tree.Tx, w *index.Writer) error) error {
	run := func(tx *tree.Tx) error {
		w, err := s.writer(ctx, s.idx)
		if err != nil {
			return translateError(err)
		}
		defer w.Close()
		w.Rollback()

		if err := fn(tx, w); err != nil {
			return err
		}
		if _, err := w.Commit(ctx); err != nil {
			return translateError(err)
		}
		return nil
	}

	var err error
	if s.batch {
		err = s.tree.Batch(run)
	} else {
		err = s.tree.Transaction(run)
	}
	if err != nil && !hasKind(err) && !isContextErr(err) {
		err = wrap(ErrStorage, err)
	}
	return err
}

// put stores doc and replaces its projection.
func (s *Store[T]) put(tx *tree.Tx, w *index.Writer, doc Document[T]) error {
	raw, err := s.codec.Marshal(doc.Inner)
	if err != nil {
		return wrap(ErrSerialization, err)
	}
	proj, err := s.project(doc)
	if err != nil {
		return err
	}
	if err := tx.Insert(doc.ID, raw); err != nil {
		return wrap(ErrStorage, err)
	}
	w.DeleteTerm(index.U64Term(s.idField, doc.ID))
	if _, err := w.AddDocument(proj); err != nil {
		return translateError(err)
	}
	return nil
}

// project builds the index document of doc, stamped with its identifier.
func (s *Store[T]) project(doc Document[T]) (*index.Document, error) {
	proj, err := s.mapping.IndexDocument(doc.Inner, s.fields)
	if err != nil {
		return nil, wrap(ErrSearchEngine, err)
	}
	if proj == nil {
		proj = index.NewDocument()
	}
	return proj.Set(s.idField, index.U64(doc.ID)), nil
}

func (s *Store[T]) decode(raw []byte) (T, error) {
	var rec T
	if err := s.codec.Unmarshal(raw, &rec); err != nil {
		return rec, wrap(ErrSerialization, err)
	}
	return rec, nil
}

// IndexAll rebuilds the projection of every record and removes index entries
// whose record no longer exists. Concurrent writes wait until it finishes.
func (s *Store[T]) IndexAll(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	indexed, purged, err := s.indexAll(ctx)
	s.metrics.RecordReindex(indexed, time.Since(start), err)
	s.logger.LogReindex(ctx, indexed, purged, time.Since(start), err)
	return err
}

func (s *Store[T]) indexAll(ctx context.Context) (int, int, error) {
	w, err := s.writer(ctx, s.idx)
	if err != nil {
		return 0, 0, translateError(err)
	}
	defer w.Close()
	w.Rollback()

	seen := roaring64.New()
	err = s.tree.View(func(tx *tree.Tx) error {
		return tx.Iterate(func(id uint64, raw []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.decode(raw)
			if err != nil {
				return err
			}
			proj, err := s.project(Document[T]{ID: id, Inner: rec})
			if err != nil {
				return err
			}
			w.DeleteTerm(index.U64Term(s.idField, id))
			if _, err := w.AddDocument(proj); err != nil {
				return translateError(err)
			}
			seen.Add(id)
			return nil
		})
	})
	if err != nil {
		if isContextErr(err) {
			return 0, 0, err
		}
		return 0, 0, wrap(ErrStorage, err)
	}

	indexed := int(seen.GetCardinality())
	hits, err := index.Search(ctx, s.idx.Reader().Searcher(), index.NewAllQuery(), index.ScoredIDs(s.idField, indexed))
	if err != nil {
		return indexed, 0, translateError(err)
	}
	purged := 0
	for _, h := range hits {
		if !seen.Contains(h.ID) {
			w.DeleteTerm(index.U64Term(s.idField, h.ID))
			purged++
		}
	}

	if _, err := w.Commit(ctx); err != nil {
		return indexed, purged, translateError(err)
	}
	return indexed, purged, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
