package pallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/index"
	"github.com/hupe1980/pallet/testutil"
)

func TestConfigValidate(t *testing.T) {
	db := testutil.NewDB(t)

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"MissingDB", Config{IndexDir: "x", TreeName: "t"}, "db"},
		{"MissingIndexDir", Config{DB: db, TreeName: "t"}, "index_dir"},
		{"MissingTreeName", Config{DB: db, IndexDir: "x"}, "tree_name"},
		{"DBCheckedFirst", Config{}, "db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.ErrorIs(t, err, ErrConfiguration)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, "`"+tt.field+"` not set", ce.Error())
		})
	}

	assert.NoError(t, Config{DB: db, Directory: blobstore.NewMemoryStore(), TreeName: "t"}.Validate())
}

func TestOpenConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("TreeNameFromRecordType", func(t *testing.T) {
		s := newTestStore(t)
		assert.Equal(t, "books", s.Tree().Name())
	})

	t.Run("ConfigTreeNameWins", func(t *testing.T) {
		s := newTestStore(t, func(c *Config) { c.TreeName = "library" })
		assert.Equal(t, "library", s.Tree().Name())
	})

	t.Run("MissingTreeName", func(t *testing.T) {
		m := MappingOf[Book]()
		m.TreeName = ""
		_, err := OpenMapping(ctx, Config{DB: testutil.NewDB(t), IndexDir: t.TempDir()}, m)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "tree_name", ce.Field)
	})

	t.Run("IncompleteMapping", func(t *testing.T) {
		m := MappingOf[Book]()
		m.IndexDocument = nil
		_, err := OpenMapping(ctx, Config{DB: testutil.NewDB(t), IndexDir: t.TempDir()}, m)
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("ReservedTreeName", func(t *testing.T) {
		s, err := Open[Book](ctx, Config{DB: testutil.NewDB(t), IndexDir: t.TempDir(), TreeName: "__pallet_x"})
		require.ErrorIs(t, err, ErrStorage)
		assert.Nil(t, s)
	})

	t.Run("CustomIDField", func(t *testing.T) {
		s := newTestStore(t, func(c *Config) { c.IDFieldName = "book_id" })
		assert.Equal(t, "book_id", s.Index().Schema().Name(s.IDField()))

		id, err := s.Create(ctx, Book{Title: "forest"})
		require.NoError(t, err)
		res, err := s.SearchString(ctx, fmt.Sprintf("book_id:%d", id))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
	})

	t.Run("IndexConfiguration", func(t *testing.T) {
		called := false
		s := newTestStore(t, func(c *Config) {
			c.IndexConfiguration = func(idx *index.Index) error {
				called = true
				idx.SetSingleThreadExecutor()
				return nil
			}
		})
		assert.True(t, called)
		_, err := s.Create(ctx, Book{Title: "stone"})
		require.NoError(t, err)
	})

	t.Run("WriterAccessor", func(t *testing.T) {
		calls := 0
		s := newTestStore(t, func(c *Config) {
			c.WriterAccessor = func(ctx context.Context, idx *index.Index) (*index.Writer, error) {
				calls++
				return idx.TryWriter(ctx, index.MinWriterMemoryBudget)
			}
		})
		_, err := s.CreateMulti(ctx, testutil.NewRNG(5).Books(40))
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		res, err := s.Search(ctx, Structured(index.NewAllQuery()))
		require.NoError(t, err)
		assert.Equal(t, 40, res.Count)
	})

	t.Run("WriterBusy", func(t *testing.T) {
		s := newTestStore(t, func(c *Config) {
			c.WriterAccessor = func(ctx context.Context, idx *index.Index) (*index.Writer, error) {
				return idx.TryWriter(ctx, DefaultWriterMemoryBudget)
			}
		})
		w, err := s.Index().Writer(ctx, DefaultWriterMemoryBudget)
		require.NoError(t, err)
		defer w.Close()

		_, err = s.Create(ctx, Book{Title: "road"})
		require.ErrorIs(t, err, ErrSearchEngine)
		assert.ErrorIs(t, err, index.ErrWriterBusy)

		n, err := s.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
