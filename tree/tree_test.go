package tree

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "pallet.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestKey_BigEndianOrder(t *testing.T) {
	ids := []uint64{1, 255, 256, 1 << 32, 1<<64 - 1}
	for i := 1; i < len(ids); i++ {
		assert.Negative(t, compareBytes(EncodeKey(ids[i-1]), EncodeKey(ids[i])))
	}

	id, err := DecodeKey(EncodeKey(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = DecodeKey([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptKey)
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return 0
}

func TestOpen_InvalidNames(t *testing.T) {
	db := openTestDB(t)

	_, err := Open(db, "")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Open(db, IDBucket)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Open(nil, "books")
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestTree_CRUD(t *testing.T) {
	db := openTestDB(t)
	tr, err := Open(db, "books")
	require.NoError(t, err)
	assert.Equal(t, "books", tr.Name())

	_, ok, err := tr.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.Insert(1, []byte("one")))
	v, ok, err := tr.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, tr.Insert(1, []byte("uno")))
	v, _, err = tr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), v)

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, tr.Remove(1))
	require.NoError(t, tr.Remove(1))
	_, ok, err = tr.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTree_IterateAscending(t *testing.T) {
	db := openTestDB(t)
	tr, err := Open(db, "books")
	require.NoError(t, err)

	for _, id := range []uint64{300, 2, 1 << 40, 256, 1} {
		require.NoError(t, tr.Insert(id, []byte{byte(id)}))
	}

	var got []uint64
	require.NoError(t, tr.Iterate(func(id uint64, _ []byte) error {
		got = append(got, id)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 256, 300, 1 << 40}, got)

	stop := errors.New("stop")
	calls := 0
	err = tr.Iterate(func(uint64, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestTree_TransactionRollback(t *testing.T) {
	db := openTestDB(t)
	tr, err := Open(db, "books")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tr.Transaction(func(tx *Tx) error {
		id, err := tx.NextID()
		if err != nil {
			return err
		}
		if err := tx.Insert(id, []byte("x")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	last, err := tr.IDs().Last()
	require.NoError(t, err)
	assert.Zero(t, last, "rolled back transaction must not consume identifiers")
}

func TestTree_Meta(t *testing.T) {
	db := openTestDB(t)
	books, err := Open(db, "books")
	require.NoError(t, err)
	films, err := Open(db, "films")
	require.NoError(t, err)

	_, ok, err := books.Meta("codec")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := books.EnsureMeta("codec", []byte("msgpack"))
	require.NoError(t, err)
	assert.Equal(t, []byte("msgpack"), v)

	v, err = books.EnsureMeta("codec", []byte("json"))
	require.NoError(t, err)
	assert.Equal(t, []byte("msgpack"), v)

	v, err = films.EnsureMeta("codec", []byte("json"))
	require.NoError(t, err)
	assert.Equal(t, []byte("json"), v)

	n, err := books.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIDGenerator_SharedAcrossTrees(t *testing.T) {
	db := openTestDB(t)
	books, err := Open(db, "books")
	require.NoError(t, err)
	films, err := Open(db, "films")
	require.NoError(t, err)

	var ids []uint64
	for i := 0; i < 3; i++ {
		for _, tr := range []*Tree{books, films} {
			require.NoError(t, tr.Transaction(func(tx *Tx) error {
				id, err := tx.NextID()
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return tx.Insert(id, nil)
			}))
		}
	}

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, ids)

	id, err := books.IDs().NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
}

func TestTree_InsertReservesID(t *testing.T) {
	db := openTestDB(t)
	books, err := Open(db, "books")
	require.NoError(t, err)
	films, err := Open(db, "films")
	require.NoError(t, err)

	require.NoError(t, books.Insert(3, []byte("upsert")))
	require.NoError(t, books.Insert(1, []byte("below")))

	last, err := books.IDs().Last()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	require.NoError(t, films.Transaction(func(tx *Tx) error {
		id, err := tx.NextID()
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(4), id)
		return tx.Insert(id, []byte("next"))
	}))

	v, ok, err := books.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("upsert"), v)
}

func TestIDGenerator_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pallet.db")
	db, err := OpenDB(path, time.Second)
	require.NoError(t, err)
	g, err := NewIDGenerator(db)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := g.NextID()
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	db, err = OpenDB(path, time.Second)
	require.NoError(t, err)
	defer db.Close()
	g, err = NewIDGenerator(db)
	require.NoError(t, err)
	id, err := g.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id)
}

func TestTree_BatchCoalescesConcurrentWriters(t *testing.T) {
	db := openTestDB(t)
	tr, err := Open(db, "books")
	require.NoError(t, err)

	const writers = 16
	var (
		wg    sync.WaitGroup
		calls atomic.Int64
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tr.Batch(func(tx *Tx) error {
				calls.Add(1)
				id, err := tx.NextID()
				if err != nil {
					return err
				}
				return tx.Insert(id, []byte("v"))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Equal(t, writers, n)
	assert.GreaterOrEqual(t, calls.Load(), int64(writers))
}

func TestTree_BatchRerunsSurvivorsAfterFailure(t *testing.T) {
	db := openTestDB(t)
	db.MaxBatchDelay = 50 * time.Millisecond
	tr, err := Open(db, "books")
	require.NoError(t, err)

	boom := errors.New("boom")
	var (
		wg      sync.WaitGroup
		okCalls atomic.Int64
		okErr   error
		badErr  error
		start   = make(chan struct{})
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		okErr = tr.Batch(func(tx *Tx) error {
			okCalls.Add(1)
			return tx.Insert(1, []byte("ok"))
		})
	}()
	go func() {
		defer wg.Done()
		<-start
		badErr = tr.Batch(func(tx *Tx) error {
			if err := tx.Insert(2, []byte("bad")); err != nil {
				return err
			}
			return boom
		})
	}()
	close(start)
	wg.Wait()

	require.NoError(t, okErr)
	require.ErrorIs(t, badErr, boom)

	_, ok, err := tr.Get(1)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = tr.Get(2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, okCalls.Load(), int64(1))
}
