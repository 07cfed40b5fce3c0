package tree

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ReservedPrefix marks bucket names that belong to the store itself.
const ReservedPrefix = "__pallet"

// OpenDB opens (or creates) a bbolt database file.
//
// timeout bounds how long Open waits for the file lock held by another
// process; zero waits forever.
func OpenDB(path string, timeout time.Duration) (*bolt.DB, error) {
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
}

// Tree is a named ordered namespace of records.
// It is safe for concurrent use.
type Tree struct {
	db   *bolt.DB
	name []byte
	ids  *IDGenerator
}

// Open returns the tree called name, creating its bucket if necessary.
func Open(db *bolt.DB, name string) (*Tree, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	ids, err := NewIDGenerator(db)
	if err != nil {
		return nil, err
	}

	t := &Tree{db: db, name: []byte(name), ids: ids}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(t.name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create tree %q: %w", name, err)
	}
	return t, nil
}

// ValidateName reports whether name may be used for a tree.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.HasPrefix(name, ReservedPrefix) {
		return fmt.Errorf("%w: %q uses reserved prefix %q", ErrInvalidName, name, ReservedPrefix)
	}
	return nil
}

// Name returns the tree name.
func (t *Tree) Name() string { return string(t.name) }

// DB returns the underlying database.
func (t *Tree) DB() *bolt.DB { return t.db }

// IDs returns the identifier generator shared by all trees of the database.
func (t *Tree) IDs() *IDGenerator { return t.ids }

// Get returns a copy of the value stored under id.
func (t *Tree) Get(id uint64) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := t.View(func(tx *Tx) error {
		v, ok, err := tx.Get(id)
		if err != nil {
			return err
		}
		out, found = v, ok
		return nil
	})
	return out, found, err
}

// Insert stores value under id, replacing any previous value.
func (t *Tree) Insert(id uint64, value []byte) error {
	return t.Transaction(func(tx *Tx) error { return tx.Insert(id, value) })
}

// Remove deletes id. Removing a missing id is not an error.
func (t *Tree) Remove(id uint64) error {
	return t.Transaction(func(tx *Tx) error { return tx.Remove(id) })
}

// Len returns the number of records in the tree.
func (t *Tree) Len() (int, error) {
	var n int
	err := t.View(func(tx *Tx) error {
		n = tx.bucket.Stats().KeyN
		return nil
	})
	return n, err
}

// Iterate calls fn for every record in ascending identifier order.
// The value slice is only valid during the call. Iteration stops at the first
// error returned by fn, which is returned unchanged.
func (t *Tree) Iterate(fn func(id uint64, value []byte) error) error {
	return t.View(func(tx *Tx) error {
		return tx.Iterate(fn)
	})
}

// View runs fn in a read-only transaction.
func (t *Tree) View(fn func(tx *Tx) error) error {
	return t.db.View(func(btx *bolt.Tx) error {
		tx, err := t.wrap(btx)
		if err != nil {
			return err
		}
		return fn(tx)
	})
}

// Transaction runs fn in a serializable read-write transaction.
//
// fn runs exactly once. If it returns an error the transaction is rolled back
// and the error is returned unchanged.
func (t *Tree) Transaction(fn func(tx *Tx) error) error {
	return t.db.Update(func(btx *bolt.Tx) error {
		tx, err := t.wrap(btx)
		if err != nil {
			return err
		}
		return fn(tx)
	})
}

// Batch runs fn as part of a batch of concurrent transactions.
//
// Concurrent callers share one read-write transaction, which reduces fsyncs
// under write-heavy load. fn may be invoked more than once: when any function
// of the batch fails, the batch is rolled back and the remaining functions
// are re-run. Side effects of fn outside the transaction must be idempotent.
func (t *Tree) Batch(fn func(tx *Tx) error) error {
	return t.db.Batch(func(btx *bolt.Tx) error {
		tx, err := t.wrap(btx)
		if err != nil {
			return err
		}
		return fn(tx)
	})
}

func (t *Tree) wrap(btx *bolt.Tx) (*Tx, error) {
	b := btx.Bucket(t.name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrTreeMissing, t.name)
	}
	return &Tx{tx: btx, bucket: b, ids: t.ids}, nil
}

// IsNotExist reports whether err is caused by a missing database file or
// bucket.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrTreeMissing)
}
