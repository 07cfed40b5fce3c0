package tree

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// IDBucket holds the identifier sequence of a database file.
const IDBucket = ReservedPrefix + "_ids__"

// IDGenerator issues strictly increasing identifiers for a whole database
// file. Identifiers start at 1.
//
// The sequence is advanced inside the caller's write transaction, so an
// identifier is only issued when that transaction commits. A rolled-back
// transaction leaves the sequence untouched. Inserting a record under an
// identifier above the sequence raises the sequence to it.
type IDGenerator struct {
	db *bolt.DB
}

// NewIDGenerator returns the generator of db, creating its bucket if needed.
func NewIDGenerator(db *bolt.DB) (*IDGenerator, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(IDBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create id bucket: %w", err)
	}
	return &IDGenerator{db: db}, nil
}

// NextID issues one identifier in its own transaction.
func (g *IDGenerator) NextID() (uint64, error) {
	var id uint64
	err := g.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = g.next(tx)
		return err
	})
	return id, err
}

// Last returns the most recently issued identifier, or 0.
func (g *IDGenerator) Last() (uint64, error) {
	var id uint64
	err := g.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(IDBucket))
		if b == nil {
			return fmt.Errorf("%w: %q", ErrTreeMissing, IDBucket)
		}
		id = b.Sequence()
		return nil
	})
	return id, err
}

// reserve raises the sequence to id so that id is never issued.
func (g *IDGenerator) reserve(tx *bolt.Tx, id uint64) error {
	b := tx.Bucket([]byte(IDBucket))
	if b == nil {
		return fmt.Errorf("%w: %q", ErrTreeMissing, IDBucket)
	}
	if id > b.Sequence() {
		return b.SetSequence(id)
	}
	return nil
}

func (g *IDGenerator) next(tx *bolt.Tx) (uint64, error) {
	b := tx.Bucket([]byte(IDBucket))
	if b == nil {
		return 0, fmt.Errorf("%w: %q", ErrTreeMissing, IDBucket)
	}
	return b.NextSequence()
}
