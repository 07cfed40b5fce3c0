package tree

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// Tx is a transaction scoped to one tree.
// It must not be used after the function it was passed to returns.
type Tx struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	ids    *IDGenerator
}

// Writable reports whether the transaction may modify the tree.
func (tx *Tx) Writable() bool { return tx.tx.Writable() }

// Get returns a copy of the value stored under id.
func (tx *Tx) Get(id uint64) ([]byte, bool, error) {
	v := tx.bucket.Get(EncodeKey(id))
	if v == nil {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Insert stores value under id. An id that was never issued is reserved, so
// NextID will not return it.
func (tx *Tx) Insert(id uint64, value []byte) error {
	if err := tx.ids.reserve(tx.tx, id); err != nil {
		return err
	}
	return tx.bucket.Put(EncodeKey(id), value)
}

// Remove deletes id.
func (tx *Tx) Remove(id uint64) error {
	return tx.bucket.Delete(EncodeKey(id))
}

// NextID issues the next identifier of the database.
// The identifier is consumed only if the transaction commits.
func (tx *Tx) NextID() (uint64, error) {
	return tx.ids.next(tx.tx)
}

// Iterate calls fn for every record in ascending identifier order.
func (tx *Tx) Iterate(fn func(id uint64, value []byte) error) error {
	c := tx.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			// nested bucket
			continue
		}
		id, err := DecodeKey(k)
		if err != nil {
			return err
		}
		if err := fn(id, v); err != nil {
			return err
		}
	}
	return nil
}
