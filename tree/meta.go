package tree

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// MetaBucket holds per-tree settings such as the record codec.
const MetaBucket = ReservedPrefix + "_meta__"

func (t *Tree) metaKey(key string) []byte {
	return []byte(string(t.name) + "/" + key)
}

// Meta returns a copy of the setting key of the tree.
func (t *Tree) Meta(key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MetaBucket))
		if b == nil {
			return fmt.Errorf("%w: %q", ErrTreeMissing, MetaBucket)
		}
		if v := b.Get(t.metaKey(key)); v != nil {
			out, found = bytes.Clone(v), true
		}
		return nil
	})
	return out, found, err
}

// EnsureMeta stores value under key unless the tree already has a value
// for it, and returns the value in effect.
func (t *Tree) EnsureMeta(key string, value []byte) ([]byte, error) {
	var out []byte
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MetaBucket))
		if b == nil {
			return fmt.Errorf("%w: %q", ErrTreeMissing, MetaBucket)
		}
		k := t.metaKey(key)
		if v := b.Get(k); v != nil {
			out = bytes.Clone(v)
			return nil
		}
		out = bytes.Clone(value)
		return b.Put(k, value)
	})
	return out, err
}
