package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/pallet/blobstore"
)

const (
	currentBlob = "CURRENT"
	metaPrefix  = "meta-"
	metaVersion = 1
)

// meta describes the committed state of an index.
type meta struct {
	Version     int           `json:"version"`
	Generation  uint64        `json:"generation"`
	Opstamp     uint64        `json:"opstamp"`
	Schema      *Schema       `json:"schema"`
	Compression Compression   `json:"compression"`
	Segments    []segmentMeta `json:"segments"`
}

// segmentMeta references one committed segment and its current deletes.
type segmentMeta struct {
	ID         string `json:"id"`
	MaxDoc     uint32 `json:"max_doc"`
	NumDeleted uint32 `json:"num_deleted"`
	// DelGen names the delete bitmap blob; 0 means no deletes.
	DelGen uint64 `json:"del_gen,omitempty"`
}

func (m segmentMeta) numDocs() uint32 { return m.MaxDoc - m.NumDeleted }

func segmentBlob(id string) string { return id + ".seg" }

func deletesBlob(id string, gen uint64) string { return fmt.Sprintf("%s.%d.del", id, gen) }

func metaBlob(gen uint64) string { return fmt.Sprintf("%s%06d.json", metaPrefix, gen) }

func (m *meta) clone() *meta {
	c := *m
	c.Segments = append([]segmentMeta(nil), m.Segments...)
	return &c
}

// loadMeta reads the meta referenced by CURRENT.
func loadMeta(ctx context.Context, dir blobstore.Store) (*meta, error) {
	cur, err := blobstore.ReadAll(ctx, dir, currentBlob)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(string(cur))
	data, err := blobstore.ReadAll(ctx, dir, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var m meta
	if err := gojson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, name, err)
	}
	if m.Version != metaVersion {
		return nil, fmt.Errorf("%w: unsupported meta version %d (expected %d)", ErrCorrupt, m.Version, metaVersion)
	}
	if m.Schema == nil {
		return nil, fmt.Errorf("%w: %s has no schema", ErrCorrupt, name)
	}
	return &m, nil
}

// saveMeta writes m under its generation and then points CURRENT at it.
// The index changes state only when CURRENT is replaced.
func saveMeta(ctx context.Context, dir blobstore.Store, m *meta) error {
	m.Version = metaVersion
	name := metaBlob(m.Generation)

	data, err := gojson.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := dir.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := dir.Put(ctx, currentBlob, []byte(name)); err != nil {
		return fmt.Errorf("write %s: %w", currentBlob, err)
	}
	return nil
}

// referencedBlobs returns the blobs m depends on.
func (m *meta) referencedBlobs() map[string]struct{} {
	refs := map[string]struct{}{
		currentBlob:            {},
		metaBlob(m.Generation): {},
	}
	for _, s := range m.Segments {
		refs[segmentBlob(s.ID)] = struct{}{}
		if s.DelGen > 0 {
			refs[deletesBlob(s.ID, s.DelGen)] = struct{}{}
		}
	}
	return refs
}

// isIndexBlob reports whether name looks like a blob this package writes.
func isIndexBlob(name string) bool {
	return strings.HasPrefix(name, metaPrefix) ||
		strings.HasSuffix(name, ".seg") ||
		strings.HasSuffix(name, ".del")
}
