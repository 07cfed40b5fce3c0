// Package blobstore provides the directory abstraction an index persists its
// segments, delete bitmaps and metadata into.
//
// A Store holds named, immutable blobs. Put replaces a blob atomically, so a
// reader sees either the old or the new content, never a partial write.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a local directory (atomic rename, cross-process lock)
//   - MemoryStore: in-memory, for tests and ephemeral indexes
//   - s3.Store: Amazon S3 (and S3-compatible endpoints)
//   - minio.Store: MinIO and other S3-compatible object stores
package blobstore
