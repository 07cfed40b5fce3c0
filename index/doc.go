// Package index implements the full-text and structured search index that
// holds the queryable projection of every record.
//
// An Index is a schema plus a set of immutable segments persisted in a
// blobstore.Store directory. A single exclusive Writer buffers added and
// deleted documents and publishes them atomically with Commit. Any number of
// goroutines search concurrently through lock-free Searcher snapshots obtained
// from the Reader; a snapshot never changes, and the Reader swaps in a new one
// after each commit (or on Reload).
//
// # Layout
//
//	CURRENT             name of the live meta file
//	meta-000042.json    schema, settings, segment list, last opstamp
//	<uuid>.seg          segment: postings, field lengths, numeric columns
//	<uuid>.<gen>.del    roaring bitmap of deleted documents of a segment
//
// # Scoring
//
// Text matches are scored with BM25 (k1 = 1.2, b = 0.75) using collection
// statistics of the whole snapshot. Numeric terms, ranges and match-all
// queries score a constant 1.0. Boolean queries sum the scores of their
// matching scoring clauses.
package index
