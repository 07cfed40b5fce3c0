// Package tree implements the record tree: a named, ordered key-value
// namespace inside a bbolt database file.
//
// Keys are 64-bit document identifiers encoded as 8-byte big-endian values,
// so iteration visits documents in ascending identifier order. Values are
// opaque serialized records.
//
// Identifiers come from an IDGenerator that is shared by every tree of the
// same database file and is advanced inside the write transaction that
// consumes the identifier.
package tree
