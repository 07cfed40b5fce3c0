package tree

import "errors"

var (
	// ErrInvalidName is returned for empty or reserved tree names.
	ErrInvalidName = errors.New("tree: invalid name")
	// ErrCorruptKey is returned when a stored key is not a valid identifier.
	ErrCorruptKey = errors.New("tree: corrupt key")
	// ErrNilDB is returned when a tree is opened without a database.
	ErrNilDB = errors.New("tree: nil database")
	// ErrTreeMissing is returned when the tree bucket disappeared from the file.
	ErrTreeMissing = errors.New("tree: bucket missing")
)
