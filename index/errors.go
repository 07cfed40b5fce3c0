package index

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is returned for invalid schemas and documents or queries that
	// do not fit the schema.
	ErrSchema = errors.New("index: schema error")
	// ErrSchemaMismatch is returned when an existing index was created with a
	// different schema.
	ErrSchemaMismatch = errors.New("index: schema mismatch")
	// ErrQuerySyntax is matched by every *SyntaxError.
	ErrQuerySyntax = errors.New("index: query syntax error")
	// ErrWriterBusy is returned when the writer is held by someone else.
	ErrWriterBusy = errors.New("index: writer busy")
	// ErrInvalidArgument is returned for out-of-range parameters.
	ErrInvalidArgument = errors.New("index: invalid argument")
	// ErrCorrupt is returned when persisted data cannot be decoded.
	ErrCorrupt = errors.New("index: corrupt data")
	// ErrIndexNotFound is returned by Open when the directory holds no index.
	ErrIndexNotFound = errors.New("index: not found")
	// ErrIndexExists is returned by Create when the directory already holds
	// an index.
	ErrIndexExists = errors.New("index: already exists")
	// ErrClosed is returned when using a closed writer or index.
	ErrClosed = errors.New("index: closed")
)

// SyntaxError describes malformed query text.
type SyntaxError struct {
	Query  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Is makes errors.Is(err, ErrQuerySyntax) hold.
func (e *SyntaxError) Is(target error) bool { return target == ErrQuerySyntax }

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}
