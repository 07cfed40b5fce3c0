package pallet

import "github.com/hupe1980/pallet/index"

// Document is a record together with its identifier. The identifier is
// assigned by Create and never changes.
type Document[T any] struct {
	ID    uint64
	Inner T
}

// Hit pairs a search score with the matching document.
type Hit[T any] struct {
	Score float32
	Doc   Document[T]
}

// Results is the outcome of Store.Search. Count is the number of index
// matches, which may exceed len(Hits).
type Results[T any] struct {
	Count int
	Hits  []Hit[T]
}

// DocumentLike is implemented by record types that describe their own index
// projection. The schema methods are called on the zero value of T.
type DocumentLike interface {
	// IndexFields declares the fields of the record in b and returns their
	// handles.
	IndexFields(b *index.SchemaBuilder) (index.Fields, error)
	// DefaultSearchFields returns the fields searched by unqualified query
	// terms.
	DefaultSearchFields(fields index.Fields) []index.Field
	// IndexDocument builds the projection of the record. Fields may be
	// omitted.
	IndexDocument(fields index.Fields) (*index.Document, error)
}

// TreeNamer is optionally implemented by record types to name their tree.
type TreeNamer interface {
	TreeName() string
}

// Mapping describes the index projection of T as values, for record types
// whose schema is only known at runtime.
type Mapping[T any] struct {
	// TreeName is used when Config.TreeName is empty.
	TreeName            string
	IndexFields         func(b *index.SchemaBuilder) (index.Fields, error)
	DefaultSearchFields func(fields index.Fields) []index.Field
	IndexDocument       func(rec T, fields index.Fields) (*index.Document, error)
}

// MappingOf returns the mapping of a DocumentLike record type.
func MappingOf[T DocumentLike]() Mapping[T] {
	var zero T
	m := Mapping[T]{
		IndexFields:         zero.IndexFields,
		DefaultSearchFields: zero.DefaultSearchFields,
		IndexDocument: func(rec T, fields index.Fields) (*index.Document, error) {
			return rec.IndexDocument(fields)
		},
	}
	if n, ok := any(zero).(TreeNamer); ok {
		m.TreeName = n.TreeName()
	}
	return m
}

func (m Mapping[T]) validate() error {
	switch {
	case m.IndexFields == nil:
		return &ConfigError{Field: "mapping.index_fields"}
	case m.DefaultSearchFields == nil:
		return &ConfigError{Field: "mapping.default_search_fields"}
	case m.IndexDocument == nil:
		return &ConfigError{Field: "mapping.index_document"}
	}
	return nil
}
