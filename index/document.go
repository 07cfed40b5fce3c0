package index

import "time"

// FieldValue pairs a field with one of its values.
type FieldValue struct {
	Field Field
	Value Value
}

// Document is the indexable projection of a record. A field may be absent or
// carry several values.
type Document struct {
	values []FieldValue
}

// NewDocument returns an empty document.
func NewDocument() *Document { return &Document{} }

// Add appends a value for f.
func (d *Document) Add(f Field, v Value) *Document {
	d.values = append(d.values, FieldValue{Field: f, Value: v})
	return d
}

func (d *Document) AddText(f Field, s string) *Document { return d.Add(f, Text(s)) }
func (d *Document) AddU64(f Field, v uint64) *Document  { return d.Add(f, U64(v)) }
func (d *Document) AddI64(f Field, v int64) *Document   { return d.Add(f, I64(v)) }
func (d *Document) AddF64(f Field, v float64) *Document { return d.Add(f, F64(v)) }

// AddDate appends a timestamp value for f.
func (d *Document) AddDate(f Field, t time.Time) *Document { return d.Add(f, Date(t)) }

// Set replaces every value of f with v.
func (d *Document) Set(f Field, v Value) *Document {
	kept := d.values[:0]
	for _, fv := range d.values {
		if fv.Field != f {
			kept = append(kept, fv)
		}
	}
	d.values = append(kept, FieldValue{Field: f, Value: v})
	return d
}

// Get returns the first value of f.
func (d *Document) Get(f Field) (Value, bool) {
	for _, fv := range d.values {
		if fv.Field == f {
			return fv.Value, true
		}
	}
	return Value{}, false
}

// Values returns the values in insertion order.
func (d *Document) Values() []FieldValue { return d.values }

// Len returns the number of values.
func (d *Document) Len() int { return len(d.values) }

func (d *Document) validate(s *Schema) error {
	for _, fv := range d.values {
		if !s.valid(fv.Field) {
			return schemaErrorf("unknown field ordinal %d", fv.Field)
		}
		e := s.Entry(fv.Field)
		if e.Type != fv.Value.Type() {
			return schemaErrorf("field %q expects %s, got %s", e.Name, e.Type, fv.Value.Type())
		}
	}
	return nil
}

// memSize estimates the bytes a buffered document occupies.
func (d *Document) memSize() int64 {
	n := int64(64)
	for _, fv := range d.values {
		n += 24 + 2*int64(len(fv.Value.text))
	}
	return n
}

// Term is an exact value of a field, as stored in the index.
type Term struct {
	Field Field
	Value Value
}

// TextTerm returns a term for an already analyzed token.
func TextTerm(f Field, token string) Term { return Term{Field: f, Value: Text(token)} }

// U64Term returns a term for an unsigned integer field, such as an id field.
func U64Term(f Field, v uint64) Term { return Term{Field: f, Value: U64(v)} }
