package index

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
)

// FieldType is the value type of a field.
type FieldType uint8

const (
	FieldText FieldType = iota + 1
	FieldU64
	FieldI64
	FieldF64
	FieldDate
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldU64:
		return "u64"
	case FieldI64:
		return "i64"
	case FieldF64:
		return "f64"
	case FieldDate:
		return "date"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// Numeric reports whether values of the type are stored as mapped uint64.
func (t FieldType) Numeric() bool {
	return t == FieldU64 || t == FieldI64 || t == FieldF64 || t == FieldDate
}

// Tokenizer names.
const (
	TokenizerDefault = "default"
	TokenizerRaw     = "raw"
)

// TextOptions configures a text field.
type TextOptions struct {
	Tokenizer string
}

// NumericOptions configures a numeric or date field. Options combine with |.
type NumericOptions uint8

const (
	// INDEXED enables term and range queries.
	INDEXED NumericOptions = 1 << iota
	// FAST enables O(1) per-document value lookup (e.g. ScoredIDs).
	FAST
)

var (
	// TEXT tokenizes values into case-folded words with positions.
	TEXT = TextOptions{Tokenizer: TokenizerDefault}
	// STRING indexes each value as one untokenized term.
	STRING = TextOptions{Tokenizer: TokenizerRaw}
)

// Field is a handle to a schema field (its ordinal).
type Field uint32

// Fields is an ordered set of field handles that can be looked up by name.
type Fields struct {
	handles []Field
	names   []string
}

// NewFields returns a set of the named handles.
func NewFields(s *Schema, names ...string) (Fields, error) {
	var fs Fields
	for _, n := range names {
		f, ok := s.Field(n)
		if !ok {
			return Fields{}, schemaErrorf("unknown field %q", n)
		}
		fs.handles = append(fs.handles, f)
		fs.names = append(fs.names, n)
	}
	return fs, nil
}

// All returns the handles in declaration order.
func (fs Fields) All() []Field { return slices.Clone(fs.handles) }

// Len returns the number of handles.
func (fs Fields) Len() int { return len(fs.handles) }

// Named returns the handle of the field called name.
func (fs Fields) Named(name string) (Field, bool) {
	i := slices.Index(fs.names, name)
	if i < 0 {
		return 0, false
	}
	return fs.handles[i], true
}

// MustNamed is like Named but panics if the field is not in the set.
func (fs Fields) MustNamed(name string) Field {
	f, ok := fs.Named(name)
	if !ok {
		panic("index: no field named " + strconv.Quote(name))
	}
	return f
}

// FieldEntry describes one field of a schema.
type FieldEntry struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Indexed   bool      `json:"indexed"`
	Fast      bool      `json:"fast,omitempty"`
	Tokenizer string    `json:"tokenizer,omitempty"`
}

// Schema is the immutable, ordered list of fields of an index.
type Schema struct {
	fields []FieldEntry
	byName map[string]Field
}

// Field returns the field called name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Entry returns the description of f.
func (s *Schema) Entry(f Field) FieldEntry { return s.fields[f] }

// Name returns the name of f.
func (s *Schema) Name(f Field) string { return s.fields[f].Name }

// NumFields returns the number of fields.
func (s *Schema) NumFields() int { return len(s.fields) }

// Entries returns a copy of all field entries in ordinal order.
func (s *Schema) Entries() []FieldEntry { return slices.Clone(s.fields) }

// Equal reports whether two schemas declare the same fields in the same order.
func (s *Schema) Equal(o *Schema) bool {
	return s != nil && o != nil && slices.Equal(s.fields, o.fields)
}

func (s *Schema) valid(f Field) bool { return int(f) < len(s.fields) }

// MarshalJSON encodes the field list.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(s.fields)
}

// UnmarshalJSON decodes and validates a field list.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var entries []FieldEntry
	if err := gojson.Unmarshal(data, &entries); err != nil {
		return err
	}
	b := NewSchemaBuilder()
	for _, e := range entries {
		b.add(e)
	}
	built, err := b.Build()
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

// SchemaBuilder declares the fields of a schema.
// Errors are collected and reported by Build.
type SchemaBuilder struct {
	fields []FieldEntry
	byName map[string]Field
	errs   []error
	built  bool
}

// NewSchemaBuilder returns an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{byName: make(map[string]Field)}
}

// AddTextField declares a text field.
func (b *SchemaBuilder) AddTextField(name string, opts TextOptions) Field {
	tok := opts.Tokenizer
	if tok == "" {
		tok = TokenizerDefault
	}
	return b.add(FieldEntry{Name: name, Type: FieldText, Indexed: true, Tokenizer: tok})
}

// AddU64Field declares an unsigned integer field.
func (b *SchemaBuilder) AddU64Field(name string, opts NumericOptions) Field {
	return b.addNumeric(name, FieldU64, opts)
}

// AddI64Field declares a signed integer field.
func (b *SchemaBuilder) AddI64Field(name string, opts NumericOptions) Field {
	return b.addNumeric(name, FieldI64, opts)
}

// AddF64Field declares a floating point field.
func (b *SchemaBuilder) AddF64Field(name string, opts NumericOptions) Field {
	return b.addNumeric(name, FieldF64, opts)
}

// AddDateField declares a timestamp field with microsecond precision.
func (b *SchemaBuilder) AddDateField(name string, opts NumericOptions) Field {
	return b.addNumeric(name, FieldDate, opts)
}

// Fields returns the handles of all fields declared so far.
func (b *SchemaBuilder) Fields() Fields {
	fs := Fields{handles: make([]Field, len(b.fields)), names: make([]string, len(b.fields))}
	for i, e := range b.fields {
		fs.handles[i] = Field(i)
		fs.names[i] = e.Name
	}
	return fs
}

// Lookup returns a field declared earlier.
func (b *SchemaBuilder) Lookup(name string) (Field, bool) {
	f, ok := b.byName[name]
	return f, ok
}

func (b *SchemaBuilder) addNumeric(name string, t FieldType, opts NumericOptions) Field {
	if opts&(INDEXED|FAST) == 0 {
		b.errs = append(b.errs, schemaErrorf("field %q must be indexed or fast", name))
	}
	return b.add(FieldEntry{Name: name, Type: t, Indexed: opts&INDEXED != 0, Fast: opts&FAST != 0})
}

func (b *SchemaBuilder) add(e FieldEntry) Field {
	if err := validateFieldName(e.Name); err != nil {
		b.errs = append(b.errs, err)
	}
	if _, dup := b.byName[e.Name]; dup {
		b.errs = append(b.errs, schemaErrorf("duplicate field %q", e.Name))
	}
	switch {
	case e.Type == FieldText:
		if e.Tokenizer != TokenizerDefault && e.Tokenizer != TokenizerRaw {
			b.errs = append(b.errs, schemaErrorf("field %q: unknown tokenizer %q", e.Name, e.Tokenizer))
		}
	case e.Type.Numeric():
	default:
		b.errs = append(b.errs, schemaErrorf("field %q: unknown type %d", e.Name, e.Type))
	}
	f := Field(len(b.fields))
	b.fields = append(b.fields, e)
	if _, dup := b.byName[e.Name]; !dup {
		b.byName[e.Name] = f
	}
	return f
}

func validateFieldName(name string) error {
	if name == "" {
		return schemaErrorf("empty field name")
	}
	if strings.ContainsAny(name, ":\"'()[]{} \t\r\n") {
		return schemaErrorf("field name %q contains reserved characters", name)
	}
	if name[0] == '-' || name[0] == '+' {
		return schemaErrorf("field name %q starts with an operator", name)
	}
	return nil
}

// Build validates the declared fields and returns the schema.
// A builder can be built only once.
func (b *SchemaBuilder) Build() (*Schema, error) {
	if b.built {
		return nil, schemaErrorf("schema already built")
	}
	b.built = true
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.fields) == 0 {
		return nil, schemaErrorf("schema has no fields")
	}
	byName := make(map[string]Field, len(b.byName))
	for k, v := range b.byName {
		byName[k] = v
	}
	return &Schema{fields: slices.Clone(b.fields), byName: byName}, nil
}
