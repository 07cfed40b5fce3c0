package main

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hupe1980/pallet"
	"github.com/hupe1980/pallet/index"
)

// record is a schemaless JSON object.
type record map[string]any

// fieldSpec is one entry of the `fields` list of the config file.
type fieldSpec struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Indexed bool   `mapstructure:"indexed"`
	Fast    bool   `mapstructure:"fast"`
	Default bool   `mapstructure:"default"`
}

var defaultFields = []fieldSpec{{Name: "text", Type: "text", Default: true}}

func (f fieldSpec) textual() bool { return f.Type == "text" || f.Type == "string" }

func (f fieldSpec) numericOptions() index.NumericOptions {
	var opts index.NumericOptions
	if f.Indexed {
		opts |= index.INDEXED
	}
	if f.Fast {
		opts |= index.FAST
	}
	if opts == 0 {
		opts = index.INDEXED
	}
	return opts
}

// newMapping describes records whose fields are declared in specs.
// Unqualified query terms search the fields marked default, or every text
// field when none is.
func newMapping(specs []fieldSpec) (pallet.Mapping[record], error) {
	if len(specs) == 0 {
		specs = defaultFields
	}
	for _, s := range specs {
		switch s.Type {
		case "text", "string", "u64", "i64", "f64", "date":
		default:
			return pallet.Mapping[record]{}, fmt.Errorf("field %q: unknown type %q", s.Name, s.Type)
		}
	}

	return pallet.Mapping[record]{
		IndexFields: func(b *index.SchemaBuilder) (index.Fields, error) {
			for _, s := range specs {
				switch s.Type {
				case "text":
					b.AddTextField(s.Name, index.TEXT)
				case "string":
					b.AddTextField(s.Name, index.STRING)
				case "u64":
					b.AddU64Field(s.Name, s.numericOptions())
				case "i64":
					b.AddI64Field(s.Name, s.numericOptions())
				case "f64":
					b.AddF64Field(s.Name, s.numericOptions())
				case "date":
					b.AddDateField(s.Name, s.numericOptions())
				}
			}
			return b.Fields(), nil
		},
		DefaultSearchFields: func(fields index.Fields) []index.Field {
			var out, text []index.Field
			for _, s := range specs {
				f := fields.MustNamed(s.Name)
				if s.Default {
					out = append(out, f)
				}
				if s.textual() {
					text = append(text, f)
				}
			}
			if len(out) == 0 {
				return text
			}
			return out
		},
		IndexDocument: func(rec record, fields index.Fields) (*index.Document, error) {
			doc := index.NewDocument()
			for _, s := range specs {
				raw, ok := rec[s.Name]
				if !ok || raw == nil {
					continue
				}
				values, ok := raw.([]any)
				if !ok {
					values = []any{raw}
				}
				f := fields.MustNamed(s.Name)
				for _, v := range values {
					val, err := toValue(s.Type, v)
					if err != nil {
						return nil, fmt.Errorf("field %q: %w", s.Name, err)
					}
					doc.Add(f, val)
				}
			}
			return doc, nil
		},
	}, nil
}

func toValue(typ string, v any) (index.Value, error) {
	switch typ {
	case "text", "string":
		if s, ok := v.(string); ok {
			return index.Text(s), nil
		}
		return index.Text(fmt.Sprint(v)), nil
	case "u64":
		n, err := toInt(v)
		if err != nil {
			return index.Value{}, err
		}
		if n < 0 {
			return index.Value{}, fmt.Errorf("negative value %d", n)
		}
		return index.U64(uint64(n)), nil
	case "i64":
		n, err := toInt(v)
		if err != nil {
			return index.Value{}, err
		}
		return index.I64(n), nil
	case "f64":
		f, err := toFloat(v)
		if err != nil {
			return index.Value{}, err
		}
		return index.F64(f), nil
	case "date":
		t, err := toTime(v)
		if err != nil {
			return index.Value{}, err
		}
		return index.Date(t), nil
	}
	return index.Value{}, fmt.Errorf("unknown type %q", typ)
}

// toInt accepts the number types produced by the JSON and msgpack codecs.
func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of range", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return toInt(float64(n))
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	i, err := toInt(v)
	return float64(i), err
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		return time.Parse(time.DateOnly, t)
	}
	return time.Time{}, fmt.Errorf("value %v (%T) is not a date", v, v)
}
