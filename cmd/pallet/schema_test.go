package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pallet/index"
)

func buildMapping(t *testing.T, specs []fieldSpec) (index.Fields, func(record) (*index.Document, error), []index.Field) {
	t.Helper()
	m, err := newMapping(specs)
	require.NoError(t, err)
	b := index.NewSchemaBuilder()
	fields, err := m.IndexFields(b)
	require.NoError(t, err)
	_, err = b.Build()
	require.NoError(t, err)
	project := func(r record) (*index.Document, error) { return m.IndexDocument(r, fields) }
	return fields, project, m.DefaultSearchFields(fields)
}

func TestMappingDefaults(t *testing.T) {
	fields, project, defaults := buildMapping(t, nil)

	assert.Equal(t, []index.Field{fields.MustNamed("text")}, defaults)
	doc, err := project(record{"text": "hello", "other": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Len())
}

func TestMappingTypes(t *testing.T) {
	fields, project, defaults := buildMapping(t, []fieldSpec{
		{Name: "title", Type: "text"},
		{Name: "tag", Type: "string"},
		{Name: "rating", Type: "u64", Fast: true},
		{Name: "delta", Type: "i64"},
		{Name: "price", Type: "f64"},
		{Name: "published", Type: "date"},
	})
	assert.Equal(t, []index.Field{fields.MustNamed("title"), fields.MustNamed("tag")}, defaults)

	doc, err := project(record{
		"title":     "The Old Man and the Sea",
		"tag":       []any{"classic", "novel"},
		"rating":    float64(10),
		"delta":     int8(-3),
		"price":     "9.5",
		"published": "1952-09-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, doc.Len())

	v, ok := doc.Get(fields.MustNamed("rating"))
	require.True(t, ok)
	assert.Equal(t, uint64(10), v.AsU64())

	v, ok = doc.Get(fields.MustNamed("delta"))
	require.True(t, ok)
	assert.Equal(t, int64(-3), v.AsI64())

	v, ok = doc.Get(fields.MustNamed("published"))
	require.True(t, ok)
	assert.Equal(t, time.Date(1952, 9, 1, 0, 0, 0, 0, time.UTC), v.AsDate())
}

func TestMappingErrors(t *testing.T) {
	_, err := newMapping([]fieldSpec{{Name: "x", Type: "blob"}})
	require.Error(t, err)

	_, project, _ := buildMapping(t, []fieldSpec{{Name: "rating", Type: "u64"}})
	for _, bad := range []any{-1, 1.5, "ten", true} {
		_, err := project(record{"rating": bad})
		assert.Error(t, err, "%v", bad)
	}
}

func TestMappingDefaultFlag(t *testing.T) {
	fields, _, defaults := buildMapping(t, []fieldSpec{
		{Name: "title", Type: "text"},
		{Name: "body", Type: "text", Default: true},
	})
	assert.Equal(t, []index.Field{fields.MustNamed("body")}, defaults)
}
