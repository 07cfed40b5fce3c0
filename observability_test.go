package pallet

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := newTestStore(t, func(c *Config) { c.Logger = logger })
	_, err := s.Create(ctx, Book{Title: "harbor"})
	require.NoError(t, err)
	_, err = s.SearchString(ctx, "harbor")
	require.NoError(t, err)
	_, err = s.SearchString(ctx, "(harbor")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"store opened"`)
	assert.Contains(t, out, `"tree":"books"`)
	assert.Contains(t, out, `"msg":"create completed"`)
	assert.Contains(t, out, `"msg":"search completed"`)
	assert.Contains(t, out, `"msg":"search failed"`)
	assert.Contains(t, out, `"msg":"index commit"`)
}

func TestBasicMetrics(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetricsCollector{}
	s := newTestStore(t, func(c *Config) { c.Metrics = m })

	ids, err := s.CreateMulti(ctx, []Book{{Title: "a"}, {Title: "b"}})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, Document[Book]{ID: ids[0], Inner: Book{Title: "c"}}))
	require.NoError(t, s.Delete(ctx, ids[1]))
	_, err = s.SearchString(ctx, "c")
	require.NoError(t, err)
	_, err = s.SearchString(ctx, "(")
	require.Error(t, err)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.CreateCount)
	assert.Equal(t, int64(2), stats.CreateRecords)
	assert.Equal(t, int64(1), stats.UpdateCount)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
}

func TestVictoriaMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewVictoriaMetricsCollector("books")
	s := newTestStore(t, func(c *Config) { c.Metrics = m })

	_, err := s.CreateMulti(ctx, []Book{{Title: "a"}, {Title: "b"}, {Title: "c"}})
	require.NoError(t, err)
	_, err = s.SearchString(ctx, "(")
	require.Error(t, err)

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `books_operations_total{op="create"} 1`)
	assert.Contains(t, out, `books_records_total{op="create"} 3`)
	assert.Contains(t, out, `books_errors_total{op="search"} 1`)
	assert.Contains(t, out, `books_duration_seconds_bucket{op="create"`)
	assert.NotNil(t, m.Set())
}
