package pallet

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use
// VictoriaMetricsCollector for a Prometheus text exposition.
type MetricsCollector interface {
	// RecordCreate is called after each Create or CreateMulti call.
	// count is the number of records in the call.
	RecordCreate(count int, duration time.Duration, err error)

	// RecordUpdate is called after each Update or UpdateMulti call.
	RecordUpdate(count int, duration time.Duration, err error)

	// RecordDelete is called after each Delete or DeleteMulti call.
	RecordDelete(count int, duration time.Duration, err error)

	// RecordSearch is called after each search.
	RecordSearch(duration time.Duration, err error)

	// RecordReindex is called after each IndexAll call.
	// count is the number of records indexed.
	RecordReindex(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordUpdate(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSearch(time.Duration, error)       {}
func (NoopMetricsCollector) RecordReindex(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount      atomic.Int64
	CreateRecords    atomic.Int64
	CreateErrors     atomic.Int64
	UpdateCount      atomic.Int64
	UpdateErrors     atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	ReindexCount     atomic.Int64
	ReindexRecords   atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(count int, _ time.Duration, err error) {
	b.CreateCount.Add(1)
	if err != nil {
		b.CreateErrors.Add(1)
		return
	}
	b.CreateRecords.Add(int64(count))
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(_ int, _ time.Duration, err error) {
	b.UpdateCount.Add(1)
	if err != nil {
		b.UpdateErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordReindex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReindex(count int, _ time.Duration, err error) {
	b.ReindexCount.Add(1)
	if err == nil {
		b.ReindexRecords.Add(int64(count))
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:    b.CreateCount.Load(),
		CreateRecords:  b.CreateRecords.Load(),
		CreateErrors:   b.CreateErrors.Load(),
		UpdateCount:    b.UpdateCount.Load(),
		UpdateErrors:   b.UpdateErrors.Load(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		ReindexCount:   b.ReindexCount.Load(),
		ReindexRecords: b.ReindexRecords.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount    int64
	CreateRecords  int64
	CreateErrors   int64
	UpdateCount    int64
	UpdateErrors   int64
	DeleteCount    int64
	DeleteErrors   int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	ReindexCount   int64
	ReindexRecords int64
}

// VictoriaMetricsCollector records counters and duration histograms in a
// private metrics.Set.
type VictoriaMetricsCollector struct {
	set    *metrics.Set
	prefix string
}

// NewVictoriaMetricsCollector returns a collector whose metric names start
// with prefix (e.g. "pallet").
func NewVictoriaMetricsCollector(prefix string) *VictoriaMetricsCollector {
	if prefix == "" {
		prefix = "pallet"
	}
	return &VictoriaMetricsCollector{set: metrics.NewSet(), prefix: prefix}
}

// Set returns the underlying set, e.g. for metrics.RegisterSet.
func (c *VictoriaMetricsCollector) Set() *metrics.Set { return c.set }

// WritePrometheus writes all metrics in Prometheus text format.
func (c *VictoriaMetricsCollector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *VictoriaMetricsCollector) record(op string, count int, duration time.Duration, err error) {
	c.set.GetOrCreateCounter(c.prefix + `_operations_total{op="` + op + `"}`).Inc()
	if err != nil {
		c.set.GetOrCreateCounter(c.prefix + `_errors_total{op="` + op + `"}`).Inc()
		return
	}
	if count > 0 {
		c.set.GetOrCreateCounter(c.prefix + `_records_total{op="` + op + `"}`).Add(count)
	}
	c.set.GetOrCreateHistogram(c.prefix + `_duration_seconds{op="` + op + `"}`).Update(duration.Seconds())
}

// RecordCreate implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordCreate(count int, duration time.Duration, err error) {
	c.record("create", count, duration, err)
}

// RecordUpdate implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordUpdate(count int, duration time.Duration, err error) {
	c.record("update", count, duration, err)
}

// RecordDelete implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordDelete(count int, duration time.Duration, err error) {
	c.record("delete", count, duration, err)
}

// RecordSearch implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordSearch(duration time.Duration, err error) {
	c.record("search", 0, duration, err)
}

// RecordReindex implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordReindex(count int, duration time.Duration, err error) {
	c.record("reindex", count, duration, err)
}
