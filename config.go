package pallet

import (
	"context"
	"runtime"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/codec"
	"github.com/hupe1980/pallet/index"
)

const (
	// DefaultIDFieldName is the name of the reserved identifier field.
	DefaultIDFieldName = "__id__"
	// DefaultWriterMemoryBudget bounds the documents an index writer buffers
	// before flushing.
	DefaultWriterMemoryBudget = 128_000_000
)

// WriterAccessor acquires the index writer for one write call. The Store
// closes the writer when the call ends.
type WriterAccessor func(ctx context.Context, idx *index.Index) (*index.Writer, error)

// DefaultWriterAccessor waits for the writer with DefaultWriterMemoryBudget.
func DefaultWriterAccessor(ctx context.Context, idx *index.Index) (*index.Writer, error) {
	return idx.Writer(ctx, DefaultWriterMemoryBudget)
}

// DefaultIndexConfiguration enables multithreaded search over GOMAXPROCS
// workers.
func DefaultIndexConfiguration(idx *index.Index) error {
	return idx.SetDefaultMultithreadExecutor()
}

// Config configures a Store.
type Config struct {
	// DB holds the record trees. Required. The Store does not close it.
	DB *bolt.DB
	// IndexDir is the local directory of the search index. Required unless
	// Directory is set.
	IndexDir string
	// Directory overrides IndexDir with any blob store, e.g. S3 or MinIO.
	Directory blobstore.Store
	// TreeName names the record tree. Defaults to the name the record type
	// provides; one of both is required.
	TreeName string
	// IDFieldName names the reserved identifier field. Defaults to
	// DefaultIDFieldName.
	IDFieldName string
	// WriterAccessor defaults to DefaultWriterAccessor.
	WriterAccessor WriterAccessor
	// IndexConfiguration runs once after the index is opened. Defaults to
	// DefaultIndexConfiguration.
	IndexConfiguration func(*index.Index) error
	// IndexSettings tune the search index.
	IndexSettings index.Settings
	// Codec serializes records. Defaults to codec.Default.
	Codec codec.Codec
	// BatchWrites coalesces concurrent write calls into shared tree
	// transactions.
	BatchWrites bool
	// FetchConcurrency bounds the parallel record fetches of a search.
	// Defaults to GOMAXPROCS.
	FetchConcurrency int
	// Logger defaults to NoopLogger.
	Logger *Logger
	// Metrics defaults to NoopMetricsCollector.
	Metrics MetricsCollector
}

// Validate reports the first missing required option as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.DB == nil:
		return &ConfigError{Field: "db"}
	case c.IndexDir == "" && c.Directory == nil:
		return &ConfigError{Field: "index_dir"}
	case c.TreeName == "":
		return &ConfigError{Field: "tree_name"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.IDFieldName == "" {
		c.IDFieldName = DefaultIDFieldName
	}
	if c.WriterAccessor == nil {
		c.WriterAccessor = DefaultWriterAccessor
	}
	if c.IndexConfiguration == nil {
		c.IndexConfiguration = DefaultIndexConfiguration
	}
	if c.Codec == nil {
		c.Codec = codec.Default
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = NoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetricsCollector{}
	}
	if c.IndexSettings.Logger == nil {
		c.IndexSettings.Logger = c.Logger.Logger
	}
	return c
}
