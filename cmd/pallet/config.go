package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/pallet"
	"github.com/hupe1980/pallet/blobstore"
	miniostore "github.com/hupe1980/pallet/blobstore/minio"
	"github.com/hupe1980/pallet/blobstore/s3"
	"github.com/hupe1980/pallet/codec"
	"github.com/hupe1980/pallet/index"
	"github.com/hupe1980/pallet/tree"
)

// loadConfig reads .env files, the environment, the config file and the
// flags of cmd into v. Flags win over the environment, which wins over the
// config file.
func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("pallet")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func parseLogLevel(s string) (*pallet.Logger, error) {
	switch strings.ToLower(s) {
	case "", "off", "none":
		return pallet.NoopLogger(), nil
	case "debug":
		return pallet.NewTextLogger(slog.LevelDebug), nil
	case "info":
		return pallet.NewTextLogger(slog.LevelInfo), nil
	case "warn":
		return pallet.NewTextLogger(slog.LevelWarn), nil
	case "error":
		return pallet.NewTextLogger(slog.LevelError), nil
	}
	return nil, fmt.Errorf("invalid log level %q", s)
}

// openDirectory resolves the index location. s3://bucket/prefix and
// minio://endpoint/bucket/prefix select object storage, anything else is a
// local directory. Object storage is guarded by a DynamoDB writer lock when
// lock-table is set.
func openDirectory(ctx context.Context, v *viper.Viper, loc string) (blobstore.Store, error) {
	u, err := url.Parse(loc)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		if u != nil && u.Scheme == "file" {
			loc = u.Path
		}
		return blobstore.NewLocalStore(loc)
	}

	var dir blobstore.Store
	switch u.Scheme {
	case "s3":
		var opts []s3.Option
		opts = append(opts, s3.WithPrefix(strings.TrimPrefix(u.Path, "/")))
		if r := v.GetString("s3-region"); r != "" {
			opts = append(opts, s3.WithRegion(r))
		}
		if e := v.GetString("s3-endpoint"); e != "" {
			opts = append(opts, s3.WithEndpoint(e, true))
		}
		if dir, err = s3.New(ctx, u.Host, opts...); err != nil {
			return nil, err
		}
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("minio location %q has no bucket", loc)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(v.GetString("minio-access-key"), v.GetString("minio-secret-key"), ""),
			Secure: v.GetBool("minio-secure"),
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		store := miniostore.NewStore(client, bucket, prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket %s: %w", bucket, err)
		}
		dir = store
	default:
		return nil, fmt.Errorf("unsupported index location scheme %q", u.Scheme)
	}

	table := v.GetString("lock-table")
	if table == "" {
		return dir, nil
	}
	lockOpts := []s3.LockOption{s3.WithLease(v.GetDuration("lock-lease"))}
	if r := v.GetString("s3-region"); r != "" {
		lockOpts = append(lockOpts, s3.WithLockRegion(r))
	}
	locker, err := s3.NewDynamoDBLocker(ctx, table, loc, lockOpts...)
	if err != nil {
		return nil, err
	}
	return blobstore.WithLocker(dir, locker), nil
}

// openStore opens the database and the store described by v.
func (a *app) openStore(ctx context.Context) error {
	var specs []fieldSpec
	if err := a.v.UnmarshalKey("fields", &specs); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	mapping, err := newMapping(specs)
	if err != nil {
		return err
	}

	c, ok := codec.ByName(a.v.GetString("codec"))
	if !ok {
		return fmt.Errorf("unknown codec %q (valid: %s)", a.v.GetString("codec"), strings.Join(codec.Names(), ", "))
	}
	logger, err := parseLogLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	compression, err := index.ParseCompression(a.v.GetString("compression"))
	if err != nil {
		return err
	}

	dir, err := openDirectory(ctx, a.v, a.v.GetString("index"))
	if err != nil {
		return err
	}
	db, err := tree.OpenDB(a.v.GetString("db"), 5*time.Second)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.v.GetString("db"), err)
	}

	a.metrics = pallet.NewVictoriaMetricsCollector("pallet")
	store, err := pallet.OpenMapping(ctx, pallet.Config{
		DB:            db,
		Directory:     dir,
		TreeName:      a.v.GetString("tree"),
		Codec:         c,
		Logger:        logger,
		Metrics:       a.metrics,
		IndexSettings: index.Settings{Compression: compression},
	}, mapping)
	if err != nil {
		_ = db.Close()
		return err
	}
	a.db, a.dir, a.store = db, dir, store
	return nil
}

// close releases the store and the database. It is safe to call when
// nothing was opened.
func (a *app) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.db != nil {
		if cerr := a.db.Close(); err == nil {
			err = cerr
		}
		a.db = nil
	}
	return err
}
