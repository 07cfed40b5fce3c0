package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/pallet"
	"github.com/hupe1980/pallet/blobstore"
	"github.com/hupe1980/pallet/codec"
)

const (
	Version = "0.1.0"

	// wrap is the number of characters to wrap the help text at
	wrap = 50
)

// app holds the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	db      *bolt.DB
	dir     blobstore.Store
	store   *pallet.Store[record]
	metrics *pallet.VictoriaMetricsCollector
}

func newApp() *app { return &app{v: viper.New()} }

// newRootCmd builds the command tree. The caller closes a after Execute,
// also when the command failed.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pallet",
		Short: "searchable document store",
		Long: fmt.Sprintf(`pallet (v%s)

An embedded document store that keeps JSON records in a bbolt file
and a full-text search index next to them.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(a.v, cmd); err != nil {
				return err
			}
			return a.openStore(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.v.GetBool("metrics") && a.metrics != nil {
				a.metrics.WritePrometheus(cmd.ErrOrStderr())
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", wrapString("YAML config file declaring tree, fields and any flag below"))
	flags.String("db", "pallet.db", wrapString("Path of the bbolt database file"))
	flags.String("index", "pallet.idx", wrapString("Index location: a directory, s3://bucket/prefix or minio://endpoint/bucket/prefix"))
	flags.String("tree", "records", wrapString("Name of the record tree"))
	flags.String("codec", "msgpack", wrapString("Record codec ("+strings.Join(codec.Names(), ", ")+")"))
	flags.String("compression", "zstd", wrapString("Segment compression (zstd, lz4, none)"))
	flags.String("log-level", "off", wrapString("Log level (debug, info, warn, error, off)"))
	flags.Bool("metrics", false, wrapString("Write Prometheus metrics to stderr after the command"))
	flags.String("s3-region", "", wrapString("AWS region for s3:// index locations"))
	flags.String("s3-endpoint", "", wrapString("S3-compatible endpoint for s3:// index locations"))
	flags.String("minio-access-key", "", wrapString("Access key for minio:// index locations"))
	flags.String("minio-secret-key", "", wrapString("Secret key for minio:// index locations"))
	flags.Bool("minio-secure", false, wrapString("Use TLS for minio:// index locations"))
	flags.String("lock-table", "", wrapString("DynamoDB table holding the writer lock of s3:// and minio:// index locations"))
	flags.Duration("lock-lease", 0, wrapString("Age after which an unreleased DynamoDB writer lock may be taken over (0 keeps it)"))

	root.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newReindexCmd(a),
		newStatsCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pallet",
		// no store needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pallet v%s\n", Version)
		},
	}
}

// wrapString wraps a string at wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return strings.Join(lines, "\n")
}
