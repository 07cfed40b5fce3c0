package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pallet"
	"github.com/hupe1980/pallet/codec"
)

var jsonCodec = codec.GoJSON{}

func parseRecord(s string) (record, error) {
	var rec record
	if err := jsonCodec.Unmarshal([]byte(s), &rec); err != nil {
		return nil, fmt.Errorf("invalid record %q: %w", s, err)
	}
	return rec, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be a number: %w", err)
	}
	return id, nil
}

// printDoc writes one document as a JSON line.
func printDoc(w io.Writer, doc pallet.Document[record], score *float32) error {
	out := map[string]any{"id": doc.ID, "record": doc.Inner}
	if score != nil {
		out["score"] = *score
	}
	b, err := jsonCodec.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put [json]...",
		Short: "Stores records and prints their ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs := make([]record, len(args))
			for i, arg := range args {
				rec, err := parseRecord(arg)
				if err != nil {
					return err
				}
				recs[i] = rec
			}
			ids, err := a.store.CreateMulti(cmd.Context(), recs)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Reads the record stored under an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			doc, ok, err := a.store.Find(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("record %d not found", id)
			}
			return printDoc(cmd.OutOrStdout(), doc, nil)
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update [id] [json]",
		Short: "Replaces the record stored under an id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := parseRecord(args[1])
			if err != nil {
				return err
			}
			if err := a.store.Update(cmd.Context(), pallet.Document[record]{ID: id, Inner: rec}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "updated", id)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]...",
		Short: "Deletes records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint64, len(args))
			for i, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			if err := a.store.DeleteMulti(cmd.Context(), ids); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", len(ids))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Prints every record in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := a.store.All(cmd.Context())
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if err := printDoc(cmd.OutOrStdout(), doc, nil); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Searches records",
		Long: `Searches records with a query such as

  man AND rating:>8
  title:"old man" -sea
  published:[2020-01-01 TO *]

Unqualified terms search the default fields.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			start := time.Now()
			res, err := a.store.SearchString(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s matches in %s\n", humanize.Comma(int64(res.Count)), time.Since(start).Round(time.Microsecond))
			for i, hit := range res.Hits {
				if limit > 0 && i >= limit {
					break
				}
				if err := printDoc(out, hit.Doc, &hit.Score); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, wrapString("Maximum number of hits to print (0 prints all)"))
	return cmd
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuilds the search index from the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if err := a.store.IndexAll(cmd.Context()); err != nil {
				return err
			}
			n, err := a.store.Len()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %s records in %s\n", humanize.Comma(int64(n)), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints record and index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			n, err := a.store.Len()
			if err != nil {
				return err
			}

			var dbSize int64
			if fi, err := os.Stat(a.db.Path()); err == nil {
				dbSize = fi.Size()
			}

			names, err := a.dir.List(ctx, "")
			if err != nil {
				return err
			}
			var indexSize int64
			for _, name := range names {
				b, err := a.dir.Open(ctx, name)
				if err != nil {
					return err
				}
				indexSize += b.Size()
				_ = b.Close()
			}

			s := a.store.Index().Reader().Searcher()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tree:             %s\n", a.store.Tree().Name())
			fmt.Fprintf(out, "records:          %s\n", humanize.Comma(int64(n)))
			fmt.Fprintf(out, "database size:    %s\n", humanize.Bytes(uint64(dbSize)))
			fmt.Fprintf(out, "index generation: %d\n", s.Generation())
			fmt.Fprintf(out, "index segments:   %d\n", len(s.Segments()))
			fmt.Fprintf(out, "index documents:  %s\n", humanize.Comma(int64(s.NumDocs())))
			fmt.Fprintf(out, "index size:       %s (%d blobs)\n", humanize.Bytes(uint64(indexSize)), len(names))
			return nil
		},
	}
}
