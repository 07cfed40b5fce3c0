// Package pallet provides an embedded, searchable document store for Go.
//
// Records of any serializable type are kept in a bbolt tree under
// increasing uint64 identifiers, and a projection of each record is kept in
// a full-text search index. Every write changes both inside one tree
// transaction, with the index commit as its last step.
//
// # Quick Start
//
// A record type describes its own projection:
//
//	type Book struct {
//	    Title  string
//	    Rating uint64
//	}
//
//	func (Book) IndexFields(b *index.SchemaBuilder) (index.Fields, error) {
//	    b.AddTextField("title", index.TEXT)
//	    b.AddU64Field("rating", index.INDEXED|index.FAST)
//	    return b.Fields(), nil
//	}
//
//	func (Book) DefaultSearchFields(f index.Fields) []index.Field {
//	    return []index.Field{f.MustNamed("title")}
//	}
//
//	func (b Book) IndexDocument(f index.Fields) (*index.Document, error) {
//	    return index.NewDocument().
//	        AddText(f.MustNamed("title"), b.Title).
//	        AddU64(f.MustNamed("rating"), b.Rating), nil
//	}
//
// Open a store and use it:
//
//	db, _ := tree.OpenDB("books.db", time.Second)
//	store, _ := pallet.Open[Book](ctx, pallet.Config{
//	    DB:       db,
//	    IndexDir: "./books.idx",
//	    TreeName: "books",
//	})
//	defer store.Close()
//
//	id, _ := store.Create(ctx, Book{Title: "The Old Man and the Sea", Rating: 10})
//	res, _ := store.SearchString(ctx, "man AND rating:>8")
//
// # Index Location
//
// IndexDir keeps the index on local disk. Config.Directory accepts any
// blobstore.Store instead, e.g. blobstore/s3 or blobstore/minio.
//
// # Custom Searches
//
// SearchWith runs any index.Collector and hands its result to a function:
//
//	n, _ := pallet.SearchWith(ctx, store, pallet.Params[int, int]{
//	    Query:     pallet.Text("sea"),
//	    Collector: index.Count(),
//	    Handler:   func(n int) (int, error) { return n, nil },
//	})
//
// # Consistency
//
// A failed write leaves both the tree and the index unchanged. When the
// process dies between the index commit and the tree commit, the index may
// reference records that do not exist; searches skip them and IndexAll
// removes them.
package pallet
