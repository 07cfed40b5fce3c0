// Package s3 stores an index directory in an Amazon S3 bucket (or any
// S3-compatible endpoint reachable through aws-sdk-go-v2).
//
// # Usage
//
//	dir, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/books/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	store, err := pallet.Open[Book](ctx, pallet.Config{DB: db, Directory: dir})
//
// S3 offers no cross-client locking. When several processes may write the
// same prefix, guard it with a DynamoDB lock table:
//
//	locker, err := s3.NewDynamoDBLocker(ctx, "pallet-locks", "s3://my-bucket/indexes/books")
//	dir = blobstore.WithLocker(dir, locker)
package s3
