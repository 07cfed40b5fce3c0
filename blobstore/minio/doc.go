// Package minio stores an index directory in MinIO or any other
// S3-compatible object store through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	dir := minioblob.NewStore(client, "indexes", "books/")
package minio
