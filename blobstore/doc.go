// Package blobstore provides storage abstraction for hit files.
//
// BlobStore is the interface for reading and writing immutable data blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap support
//   - MemoryStore: In-memory, for tests
//   - s3.Store: Amazon S3 with range reads
//   - minio.Store: MinIO and other S3-compatible services
//   - Throttled: wraps any store with an IO rate limit
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
