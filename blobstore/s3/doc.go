// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "detector-runs", "mc5/")
//	hits := hitfile.NewReader(store)
//
// # Features
//
//   - Range reads so only the requested column blocks are fetched
//   - Multipart uploads for large hit files
//   - Concurrent whole-object downloads via Fetch
//   - Automatic pagination for listing
package s3
