// Package hitfile implements a columnar container for flat hit trees.
//
// # File Layout
//
//	+----------------------+ 0
//	| header (64 bytes)    |
//	+----------------------+ 64
//	| column block         | [uncompressed u32][compressed u32][payload]
//	| column block         |
//	| ...                  |
//	+----------------------+ dirOffset
//	| directory            | codec-encoded, CRC32 protected
//	+----------------------+
//
// A file holds one or more trees. Each tree is a set of equally long
// columns; every column is stored as one block, compressed with zstd or lz4
// unless compression does not pay off. The directory records, per column,
// its kind, element shape, block location, checksum and min/max for numeric
// columns.
//
// Reader implements source.Reader on top of a blobstore.BlobStore. It fetches
// only the blocks of requested and selection columns and skips the block
// reads entirely when the column statistics prove the selection empty.
//
// Files wrapped in xz (e.g. archived "run042.hits.xz") are detected by magic
// and decompressed transparently.
package hitfile
