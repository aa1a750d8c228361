package cache

import "context"

// Key identifies a decoded block. CRC ties the entry to the block content,
// so a rewritten file never serves stale data.
type Key struct {
	Path   string
	Offset int64
	CRC    uint32
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The caller must treat b as immutable afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
