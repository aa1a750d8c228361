// Package cache keeps decoded hit file blocks in memory.
//
// LRU is bounded by a byte capacity and, when given a resource.Controller,
// by the controller's global memory limit. Keys carry the block checksum,
// so entries never go stale when a file is rewritten under the same path.
package cache
