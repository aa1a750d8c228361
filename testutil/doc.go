// Package testutil provides testing utilities for flathits.
//
// This package is intended for use in tests only. It generates
// reproducible hit trees, writes them as hit files and compares tables.
//
// # Hit Generation
//
//	rng := testutil.NewRNG(seed)
//	hits := rng.Hits(testutil.HitSpec{Prefix: "CDCHit.f", Events: 10, MaxHits: 20})
//
// # Archives
//
//	store := blobstore.NewMemoryStore()
//	testutil.MustArchive(t, store, "sim.hit", map[string]*table.Table{"CDCHitTree": hits})
//
// # Comparison
//
//	testutil.AssertTablesEqual(t, want, got)
package testutil
