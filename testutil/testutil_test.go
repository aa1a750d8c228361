package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/hitfile"
	"github.com/hupe1980/flathits/table"
)

func TestHits(t *testing.T) {
	rng := NewRNG(4711)

	hits := rng.Hits(HitSpec{Prefix: "CDCHit.f", Events: 5, FirstEvent: 10, MaxHits: 8})

	require.True(t, hits.Has("CDCHit.fEventNumber"))
	ids, err := hits.Column("CDCHit.fEventNumber")
	require.NoError(t, err)

	// Events are contiguous and ascending from FirstEvent.
	seen := map[int64]bool{}
	prev := int64(-1)
	for _, id := range ids.Int64s() {
		if id != prev {
			assert.False(t, seen[id], "event %d is not contiguous", id)
			seen[id] = true
			prev = id
		}
	}
	assert.Len(t, seen, 5)
	assert.True(t, seen[10])
	assert.True(t, seen[14])

	pos, err := hits.Column("CDCHit.fPosition")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, pos.Shape())
	assert.Equal(t, hits.NumRows(), pos.Len())

	edep, err := hits.Column("CDCHit.fEdep")
	require.NoError(t, err)
	for _, v := range edep.Float64s() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	h1 := rng.Hits(HitSpec{Events: 3, MaxHits: 4})

	rng.Reset()
	h2 := rng.Hits(HitSpec{Events: 3, MaxHits: 4})

	AssertTablesEqual(t, h1, h2)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestArchive(t *testing.T) {
	rng := NewRNG(7)
	hits := rng.Hits(HitSpec{Prefix: "CTHHit.f", Events: 4, MaxHits: 6})
	store := blobstore.NewMemoryStore()

	MustArchive(t, store, "sim.hit", map[string]*table.Table{"CTHHitTree": hits}, hitfile.WithCompression(hitfile.CompressionLZ4))

	got, err := hitfile.NewReader(store).ReadTable(context.Background(), "sim.hit", "CTHHitTree", hits.Names(), "")
	require.NoError(t, err)
	AssertTablesEqual(t, hits, got)
}

func TestAssertTablesEqualDetectsDifferences(t *testing.T) {
	a := table.MustNew(table.NewFloat64("x", []float64{1, 2}))
	b := table.MustNew(table.NewFloat64("x", []float64{1, 3}))

	rec := &recorder{}
	assert.False(t, AssertTablesEqual(rec, a, b))
	assert.True(t, rec.failed)
	assert.True(t, AssertTablesEqual(t, a, a.Clone()))

	ints := table.MustNew(table.NewInt64("x", []int64{1, 2}))
	rec = &recorder{}
	assert.False(t, AssertTablesEqual(rec, a, ints))
	assert.True(t, rec.failed)
}

type recorder struct{ failed bool }

func (r *recorder) Errorf(string, ...any) { r.failed = true }
func (r *recorder) Helper()              {}
