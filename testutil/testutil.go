package testutil

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/hitfile"
	"github.com/hupe1980/flathits/table"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Column names produced by Hits, without prefix.
const (
	EventNumber = "EventNumber"
	Edep        = "Edep"
	MomentumX   = "MomentumX"
	MomentumY   = "MomentumY"
	MomentumZ   = "MomentumZ"
	Layer       = "Layer"
	Volume      = "Volume"
	Position    = "Position"
)

// HitSpec describes a generated hit tree.
type HitSpec struct {
	Prefix string
	// Events is the number of events; identifiers count up from FirstEvent.
	Events     int
	FirstEvent int64
	// MaxHits bounds the hits per event. Every event has at least one hit.
	MaxHits int
	// Layers bounds the Layer column. Default: 18.
	Layers int
}

// Hits generates a hit tree with events stored contiguously.
//
// Edep is exponential with mean 1e-3, momenta are standard normal, Layer is
// uniform in [0, Layers), Volume names the layer and Position is a
// three-vector.
func (r *RNG) Hits(spec HitSpec) *table.Table {
	if spec.MaxHits < 1 {
		spec.MaxHits = 1
	}
	if spec.Layers < 1 {
		spec.Layers = 18
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		ids      []int64
		edep     []float64
		px       []float64
		py       []float64
		pz       []float64
		layers   []int64
		volumes  []string
		position []float64
	)
	for e := range spec.Events {
		n := 1 + r.rand.Intn(spec.MaxHits)
		for range n {
			layer := r.rand.Intn(spec.Layers)
			ids = append(ids, spec.FirstEvent+int64(e))
			edep = append(edep, r.rand.ExpFloat64()*1e-3)
			px = append(px, r.rand.NormFloat64())
			py = append(py, r.rand.NormFloat64())
			pz = append(pz, r.rand.NormFloat64())
			layers = append(layers, int64(layer))
			volumes = append(volumes, volumeName(layer))
			position = append(position, r.rand.NormFloat64(), r.rand.NormFloat64(), r.rand.Float64()*100)
		}
	}

	pos, err := table.NewShapedFloat64(spec.Prefix+Position, []int{3}, position)
	if err != nil {
		panic(err)
	}
	return table.MustNew(
		table.NewInt64(spec.Prefix+EventNumber, ids),
		table.NewFloat64(spec.Prefix+Edep, edep),
		table.NewFloat64(spec.Prefix+MomentumX, px),
		table.NewFloat64(spec.Prefix+MomentumY, py),
		table.NewFloat64(spec.Prefix+MomentumZ, pz),
		table.NewInt64(spec.Prefix+Layer, layers),
		table.NewString(spec.Prefix+Volume, volumes),
		pos,
	)
}

func volumeName(layer int) string {
	if layer%2 == 0 {
		return "sense"
	}
	return "field"
}

// Archive writes trees to store as a hit file named name.
func Archive(ctx context.Context, store blobstore.BlobStore, name string, trees map[string]*table.Table, optFns ...hitfile.WriterOption) error {
	w := hitfile.NewWriter(optFns...)
	for tree, t := range trees {
		if err := w.AddTree(tree, t); err != nil {
			return err
		}
	}
	return w.Save(ctx, store, name)
}

// MustArchive is like Archive but fails the test on error.
func MustArchive(t testing.TB, store blobstore.BlobStore, name string, trees map[string]*table.Table, optFns ...hitfile.WriterOption) {
	t.Helper()
	require.NoError(t, Archive(context.Background(), store, name, trees, optFns...))
}

// TestingT is the subset of testing.TB used by the assertions.
type TestingT interface {
	assert.TestingT
	Helper()
}

// AssertTablesEqual checks that two tables have equal Arrow schemas and the
// same values row by row. NaN equals NaN.
func AssertTablesEqual(t TestingT, want, got *table.Table) bool {
	t.Helper()
	if !assert.Equal(t, want.Names(), got.Names(), "column names") {
		return false
	}
	if !assert.Equal(t, want.NumRows(), got.NumRows(), "rows") {
		return false
	}
	if !assert.True(t, want.Schema().Equal(got.Schema()), "schema: want %s, got %s", want.Schema(), got.Schema()) {
		return false
	}
	ok := true
	for i, w := range want.Columns() {
		g := got.Columns()[i]
		for r := range want.NumRows() {
			if w.Format(r) != g.Format(r) {
				ok = assert.Fail(t, "values differ", "column %q row %d: want %s, got %s", w.Name(), r, w.Format(r), g.Format(r)) && ok
				break
			}
		}
	}
	return ok
}
