package loader

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/source"
	"github.com/hupe1980/flathits/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	path   = "run.hits"
	tree   = "CDCHitTree"
	prefix = "CDCHit.f"
)

func newReader() *source.Memory {
	r := source.NewMemory()
	r.Put(path, tree, table.MustNew(
		table.NewInt64("CDCHit.fEventNumber", []int64{0, 0, 1, 1, 2}),
		table.NewFloat64("CDCHit.fEdep", []float64{1, -1, 2, 0, 3}),
		table.NewFloat64("CDCHit.fDetectedTime", []float64{10, 11, 12, 13, 14}),
		table.NewInt64("CDCHit.fCharge", []int64{5, 6, 7, 8, 9}),
		table.NewInt64("CDCHit.fIsSig", []int64{1, 0, 1, 0, 1}),
	))
	return r
}

type countingReader struct {
	source.Reader
	lists, reads int
}

func (r *countingReader) ListColumns(ctx context.Context, p, t string) ([]string, error) {
	r.lists++
	return r.Reader.ListColumns(ctx, p, t)
}

func (r *countingReader) ReadTable(ctx context.Context, p, t string, cols []string, sel string) (*table.Table, error) {
	r.reads++
	return r.Reader.ReadTable(ctx, p, t, cols, sel)
}

func TestLoad_AllWithGeometryExclusions(t *testing.T) {
	l := New(newReader())

	res, err := l.Load(context.Background(), Request{
		Path:     path,
		Tree:     tree,
		Prefix:   prefix,
		Geometry: catalog.CDC,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CDCHit.fEdep", "CDCHit.fEventNumber"}, res.Table.Names())
	assert.Equal(t, 5, res.Table.NumRows())
	assert.Zero(t, res.Reserved)
}

func TestLoad_ExplicitBareAndPrefixedNames(t *testing.T) {
	l := New(newReader())

	res, err := l.Load(context.Background(), Request{
		Path:        path,
		Tree:        tree,
		Prefix:      prefix,
		Columns:     []string{"Charge", "CDCHit.fEdep", "Charge"},
		EventColumn: "EventNumber",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CDCHit.fCharge", "CDCHit.fEdep", "CDCHit.fEventNumber"}, res.Table.Names())
}

func TestLoad_SelectionAndEmptyColumns(t *testing.T) {
	l := New(newReader())

	res, err := l.Load(context.Background(), Request{
		Path:      path,
		Tree:      tree,
		Prefix:    prefix,
		Columns:   []string{"Edep", "EventNumber"},
		Selection: "Edep > 0 && EventNumber < 2",
		Empty: []catalog.EmptyColumn{
			catalog.Empty("Weight"),
			{Name: "Cell", Kind: table.KindInt64, Shape: []int{2}},
		},
	})
	require.NoError(t, err)

	tbl := res.Table
	assert.Equal(t, []string{"CDCHit.fEdep", "CDCHit.fEventNumber", "CDCHit.fWeight", "CDCHit.fCell"}, tbl.Names())
	assert.Equal(t, 2, tbl.NumRows())

	edep, err := tbl.Column("CDCHit.fEdep")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, edep.Float64s())

	weight, err := tbl.Column("CDCHit.fWeight")
	require.NoError(t, err)
	assert.Equal(t, table.KindFloat64, weight.Kind())
	assert.Equal(t, []float64{0, 0}, weight.Float64s())

	cell, err := tbl.Column("CDCHit.fCell")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, cell.Shape())
	assert.Equal(t, []int64{0, 0, 0, 0}, cell.Int64s())

	assert.Equal(t, "CDCHit.fEdep > 0 && CDCHit.fEventNumber < 2", res.Predicate.String())
}

func TestLoad_SelectionRejectingEverything(t *testing.T) {
	l := New(newReader())

	res, err := l.Load(context.Background(), Request{
		Path:      path,
		Tree:      tree,
		Prefix:    prefix,
		Columns:   []string{"Edep"},
		Selection: "Edep > 100",
		Empty:     []catalog.EmptyColumn{catalog.Empty("Weight")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.NumRows())
	assert.Equal(t, []string{"CDCHit.fEdep", "CDCHit.fWeight"}, res.Table.Names())
}

func TestLoad_ErrorsBeforeReading(t *testing.T) {
	cases := []struct {
		name  string
		req   Request
		want  error
		lists int
	}{
		{
			name: "unsupported relation",
			req:  Request{Selection: "Edep >= 1"},
			want: selection.ErrUnsupportedRelation,
		},
		{
			name:  "missing column",
			req:   Request{Columns: []string{"Nope"}},
			want:  catalog.ErrColumnNotFound,
			lists: 1,
		},
		{
			name:  "empty column conflict",
			req:   Request{Columns: []string{"Edep"}, Empty: []catalog.EmptyColumn{catalog.Empty("Charge")}},
			want:  catalog.ErrEmptyColumnConflict,
			lists: 1,
		},
		{
			name:  "missing event column",
			req:   Request{Columns: []string{"Edep"}, EventColumn: "Event"},
			want:  catalog.ErrColumnNotFound,
			lists: 1,
		},
		{
			name: "unknown geometry",
			req:  Request{Geometry: "ECAL"},
			want: catalog.ErrUnknownGeometry,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &countingReader{Reader: newReader()}
			req := tc.req
			req.Path, req.Tree, req.Prefix = path, tree, prefix

			_, err := New(r).Load(context.Background(), req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.lists, r.lists)
			assert.Zero(t, r.reads)
		})
	}
}

func TestLoad_ReaderErrorsPropagate(t *testing.T) {
	l := New(newReader())

	_, err := l.Load(context.Background(), Request{Path: "other.hits", Tree: tree})
	assert.ErrorIs(t, err, source.ErrFileNotFound)

	_, err = l.Load(context.Background(), Request{Path: path, Tree: "CTHHitTree"})
	assert.ErrorIs(t, err, source.ErrTreeNotFound)
}

func TestLoad_ResourceAccounting(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	l := New(newReader(), WithResourceController(rc))

	res, err := l.Load(context.Background(), Request{Path: path, Tree: tree, Columns: []string{"CDCHit.fEdep"}})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Reserved)
	assert.Equal(t, int64(40), rc.MemoryUsage())
	assert.True(t, rc.TryAcquireLoad(), "load slot must be released")
}

func TestLoad_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	l := New(newReader(), WithResourceController(rc))

	done := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), Request{Path: path, Tree: tree, Columns: []string{"CDCHit.fEdep"}})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, resource.ErrMemoryLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not return")
	}
	assert.Equal(t, int64(0), rc.MemoryUsage())
	assert.True(t, rc.TryAcquireLoad(), "load slot must be released")
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "CDCHit.fEdep", Qualify(prefix, "Edep"))
	assert.Equal(t, "CDCHit.fEdep", Qualify(prefix, "CDCHit.fEdep"))
	assert.Equal(t, "Edep", Qualify("", "Edep"))
}
