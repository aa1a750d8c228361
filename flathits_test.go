package flathits

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/event"
	"github.com/hupe1980/flathits/hitfile"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/source"
	"github.com/hupe1980/flathits/table"
	"github.com/hupe1980/flathits/testutil"
)

// momentumTable has 20 hits in 4 events of 5 hits; momentumX alternates sign.
func momentumTable() *table.Table {
	n := 20
	px := make([]float64, n)
	py := make([]float64, n)
	pz := make([]float64, n)
	ev := make([]int64, n)
	for i := range n {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		px[i] = sign * float64(i+1) * 0.1
		py[i] = float64(i) * 0.5
		pz[i] = -float64(i)
		ev[i] = int64(i / 5)
	}
	return table.MustNew(
		table.NewFloat64("momentumX", px),
		table.NewFloat64("momentumY", py),
		table.NewFloat64("momentumZ", pz),
		table.NewInt64("EventNumber", ev),
	)
}

func newMomentumHits(t *testing.T, optFns ...Option) *FlatHits {
	t.Helper()
	src := source.NewMemory()
	src.Put("sim.root", "hits", momentumTable())
	f, err := New(context.Background(), src, "sim.root", append([]Option{WithTree("hits")}, optFns...)...)
	require.NoError(t, err)
	return f
}

func cdcSource(t *testing.T, events int) (*source.Memory, *table.Table) {
	t.Helper()
	hits := testutil.NewRNG(42).Hits(testutil.HitSpec{Prefix: "CDCHit.f", Events: events, FirstEvent: 1, MaxHits: 12})
	src := source.NewMemory()
	src.Put("cdc.root", "CDCHitTree", hits)
	return src, hits
}

func TestTrim_MomentumAndEvent(t *testing.T) {
	f := newMomentumHits(t)
	require.Equal(t, 20, f.NHits())
	require.Equal(t, 4, f.NEvents())

	require.NoError(t, f.TrimHits("momentumX", GreaterThan(0)))
	require.NoError(t, f.TrimHits("EventNumber", WithValues(1)))

	px, err := f.Column("momentumX")
	require.NoError(t, err)
	ev, err := f.Column("EventNumber")
	require.NoError(t, err)

	// Event 1 holds rows 5..9; rows 6 and 8 (even index) are positive.
	assert.Equal(t, 2, f.NHits())
	for r := range f.NHits() {
		assert.Greater(t, px.Float64(r), 0.0)
		assert.Equal(t, int64(1), ev.Int64(r))
	}
	assert.Equal(t, []int64{1}, f.EventIDs())
	assert.Equal(t, []int{2}, f.HitCounts())
}

func TestTrim_NothingLeft(t *testing.T) {
	f := newMomentumHits(t)

	require.NoError(t, f.TrimHits("momentumX", GreaterThan(0)))
	err := f.TrimHits("momentumX", LessThan(0))

	var warn *EmptyResultWarning
	require.ErrorAs(t, err, &warn)
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, "trim", warn.Operation)
	assert.Equal(t, 0, f.NHits())
	assert.Equal(t, 0, f.NEvents())
	assert.Empty(t, f.EventIDs())

	events, err := f.GetEvents(event.All())
	require.NoError(t, err)
	assert.Equal(t, 0, events.NumRows())
}

func TestTrim_Idempotent(t *testing.T) {
	f := newMomentumHits(t)

	require.NoError(t, f.TrimHits("momentumY", GreaterThan(3)))
	first := f.Data().Clone()

	require.NoError(t, f.TrimHits("momentumY", GreaterThan(3)))
	testutil.AssertTablesEqual(t, first, f.Data())
	assert.LessOrEqual(t, f.NHits(), 20)
}

func TestFilter_DoesNotMutate(t *testing.T) {
	f := newMomentumHits(t)

	out, err := f.FilterHits("momentumX", GreaterThan(1.0))
	require.NoError(t, err)

	px, err := out.Column("momentumX")
	require.NoError(t, err)
	require.Positive(t, out.NumRows())
	for r := range out.NumRows() {
		assert.Greater(t, px.Float64(r), 1.0)
	}
	assert.Equal(t, 20, f.NHits())
}

func TestFilter_Invert(t *testing.T) {
	f := newMomentumHits(t)

	out, err := f.FilterHits("momentumY", GreaterThan(2), LessThan(6), Invert())
	require.NoError(t, err)

	py, err := out.Column("momentumY")
	require.NoError(t, err)
	require.Positive(t, out.NumRows())
	for r := range out.NumRows() {
		v := py.Float64(r)
		// Negation of the combined mask.
		assert.True(t, v <= 2 || v >= 6, "value %g", v)
	}
}

func TestFilter_WithRows(t *testing.T) {
	f := newMomentumHits(t)

	out, err := f.FilterHits("momentumX", GreaterThan(0), WithRows(0, 1, 2, 3))
	require.NoError(t, err)
	hits, err := out.Column(HitsIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, hits.Int64s())

	out, err = f.FilterHits("momentumX", GreaterThan(0), WithRows(0, 1, 2, 3), Invert())
	require.NoError(t, err)
	hits, err = out.Column(HitsIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, hits.Int64s())

	_, err = f.FilterHits("momentumX", WithRows(25))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFilter_Empty(t *testing.T) {
	f := newMomentumHits(t)

	out, err := f.FilterHits("momentumY", GreaterThan(1000))
	assert.ErrorIs(t, err, ErrEmptyResult)
	require.NotNil(t, out)
	assert.Equal(t, 0, out.NumRows())
	assert.Equal(t, f.Data().Names(), out.Names())
}

func TestFilter_ConfigurationErrors(t *testing.T) {
	src := source.NewMemory()
	src.Put("sim.root", "hits", table.MustNew(
		table.NewInt64("EventNumber", []int64{0, 0, 1}),
		table.NewString("Volume", []string{"a", "b", "a"}),
	))
	f, err := New(context.Background(), src, "sim.root", WithTree("hits"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		column string
		opts   []FilterOption
	}{
		{"unknown column", "Nope", []FilterOption{GreaterThan(1)}},
		{"ordering on string", "Volume", []FilterOption{GreaterThan(1)}},
		{"value type", "EventNumber", []FilterOption{WithValues("a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FilterHits(tt.column, tt.opts...)
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Column)
		})
	}

	out, err := f.FilterHits("Volume", WithValues("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
}

func TestGetEvents(t *testing.T) {
	f := newMomentumHits(t)

	all, err := f.GetEvents(event.All())
	require.NoError(t, err)
	assert.Equal(t, 20, all.NumRows())

	one, err := f.GetEvents(event.ID(2))
	require.NoError(t, err)
	ev, err := one.Column("EventNumber")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2, 2, 2, 2}, ev.Int64s())

	many, err := f.GetEvents(event.IDs(3, 0, 3, 99))
	require.NoError(t, err)
	ev, err = many.Column("EventNumber")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 3, 3, 3, 3, 0, 0, 0, 0, 0, 3, 3, 3, 3, 3}, ev.Int64s())

	m, err := f.GetMeasurement("momentumZ", event.ID(1))
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, -6, -7, -8, -9}, m.Float64s())

	_, err = f.GetMeasurement("nope", event.All())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDerivedColumns(t *testing.T) {
	f := newMomentumHits(t)
	require.NoError(t, f.TrimHits("EventNumber", WithValues(1, 3)))

	idx, err := f.Column(EventIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, idx.Int64s())

	hits, err := f.Column(HitsIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, hits.Int64s())
}

func TestLoad_Geometry(t *testing.T) {
	src, hits := cdcSource(t, 6)

	f, err := New(context.Background(), src, "cdc.root", WithGeometry(catalog.CDC))
	require.NoError(t, err)

	assert.Equal(t, "CDCHit.f", f.Prefix())
	assert.Equal(t, "CDCHit.fEventNumber", f.EventColumn())
	assert.Equal(t, hits.NumRows(), f.NHits())
	assert.Equal(t, 6, f.NEvents())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, f.EventIDs())

	for _, name := range []string{"CDCHit.fEdep", "CDCHit.fPosition", "CDCHit.fEventNumber", "CDCHit.fevent_index", "CDCHit.fhits_index"} {
		assert.True(t, f.Data().Has(name), name)
	}

	// Bare names resolve against the prefix.
	edep, err := f.Column("Edep")
	require.NoError(t, err)
	want, err := hits.Column("CDCHit.fEdep")
	require.NoError(t, err)
	assert.Equal(t, want.Float64s(), edep.Float64s())
}

func TestLoad_Selection(t *testing.T) {
	src, _ := cdcSource(t, 20)

	f, err := New(context.Background(), src, "cdc.root",
		WithGeometry(catalog.CDC),
		WithColumns("MomentumX", "Layer"),
		WithSelection("MomentumX < 0", "Layer > 3"),
	)
	require.NoError(t, err)

	assert.Equal(t, "CDCHit.fMomentumX < 0 && CDCHit.fLayer > 3", f.Selection())
	px, err := f.Column("MomentumX")
	require.NoError(t, err)
	layer, err := f.Column("Layer")
	require.NoError(t, err)
	require.Positive(t, f.NHits())
	for r := range f.NHits() {
		assert.Less(t, px.Float64(r), 0.0)
		assert.Greater(t, layer.Int64(r), int64(3))
	}
}

func TestLoad_EmptyColumns(t *testing.T) {
	f := newMomentumHits(t, WithEmptyColumns(
		catalog.Empty("charge"),
		catalog.EmptyColumn{Name: "cell", Kind: table.KindInt64, Shape: []int{2}},
	))

	charge, err := f.Column("charge")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 20), charge.Float64s())

	cell, err := f.Column("cell")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, cell.Shape())
	assert.Equal(t, make([]int64, 40), cell.Int64s())
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	src := source.NewMemory()
	src.Put("sim.root", "hits", momentumTable())

	tests := []struct {
		name string
		opts []Option
	}{
		{"missing column", []Option{WithTree("hits"), WithColumns("momentumX", "energy")}},
		{"empty column in source", []Option{WithTree("hits"), WithEmptyColumns(catalog.Empty("momentumY"))}},
		{"unsupported relation", []Option{WithTree("hits"), WithSelection("momentumX >= 0")}},
		{"unknown geometry", []Option{WithGeometry("ECAL")}},
		{"no tree", nil},
		{"missing event column", []Option{WithTree("hits"), WithEventColumn("Event")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), src, "sim.root", tt.opts...)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestLoad_DerivedColumnClash(t *testing.T) {
	clash := momentumTable()
	require.NoError(t, clash.AddColumn(table.NewInt64(EventIndexColumn, make([]int64, clash.NumRows()))))
	src := source.NewMemory()
	src.Put("sim.root", "hits", clash)

	_, err := New(context.Background(), src, "sim.root", WithTree("hits"))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, catalog.ErrReservedColumn)

	clean := source.NewMemory()
	clean.Put("sim.root", "hits", momentumTable())
	_, err = New(context.Background(), clean, "sim.root", WithTree("hits"), WithEmptyColumns(catalog.Empty(HitsIndexColumn)))
	assert.ErrorIs(t, err, catalog.ErrReservedColumn)

	f, err := New(context.Background(), src, "sim.root", WithTree("hits"), WithColumns("momentumX"))
	require.NoError(t, err)
	hits, err := f.Column(HitsIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, int64(19), hits.Int64(19))
}

func TestLoad_ReaderErrorsPropagate(t *testing.T) {
	src := source.NewMemory()
	src.Put("sim.root", "hits", momentumTable())

	_, err := New(context.Background(), src, "other.root", WithTree("hits"))
	assert.ErrorIs(t, err, source.ErrFileNotFound)
	assert.NotErrorIs(t, err, ErrConfiguration)

	_, err = New(context.Background(), src, "sim.root", WithTree("nope"))
	assert.ErrorIs(t, err, source.ErrTreeNotFound)
}

func TestSortHits(t *testing.T) {
	f := newMomentumHits(t)

	require.NoError(t, f.SortHits("momentumX", true))

	px, err := f.Column("momentumX")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.3, 0.1, -0.2, -0.4}, px.Float64s()[:5])
	assert.Equal(t, []int64{0, 1, 2, 3}, f.EventIDs())

	hits, err := f.Column(HitsIndexColumn)
	require.NoError(t, err)
	assert.Equal(t, int64(0), hits.Int64(0))

	err = f.SortHits("missing", false)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAddColumn(t *testing.T) {
	src, _ := cdcSource(t, 3)
	f, err := New(context.Background(), src, "cdc.root", WithGeometry(catalog.CDC))
	require.NoError(t, err)

	weights := make([]float64, f.NHits())
	require.NoError(t, f.AddColumn(table.NewFloat64("Weight", weights)))
	assert.True(t, f.Data().Has("CDCHit.fWeight"))

	err = f.AddColumn(table.NewFloat64("Short", []float64{1}))
	assert.ErrorIs(t, err, ErrConfiguration)

	err = f.AddColumn(table.NewFloat64("Weight", weights))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFromConfigAndLoadAll(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(9)
	store := blobstore.NewMemoryStore()
	testutil.MustArchive(t, store, "run1.hit", map[string]*table.Table{
		"CDCHitTree": rng.Hits(testutil.HitSpec{Prefix: "CDCHit.f", Events: 5, MaxHits: 10}),
		"CTHHitTree": rng.Hits(testutil.HitSpec{Prefix: "CTHHit.f", Events: 5, MaxHits: 4}),
	})
	reader := hitfile.NewReader(store)

	file, err := config.Parse([]byte(`
geometries:
  - name: CDC
    path: run1.hit
    selection: Edep > 0.0005
  - name: CTH
    path: run1.hit
    columns: [Edep, Layer]
`))
	require.NoError(t, err)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	all, err := LoadAll(ctx, reader, file.Geometries, WithResourceController(rc))
	require.NoError(t, err)
	require.Len(t, all, 2)

	cdc, cth := all[0], all[1]
	assert.Equal(t, "CDCHit.f", cdc.Prefix())
	assert.Equal(t, "CTHHit.f", cth.Prefix())
	edep, err := cdc.Column("Edep")
	require.NoError(t, err)
	for _, v := range edep.Float64s() {
		assert.Greater(t, v, 0.0005)
	}
	assert.ElementsMatch(t,
		[]string{"CTHHit.fEdep", "CTHHit.fLayer", "CTHHit.fEventNumber", "CTHHit.fevent_index", "CTHHit.fhits_index"},
		cth.Data().Names())

	assert.Positive(t, rc.MemoryUsage())
	for _, f := range all {
		require.NoError(t, f.Close())
	}
	assert.Equal(t, int64(0), rc.MemoryUsage())

	bad := []config.Geometry{{Name: "CDC", Path: "missing.hit"}}
	_, err = LoadAll(ctx, reader, bad)
	assert.ErrorIs(t, err, source.ErrFileNotFound)
}

func TestTrimReleasesMemory(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	f := newMomentumHits(t, WithResourceController(rc))

	before := rc.MemoryUsage()
	require.Positive(t, before)
	require.NoError(t, f.TrimHits("EventNumber", WithValues(0)))
	assert.Less(t, rc.MemoryUsage(), before)

	require.NoError(t, f.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestNew_TableLargerThanMemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	src := source.NewMemory()
	src.Put("sim.root", "hits", momentumTable())

	done := make(chan error, 1)
	go func() {
		_, err := New(context.Background(), src, "sim.root", WithTree("hits"), WithResourceController(rc))
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, resource.ErrMemoryLimit)
		var ce *ConfigurationError
		assert.False(t, errors.As(err, &ce))
	case <-time.After(5 * time.Second):
		t.Fatal("New did not return")
	}
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestMetricsAndLogging(t *testing.T) {
	var buf bytes.Buffer
	mc := &BasicMetricsCollector{}
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := newMomentumHits(t, WithMetricsCollector(mc), WithLogger(logger))
	_, err := f.FilterHits("momentumY", GreaterThan(1000))
	require.True(t, errors.Is(err, ErrEmptyResult))
	require.NoError(t, f.TrimHits("momentumX", GreaterThan(0)))
	_, err = f.GetEvents(event.IDs(0, 1))
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.LoadCount)
	assert.Equal(t, int64(20), stats.LoadedHits)
	assert.Equal(t, int64(1), stats.FilterCount)
	assert.Equal(t, int64(1), stats.FilterEmpty)
	assert.Equal(t, int64(1), stats.TrimCount)
	assert.Equal(t, int64(10), stats.TrimmedHits)
	assert.Equal(t, int64(1), stats.GetEventsCount)
	assert.Equal(t, int64(5), stats.GetEventsHits)

	out := buf.String()
	assert.Contains(t, out, `"msg":"load completed"`)
	assert.Contains(t, out, `"path":"sim.root"`)
	assert.Contains(t, out, `"tree":"hits"`)
}
