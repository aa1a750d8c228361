package flathits

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/event"
	"github.com/hupe1980/flathits/filter"
	"github.com/hupe1980/flathits/loader"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/rowset"
	"github.com/hupe1980/flathits/source"
	"github.com/hupe1980/flathits/table"
)

// Names of the derived columns, appended to the prefix.
const (
	EventIndexColumn = "event_index"
	HitsIndexColumn  = "hits_index"
)

// FlatHits holds the hits of one geometry as a flat table together with an
// index from event identifier to rows.
//
// A FlatHits is owned by one goroutine; it is not safe for concurrent
// mutation.
type FlatHits struct {
	path        string
	tree        string
	prefix      string
	eventColumn string
	selection   string

	data  *table.Table
	index *event.Index

	logger    *Logger
	metrics   MetricsCollector
	resources *resource.Controller
	reserved  int64
}

// New loads a FlatHits from the file at path.
//
// All I/O happens here. Configuration problems (unknown columns, empty
// columns present in the source, unsupported selection relations) are
// reported as *ConfigurationError before any column data is read.
func New(ctx context.Context, reader source.Reader, path string, optFns ...Option) (*FlatHits, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if err := o.applyGeometry(); err != nil {
		return nil, translateError(err)
	}
	if o.tree == "" {
		return nil, configurationError("", "no tree")
	}
	if o.eventColumn == "" {
		o.eventColumn = DefaultEventColumn
	}
	sel, err := o.predicate()
	if err != nil {
		return nil, translateError(err)
	}

	f := &FlatHits{
		path:        path,
		tree:        o.tree,
		prefix:      o.prefix,
		eventColumn: loader.Qualify(o.prefix, o.eventColumn),
		logger:      o.logger.WithSource(path, o.tree),
		metrics:     o.metricsCollector,
		resources:   o.resources,
	}

	start := time.Now()
	res, err := loader.New(reader, loader.WithResourceController(o.resources)).Load(ctx, loader.Request{
		Path:        path,
		Tree:        o.tree,
		Prefix:      o.prefix,
		Columns:     o.columns,
		Empty:       o.empty,
		Selection:   sel,
		EventColumn: o.eventColumn,
		Geometry:    o.geometry,
		Exclusions:  o.exclusions,
		Reserved:    []string{EventIndexColumn, HitsIndexColumn},
	})
	if err == nil {
		f.data = res.Table
		f.reserved = res.Reserved
		f.selection = res.Predicate.String()
		err = f.refresh()
	}
	duration := time.Since(start)
	if err != nil {
		f.Close()
		err = translateError(err)
		f.logger.LogLoad(ctx, sel, 0, 0, duration, err)
		f.metrics.RecordLoad(0, duration, err)
		return nil, err
	}

	f.logger.LogLoad(ctx, f.selection, f.NHits(), f.NEvents(), duration, nil)
	f.metrics.RecordLoad(f.NHits(), duration, nil)
	return f, nil
}

// FromConfig loads the geometry described by g. Options are applied after
// the configuration and override it.
func FromConfig(ctx context.Context, reader source.Reader, g config.Geometry, optFns ...Option) (*FlatHits, error) {
	g = g.WithDefaults()
	if err := g.Validate(); err != nil {
		return nil, translateError(err)
	}
	empty, err := g.EmptyColumns()
	if err != nil {
		return nil, translateError(err)
	}

	base := []Option{
		WithTree(g.Tree),
		WithPrefix(g.Prefix),
		WithEmptyColumns(empty...),
		WithSelection(g.Selection),
		WithEventColumn(g.EventColumn),
		WithExclusions(g.Exclude...),
	}
	if len(g.Columns) > 0 {
		base = append(base, WithColumns(g.Columns...))
	}
	if g.Known() {
		base = append(base, WithGeometry(catalog.Geometry(g.Name)))
	}
	return New(ctx, reader, g.Path, append(base, optFns...)...)
}

// LoadAll loads several geometries concurrently. The instances share
// nothing; the first error cancels the remaining loads.
func LoadAll(ctx context.Context, reader source.Reader, geometries []config.Geometry, optFns ...Option) ([]*FlatHits, error) {
	out := make([]*FlatHits, len(geometries))
	g, gctx := errgroup.WithContext(ctx)
	for i, geom := range geometries {
		g.Go(func() error {
			f, err := FromConfig(gctx, reader, geom, optFns...)
			if err != nil {
				return fmt.Errorf("geometry %q: %w", geom.Name, err)
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range out {
			if f != nil {
				f.Close()
			}
		}
		return nil, err
	}
	return out, nil
}

// Close releases the memory reserved with the resource controller.
// The table stays readable.
func (f *FlatHits) Close() error {
	f.resources.ReleaseMemory(f.reserved)
	f.reserved = 0
	return nil
}

// refresh rebuilds the event index and the derived columns.
func (f *FlatHits) refresh() error {
	ix, err := event.Build(f.data, f.eventColumn)
	if err != nil {
		return err
	}
	hits := make([]int64, f.data.NumRows())
	for i := range hits {
		hits[i] = int64(i)
	}
	derived := []*table.Column{
		table.NewInt64(f.prefix+EventIndexColumn, ix.Positions()),
		table.NewInt64(f.prefix+HitsIndexColumn, hits),
	}
	for _, c := range derived {
		if err := f.data.ReplaceColumn(c); err != nil {
			return err
		}
	}
	f.index = ix
	return nil
}

// release gives back reserved memory the table no longer holds.
func (f *FlatHits) release() {
	if f.reserved == 0 {
		return
	}
	if size := f.data.SizeInBytes(); size < f.reserved {
		f.resources.ReleaseMemory(f.reserved - size)
		f.reserved = size
	}
}

func (f *FlatHits) qualify(column string) string {
	return loader.Qualify(f.prefix, column)
}

// Data returns the table. It is shared, not copied.
func (f *FlatHits) Data() *table.Table { return f.data }

// Prefix returns the column name prefix.
func (f *FlatHits) Prefix() string { return f.prefix }

// EventColumn returns the qualified name of the event column.
func (f *FlatHits) EventColumn() string { return f.eventColumn }

// Selection returns the load-time selection in canonical form.
func (f *FlatHits) Selection() string { return f.selection }

// NHits returns the number of hits.
func (f *FlatHits) NHits() int { return f.data.NumRows() }

// NEvents returns the number of distinct events.
func (f *FlatHits) NEvents() int { return f.index.Len() }

// EventIDs returns the event identifiers in order of first appearance.
func (f *FlatHits) EventIDs() []int64 { return f.index.IDs() }

// HitCounts returns the number of hits of each event, aligned with EventIDs.
func (f *FlatHits) HitCounts() []int { return f.index.HitCounts() }

// Column returns a column by bare or prefixed name.
func (f *FlatHits) Column(name string) (*table.Column, error) {
	c, err := f.data.Column(f.qualify(name))
	if err != nil {
		return nil, translateColumnError(name, err)
	}
	return c, nil
}

// GetEvents returns the hits of the selected events as a new table.
//
// event.All() returns every hit grouped by event. Explicit identifiers are
// concatenated in the given order; repeated identifiers repeat their hits
// and absent identifiers contribute nothing.
func (f *FlatHits) GetEvents(sel event.Selector) (*table.Table, error) {
	start := time.Now()
	out, err := f.data.Take(f.index.Rows(sel))
	if err != nil {
		return nil, translateError(err)
	}
	f.metrics.RecordGetEvents(out.NumRows(), time.Since(start))
	return out, nil
}

// GetMeasurement returns one column restricted to the selected events.
func (f *FlatHits) GetMeasurement(name string, sel event.Selector) (*table.Column, error) {
	name = f.qualify(name)
	if !f.data.Has(name) {
		return nil, translateColumnError(name, fmt.Errorf("%w: %q", table.ErrColumnNotFound, name))
	}
	events, err := f.GetEvents(sel)
	if err != nil {
		return nil, err
	}
	return events.Column(name)
}

func (f *FlatHits) evaluate(column string, optFns []FilterOption) (*rowset.Set, filter.Spec, error) {
	var o filterOptions
	for _, fn := range optFns {
		fn(&o)
	}
	col, err := f.data.Column(column)
	if err != nil {
		return nil, o.spec, err
	}
	var these *rowset.Set
	if o.set {
		for _, r := range o.rows {
			if r < 0 || r >= f.NHits() {
				return nil, o.spec, fmt.Errorf("%w: %d not in [0, %d)", table.ErrRowOutOfRange, r, f.NHits())
			}
		}
		these = rowset.Of(o.rows...)
	}
	rows, err := filter.EvaluateRows(col, o.spec, these)
	return rows, o.spec, err
}

// FilterHits returns the hits whose column value satisfies the filter, as a
// new table. The FlatHits is not modified.
//
// A filter matching nothing returns an empty table and a
// *EmptyResultWarning.
func (f *FlatHits) FilterHits(column string, optFns ...FilterOption) (*table.Table, error) {
	start := time.Now()
	column = f.qualify(column)
	rows, spec, err := f.evaluate(column, optFns)
	if err != nil {
		err = translateColumnError(column, err)
		f.logger.LogFilter(context.Background(), column, spec.String(), f.NHits(), 0, err)
		f.metrics.RecordFilter(f.NHits(), 0, time.Since(start), err)
		return nil, err
	}

	out := f.data.Filter(rows)
	f.logger.LogFilter(context.Background(), column, spec.String(), f.NHits(), out.NumRows(), nil)
	f.metrics.RecordFilter(f.NHits(), out.NumRows(), time.Since(start), nil)
	if out.NumRows() == 0 {
		return out, &EmptyResultWarning{Operation: "filter", Column: column, Filter: spec.String()}
	}
	return out, nil
}

// TrimHits removes, in place, every hit whose column value fails the
// filter. The event index and derived columns are rebuilt. Trimming twice
// with the same filter is a no-op the second time.
//
// A trim removing every hit leaves a valid empty table and returns a
// *EmptyResultWarning.
func (f *FlatHits) TrimHits(column string, optFns ...FilterOption) error {
	start := time.Now()
	column = f.qualify(column)
	before := f.NHits()
	rows, spec, err := f.evaluate(column, optFns)
	if err == nil {
		f.data.Retain(rows)
		err = f.refresh()
	}
	if err != nil {
		err = translateColumnError(column, err)
		f.logger.LogTrim(context.Background(), column, spec.String(), before, f.NHits(), err)
		f.metrics.RecordTrim(0, time.Since(start), err)
		return err
	}
	f.release()

	after := f.NHits()
	f.logger.LogTrim(context.Background(), column, spec.String(), before, after, nil)
	f.metrics.RecordTrim(before-after, time.Since(start), nil)
	if after == 0 {
		return &EmptyResultWarning{Operation: "trim", Column: column, Filter: spec.String()}
	}
	return nil
}

// SortHits orders the hits of each event by column, keeping the event
// order. Ties keep their current relative order. Events become contiguous.
func (f *FlatHits) SortHits(column string, descending bool) error {
	column = f.qualify(column)
	col, err := f.data.Column(column)
	if err != nil {
		return translateColumnError(column, err)
	}
	if !col.IsScalar() {
		return translateColumnError(column, fmt.Errorf("%w: %q has shape %v", filter.ErrNotScalar, column, col.Shape()))
	}

	compare := func(a, b int) int {
		switch col.Kind() {
		case table.KindInt64:
			return cmp.Compare(col.Int64(a), col.Int64(b))
		case table.KindFloat64:
			return cmp.Compare(col.Float64(a), col.Float64(b))
		default:
			return cmp.Compare(col.Str(a), col.Str(b))
		}
	}

	perm := make([]int, 0, f.NHits())
	for _, id := range f.index.IDs() {
		rows := f.index.Group(id)
		slices.SortStableFunc(rows, func(a, b int) int {
			if descending {
				return compare(b, a)
			}
			return compare(a, b)
		})
		perm = append(perm, rows...)
	}
	if err := f.data.Reorder(perm); err != nil {
		return translateError(err)
	}
	return translateError(f.refresh())
}

// AddColumn appends a column with one value per hit. A bare name gets the
// prefix.
func (f *FlatHits) AddColumn(c *table.Column) error {
	if name := f.qualify(c.Name()); name != c.Name() {
		c = c.WithName(name)
	}
	if c.Len() != f.NHits() {
		return translateColumnError(c.Name(), fmt.Errorf("%w: %d values for %d hits", table.ErrLengthMismatch, c.Len(), f.NHits()))
	}
	return translateColumnError(c.Name(), f.data.AddColumn(c))
}
