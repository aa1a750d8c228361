// Package loader materializes flat hit tables from a source.Reader.
//
// A load parses the selection, resolves the requested columns against the
// tree's catalog, reads the resolved columns with the selection pushed down
// and synthesizes declared empty columns as zeros.
package loader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/source"
	"github.com/hupe1980/flathits/table"
)

// Request describes one load.
type Request struct {
	// Path identifies the file within the reader.
	Path string
	// Tree is the tree to read.
	Tree string
	// Prefix is prepended to bare column names.
	Prefix string
	// Columns lists the columns to read. Nil or []string{catalog.All}
	// selects every column not matched by an exclusion.
	Columns []string
	// Empty declares columns to synthesize as zeros.
	Empty []catalog.EmptyColumn
	// Selection is the load-time predicate, e.g. "fEdep > 0 && fEventNumber == 1".
	Selection string
	// EventColumn is always read when set.
	EventColumn string
	// Geometry adds the geometry's denylist when set.
	Geometry catalog.Geometry
	// Exclusions adds denylist patterns applied under catalog.All.
	Exclusions []string
	// Reserved names columns the caller adds after loading; resolving one
	// is a catalog.ErrReservedColumn error.
	Reserved []string
}

// Qualify prefixes name unless it already carries the prefix.
func Qualify(prefix, name string) string {
	if prefix == "" || strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

func (r Request) qualified(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Qualify(r.Prefix, n)
	}
	return out
}

// Result is a loaded table.
type Result struct {
	Table      *table.Table
	Resolution catalog.Resolution
	Predicate  selection.Predicate
	// Reserved is the memory reserved with the resource controller.
	// The owner releases it when the table is dropped.
	Reserved int64
}

// Loader loads tables from a reader.
type Loader struct {
	reader source.Reader
	rc     *resource.Controller
}

// Option configures a Loader.
type Option func(*Loader)

// WithResourceController bounds concurrent loads and accounts table memory.
func WithResourceController(rc *resource.Controller) Option {
	return func(l *Loader) {
		l.rc = rc
	}
}

// New creates a loader.
func New(reader source.Reader, optFns ...Option) *Loader {
	l := &Loader{reader: reader}
	for _, fn := range optFns {
		fn(l)
	}
	return l
}

func (l *Loader) resolver(req Request) (*catalog.Resolver, error) {
	empty := make([]catalog.EmptyColumn, len(req.Empty))
	for i, e := range req.Empty {
		e.Name = Qualify(req.Prefix, e.Name)
		empty[i] = e
	}
	optFns := []catalog.Option{
		catalog.WithExclusions(req.Exclusions...),
		catalog.WithEmpty(empty...),
		catalog.WithReserved(req.qualified(req.Reserved)...),
	}
	if req.EventColumn != "" {
		optFns = append(optFns, catalog.WithRequired(Qualify(req.Prefix, req.EventColumn)))
	}
	if req.Geometry != "" {
		return catalog.ForGeometry(req.Geometry, optFns...)
	}
	return catalog.NewResolver(optFns...), nil
}

// Load performs a load. Configuration errors are reported before any
// column data is read.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	pred, err := selection.Parse(req.Selection)
	if err != nil {
		return nil, err
	}
	pred = pred.WithPrefix(req.Prefix)

	res, err := l.resolver(req)
	if err != nil {
		return nil, err
	}

	if err := l.rc.AcquireLoad(ctx); err != nil {
		return nil, err
	}
	defer l.rc.ReleaseLoad()

	available, err := l.reader.ListColumns(ctx, req.Path, req.Tree)
	if err != nil {
		return nil, err
	}

	requested := req.Columns
	if !catalog.IsAll(requested) {
		requested = req.qualified(requested)
	}
	resolution, err := res.Resolve(requested, available)
	if err != nil {
		return nil, err
	}

	t, err := l.reader.ReadTable(ctx, req.Path, req.Tree, resolution.Read, pred.String())
	if err != nil {
		return nil, err
	}
	if got := t.Names(); !slices.Equal(got, resolution.Read) {
		return nil, fmt.Errorf("loader: reader returned columns %v, want %v", got, resolution.Read)
	}

	for _, e := range resolution.Empty {
		c, err := table.Zeros(e.Name, e.Kind, e.Shape, t.NumRows())
		if err != nil {
			return nil, fmt.Errorf("loader: empty column %q: %w", e.Name, err)
		}
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}

	reserved := t.SizeInBytes()
	if err := l.rc.ReserveMemory(reserved); err != nil {
		return nil, fmt.Errorf("loader: %s: %w", req.Tree, err)
	}
	if l.rc == nil {
		reserved = 0
	}

	return &Result{
		Table:      t,
		Resolution: resolution,
		Predicate:  pred,
		Reserved:   reserved,
	}, nil
}
