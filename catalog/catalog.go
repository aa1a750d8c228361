// Package catalog resolves which source columns a load reads.
//
// A request is either All, meaning every available column minus an
// auto-exclusion denylist, or an explicit list honored verbatim. Declared
// empty columns are appended for synthesis instead of being read.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/flathits/table"
)

// All requests every available column.
const All = "all"

var (
	// ErrColumnNotFound is returned when an explicitly requested column is not in the catalog.
	ErrColumnNotFound = errors.New("catalog: column not found in source")

	// ErrEmptyColumnConflict is returned when a declared empty column exists in the source.
	ErrEmptyColumnConflict = errors.New("catalog: empty column exists in source")

	// ErrReservedColumn is returned when a resolved column uses a reserved name.
	ErrReservedColumn = errors.New("catalog: column name is reserved")

	// ErrUnknownGeometry is returned for geometries without a registered denylist.
	ErrUnknownGeometry = errors.New("catalog: unknown geometry")
)

// Geometry names a detector subsystem.
type Geometry string

const (
	// CDC is the cylindrical drift chamber.
	CDC Geometry = "CDC"
	// CTH is the cherenkov trigger hodoscope.
	CTH Geometry = "CTH"
)

// Layout describes where a geometry's hits live in a source file.
type Layout struct {
	Tree        string
	Prefix      string
	EventColumn string
}

// layouts and exclusions are fixed at init and never mutated.
var layouts = map[Geometry]Layout{
	CDC: {Tree: "CDCHitTree", Prefix: "CDCHit.f", EventColumn: "CDCHit.fEventNumber"},
	CTH: {Tree: "CTHHitTree", Prefix: "CTHHit.f", EventColumn: "CTHHit.fEventNumber"},
}

// Columns that are auto-populated or duplicated per hit.
var exclusions = map[Geometry][]string{
	CDC: {
		"CDCHit.fDetectedTime",
		"CDCHit.fCharge",
		"CDCHit.fEventNumber",
		"CDCHit.fIsSig",
	},
	CTH: {
		"CTHHit.fMCPos.fE",
		"CTHHit.fCharge",
		"CTHHit.fEventNumber",
		"CTHHit.fIsSig",
	},
}

// Geometries returns the registered geometries.
func Geometries() []Geometry {
	return []Geometry{CDC, CTH}
}

// LayoutOf returns the source layout of a geometry.
func LayoutOf(g Geometry) (Layout, error) {
	l, ok := layouts[g]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownGeometry, g)
	}
	return l, nil
}

// Exclusions returns a copy of the auto-exclusion denylist of a geometry.
func Exclusions(g Geometry) ([]string, error) {
	ex, ok := exclusions[g]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGeometry, g)
	}
	return slices.Clone(ex), nil
}

// EmptyColumn declares a column synthesized as zeros.
type EmptyColumn struct {
	Name  string
	Kind  table.Kind
	Shape []int
}

// Empty declares a scalar float64 empty column.
func Empty(name string) EmptyColumn {
	return EmptyColumn{Name: name, Kind: table.KindFloat64}
}

// Resolution is the outcome of resolving a request.
type Resolution struct {
	// Read lists the columns to read from the source, in order.
	Read []string
	// Empty lists the columns to synthesize, in declaration order.
	Empty []EmptyColumn
}

// Names returns every resolved column name: read columns then empty columns.
func (r Resolution) Names() []string {
	out := slices.Clone(r.Read)
	for _, e := range r.Empty {
		out = append(out, e.Name)
	}
	return out
}

// Resolver resolves column requests against a source catalog.
// A Resolver is immutable after construction.
type Resolver struct {
	excluded []string
	required []string
	reserved []string
	empty    []EmptyColumn
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExclusions adds patterns to the auto-exclusion denylist. A column is
// excluded when its name contains any pattern.
func WithExclusions(patterns ...string) Option {
	return func(r *Resolver) {
		r.excluded = append(r.excluded, patterns...)
	}
}

// WithRequired names columns that are always read, even under All after
// exclusion. Typically the event column.
func WithRequired(columns ...string) Option {
	return func(r *Resolver) {
		r.required = append(r.required, columns...)
	}
}

// WithReserved names columns the caller derives after loading. Resolving
// any of them, read or empty, is an error.
func WithReserved(columns ...string) Option {
	return func(r *Resolver) {
		r.reserved = append(r.reserved, columns...)
	}
}

// WithEmpty declares empty columns.
func WithEmpty(columns ...EmptyColumn) Option {
	return func(r *Resolver) {
		for _, c := range columns {
			c.Shape = slices.Clone(c.Shape)
			if c.Kind == table.KindInvalid {
				c.Kind = table.KindFloat64
			}
			r.empty = append(r.empty, c)
		}
	}
}

// NewResolver creates a resolver.
func NewResolver(optFns ...Option) *Resolver {
	r := &Resolver{}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// ForGeometry creates a resolver with the geometry's denylist and event column.
func ForGeometry(g Geometry, optFns ...Option) (*Resolver, error) {
	ex, err := Exclusions(g)
	if err != nil {
		return nil, err
	}
	layout, _ := LayoutOf(g)
	base := []Option{WithExclusions(ex...), WithRequired(layout.EventColumn)}
	return NewResolver(append(base, optFns...)...), nil
}

// IsAll reports whether requested asks for every column.
func IsAll(requested []string) bool {
	return len(requested) == 0 || (len(requested) == 1 && requested[0] == All)
}

// Excluded reports whether a column matches the denylist.
func (r *Resolver) Excluded(column string) bool {
	for _, p := range r.excluded {
		if strings.Contains(column, p) {
			return true
		}
	}
	return false
}

// Resolve resolves requested against the available columns.
//
// A nil request or the single entry All selects available minus excluded
// columns, in catalog order. Any other request is honored verbatim with
// duplicates removed. Required columns are appended when missing.
func (r *Resolver) Resolve(requested, available []string) (Resolution, error) {
	catalog := make(map[string]struct{}, len(available))
	for _, c := range available {
		catalog[c] = struct{}{}
	}

	for _, e := range r.empty {
		if _, ok := catalog[e.Name]; ok {
			return Resolution{}, fmt.Errorf("%w: %q", ErrEmptyColumnConflict, e.Name)
		}
	}

	seen := make(map[string]struct{})
	for _, e := range r.empty {
		// Empty columns are synthesized, never read.
		seen[e.Name] = struct{}{}
	}
	var read []string
	add := func(c string) {
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		read = append(read, c)
	}

	if IsAll(requested) {
		for _, c := range available {
			if !r.Excluded(c) {
				add(c)
			}
		}
	} else {
		for _, c := range requested {
			if _, isEmpty := seen[c]; isEmpty {
				continue
			}
			if _, ok := catalog[c]; !ok {
				return Resolution{}, fmt.Errorf("%w: %q", ErrColumnNotFound, c)
			}
			add(c)
		}
	}

	for _, c := range r.required {
		if _, ok := catalog[c]; !ok {
			return Resolution{}, fmt.Errorf("%w: required column %q", ErrColumnNotFound, c)
		}
		add(c)
	}

	for _, c := range r.reserved {
		if _, ok := seen[c]; ok {
			return Resolution{}, fmt.Errorf("%w: %q", ErrReservedColumn, c)
		}
	}

	return Resolution{Read: read, Empty: slices.Clone(r.empty)}, nil
}
