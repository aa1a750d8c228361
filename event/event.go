// Package event groups flat hit rows into events.
//
// An Index maps each event identifier, read from a designated column, to the
// set of row positions holding that identifier. The index is derived from a
// table snapshot; any change to the table's rows requires a rebuild.
package event

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/flathits/rowset"
	"github.com/hupe1980/flathits/table"
)

var (
	// ErrNotInteger is returned when the event column holds non-integral values.
	ErrNotInteger = errors.New("event: identifier is not an integer")

	// ErrBadColumn is returned when the event column is not a numeric scalar column.
	ErrBadColumn = errors.New("event: unusable event column")
)

// Selector chooses which events to retrieve. The zero value selects every
// event; an explicit empty list selects none.
type Selector struct {
	explicit bool
	ids      []int64
}

// All selects every event. It equals the zero Selector.
func All() Selector { return Selector{} }

// ID selects a single event.
func ID(id int64) Selector { return Selector{explicit: true, ids: []int64{id}} }

// IDs selects several events; blocks are returned in this order and repeated
// identifiers produce repeated blocks.
func IDs(ids ...int64) Selector {
	cp := make([]int64, len(ids))
	copy(cp, ids)
	return Selector{explicit: true, ids: cp}
}

// Range selects events 0 .. n-1.
func Range(n int) Selector {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return Selector{explicit: true, ids: ids}
}

// IsAll reports whether the selector selects every event.
func (s Selector) IsAll() bool { return !s.explicit }

// Identifiers returns the selected identifiers; nil for All.
func (s Selector) Identifiers() []int64 {
	if !s.explicit {
		return nil
	}
	cp := make([]int64, len(s.ids))
	copy(cp, s.ids)
	return cp
}

// String renders the selector for logs.
func (s Selector) String() string {
	if !s.explicit {
		return "all"
	}
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Index maps event identifiers to row positions.
type Index struct {
	column string
	rows   int

	// order lists identifiers by first appearance in the table.
	order  []int64
	groups map[int64]*rowset.Set
	// position is the dense event position (index into order) of each row.
	position []int64
}

// Build derives an index from the event column of t.
func Build(t *table.Table, column string) (*Index, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	if !col.IsScalar() || !col.Kind().Numeric() {
		return nil, fmt.Errorf("%w: %q is %s with shape %v", ErrBadColumn, column, col.Kind(), col.Shape())
	}

	n := t.NumRows()
	ix := &Index{
		column:   column,
		rows:     n,
		groups:   make(map[int64]*rowset.Set),
		position: make([]int64, n),
	}
	slot := make(map[int64]int64)

	for r := 0; r < n; r++ {
		id, err := identifier(col, r)
		if err != nil {
			return nil, err
		}
		g, ok := ix.groups[id]
		if !ok {
			g = rowset.New()
			ix.groups[id] = g
			slot[id] = int64(len(ix.order))
			ix.order = append(ix.order, id)
		}
		g.Add(r)
		ix.position[r] = slot[id]
	}
	return ix, nil
}

func identifier(col *table.Column, r int) (int64, error) {
	if col.Kind() == table.KindInt64 {
		return col.Int64s()[r], nil
	}
	f := col.Float64s()[r]
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: row %d of %q holds %g", ErrNotInteger, r, col.Name(), f)
	}
	return int64(f), nil
}

// Column returns the name of the event column.
func (ix *Index) Column() string { return ix.column }

// NumRows returns the number of rows the index was built over.
func (ix *Index) NumRows() int { return ix.rows }

// Len returns the number of distinct events.
func (ix *Index) Len() int { return len(ix.order) }

// IDs returns the event identifiers in order of first appearance.
func (ix *Index) IDs() []int64 {
	out := make([]int64, len(ix.order))
	copy(out, ix.order)
	return out
}

// Contains reports whether any row carries the identifier.
func (ix *Index) Contains(id int64) bool {
	_, ok := ix.groups[id]
	return ok
}

// HitCounts returns the number of rows of each event, aligned with IDs.
func (ix *Index) HitCounts() []int {
	out := make([]int, len(ix.order))
	for i, id := range ix.order {
		out[i] = ix.groups[id].Len()
	}
	return out
}

// Positions returns the dense event position (0 .. Len()-1) of every row.
func (ix *Index) Positions() []int64 {
	out := make([]int64, len(ix.position))
	copy(out, ix.position)
	return out
}

// Group returns the rows of one event in ascending order; empty if absent.
func (ix *Index) Group(id int64) []int {
	g, ok := ix.groups[id]
	if !ok {
		return []int{}
	}
	return g.Rows()
}

// Rows returns the row positions selected by s.
//
// For All, rows are grouped by event, events ordered by first appearance.
// For explicit identifiers, the blocks are concatenated in the selector's
// order; absent identifiers contribute nothing.
func (ix *Index) Rows(s Selector) []int {
	if !s.explicit {
		out := make([]int, 0, ix.rows)
		for _, id := range ix.order {
			out = append(out, ix.groups[id].Rows()...)
		}
		return out
	}
	var out []int
	for _, id := range s.ids {
		if g, ok := ix.groups[id]; ok {
			out = append(out, g.Rows()...)
		}
	}
	if out == nil {
		out = []int{}
	}
	return out
}

// Set returns the rows selected by s as a set. Repeated identifiers collapse.
func (ix *Index) Set(s Selector) *rowset.Set {
	out := rowset.New()
	if !s.explicit {
		return rowset.Range(ix.rows)
	}
	for _, id := range s.ids {
		if g, ok := ix.groups[id]; ok {
			out.Or(g)
		}
	}
	return out
}
