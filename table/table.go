// Package table implements the in-memory flat hit table.
//
// A Table is an ordered sequence of rows over a fixed set of named, typed
// columns, stored as an Arrow record. Column names are resolved to positions
// once, when the record is assembled.
package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hupe1980/flathits/rowset"
)

var (
	// ErrColumnNotFound is returned when a column name is not part of the table.
	ErrColumnNotFound = errors.New("table: column not found")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("table: duplicate column")

	// ErrLengthMismatch is returned when columns have different row counts.
	ErrLengthMismatch = errors.New("table: column length mismatch")

	// ErrShape is returned for invalid element shapes.
	ErrShape = errors.New("table: invalid shape")

	// ErrInvalidKind is returned for unknown column kinds.
	ErrInvalidKind = errors.New("table: invalid kind")

	// ErrRowOutOfRange is returned when a row position is outside the table.
	ErrRowOutOfRange = errors.New("table: row out of range")

	// ErrNullValues is returned when an Arrow array holds nulls.
	ErrNullValues = errors.New("table: null values")
)

// Table is a flat, columnar table of hits backed by an arrow.Record.
//
// Thread safety: a Table is not safe for concurrent mutation.
type Table struct {
	rec     arrow.Record
	columns []*Column
	index   map[string]int
}

// assemble builds the record for already validated columns.
func assemble(columns []*Column, rows int) *Table {
	fields := make([]arrow.Field, len(columns))
	arrs := make([]arrow.Array, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		fields[i] = c.Field()
		arrs[i] = c.arr
		index[c.name] = i
	}
	rec := array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(rows))
	return &Table{rec: rec, columns: columns, index: index}
}

// swap replaces the contents of t with out and releases the old record.
func (t *Table) swap(out *Table) {
	old := t.rec
	*t = *out
	if old != nil {
		old.Release()
	}
}

// New builds a table from columns. All columns must have the same row count
// and distinct names. Column order is preserved.
func New(columns ...*Column) (*Table, error) {
	rows := 0
	if len(columns) > 0 {
		rows = columns[0].Len()
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.name)
		}
		seen[c.name] = struct{}{}
		if c.Len() != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, table has %d", ErrLengthMismatch, c.name, c.Len(), rows)
		}
	}
	return assemble(append([]*Column(nil), columns...), rows), nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// FromRecord wraps an Arrow record. Field names become column names.
func FromRecord(rec arrow.Record) (*Table, error) {
	columns := make([]*Column, 0, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		c, err := FromArray(f.Name, rec.Column(i))
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	if len(columns) == 0 {
		return assemble(nil, int(rec.NumRows())), nil
	}
	return New(columns...)
}

// Record returns the Arrow record holding the table. The record is retained
// for the caller, who must Release it.
func (t *Table) Record() arrow.Record {
	t.rec.Retain()
	return t.rec
}

// Schema returns the Arrow schema of the table.
func (t *Table) Schema() *arrow.Schema { return t.rec.Schema() }

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if t.rec == nil {
		return 0
	}
	return int(t.rec.NumRows())
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// Columns returns the columns in table order. The slice is a copy; the
// columns are shared.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether the table has a column with this name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

// AddColumn appends a column. The first column of an empty table fixes the
// row count.
func (t *Table) AddColumn(c *Column) error {
	if _, dup := t.index[c.name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.name)
	}
	rows := t.NumRows()
	if len(t.columns) == 0 {
		rows = c.Len()
	} else if c.Len() != rows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d", ErrLengthMismatch, c.name, c.Len(), rows)
	}
	columns := append(t.Columns(), c)
	t.swap(assemble(columns, rows))
	return nil
}

// ReplaceColumn swaps the column with the same name for c, or appends c.
func (t *Table) ReplaceColumn(c *Column) error {
	i, ok := t.index[c.name]
	if !ok {
		return t.AddColumn(c)
	}
	rows := t.NumRows()
	if len(t.columns) == 1 {
		rows = c.Len()
	} else if c.Len() != rows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d", ErrLengthMismatch, c.name, c.Len(), rows)
	}
	columns := t.Columns()
	columns[i] = c
	t.swap(assemble(columns, rows))
	return nil
}

// Select returns a table holding only the named columns, in the given order.
// Columns are shared with t.
func (t *Table) Select(names ...string) (*Table, error) {
	columns := make([]*Column, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = struct{}{}
		columns = append(columns, c)
	}
	return assemble(columns, t.NumRows()), nil
}

// Take gathers the given rows into a new table. Rows may repeat and appear
// in any order; the result follows the order of rows.
func (t *Table) Take(rows []int) (*Table, error) {
	n := t.NumRows()
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, r, n)
		}
	}
	columns := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		columns[i] = c.take(rows)
	}
	return assemble(columns, len(rows)), nil
}

// Filter returns a new table holding the rows in s, in ascending order.
func (t *Table) Filter(s *rowset.Set) *Table {
	n := t.NumRows()
	rows := make([]int, 0, s.Len())
	for r := range s.All() {
		if r >= n {
			break
		}
		rows = append(rows, r)
	}
	out, _ := t.Take(rows) // rows are bounded above
	return out
}

// Retain keeps only the rows in s, in place. Row order is preserved.
// Retained values are copied into fresh arrays so that columns shared with
// other tables are never modified.
func (t *Table) Retain(s *rowset.Set) {
	t.swap(t.Filter(s))
}

// Reorder permutes the rows in place; perm[i] is the source row of row i.
func (t *Table) Reorder(perm []int) error {
	if len(perm) != t.NumRows() {
		return fmt.Errorf("%w: permutation of length %d for %d rows", ErrLengthMismatch, len(perm), t.NumRows())
	}
	out, err := t.Take(perm)
	if err != nil {
		return err
	}
	t.swap(out)
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out, _ := t.Take(rowset.Range(t.NumRows()).Rows())
	return out
}

// WithPrefix returns a table whose column names carry prefix. Names that
// already start with prefix are kept. Columns share storage with t.
func (t *Table) WithPrefix(prefix string) *Table {
	columns := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		name := c.name
		if !strings.HasPrefix(name, prefix) {
			name = prefix + name
		}
		columns[i] = c.WithName(name)
	}
	return assemble(columns, t.NumRows())
}

// SizeInBytes estimates the memory held by the table values.
func (t *Table) SizeInBytes() int64 {
	var n int64
	for _, c := range t.columns {
		n += c.SizeInBytes()
	}
	return n
}
