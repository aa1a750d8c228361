// Package source defines the structured file reader consumed by the loader.
//
// A Reader lists the columns of a tree and materializes selected columns
// under a pushed-down selection string. Implementations return errors from
// the underlying storage unchanged.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/table"
)

var (
	// ErrFileNotFound is returned when no file exists at the path.
	ErrFileNotFound = errors.New("source: file not found")

	// ErrTreeNotFound is returned when the file has no tree with the name.
	ErrTreeNotFound = errors.New("source: tree not found")
)

// Reader reads flat trees from structured files.
type Reader interface {
	// ListColumns returns the column names of a tree in catalog order.
	ListColumns(ctx context.Context, path, tree string) ([]string, error)

	// ReadTable reads columns from a tree, keeping the rows that satisfy the
	// selection string ("c1 r1 v1 && c2 r2 v2", relations <, > and ==).
	// The result preserves source row order and holds exactly columns, in
	// that order. Columns referenced only by the selection are not returned.
	ReadTable(ctx context.Context, path, tree string, columns []string, selection string) (*table.Table, error)
}

// Project applies a selection to a full tree and projects the result onto
// columns. Readers that hold whole trees in memory share this path.
func Project(tree *table.Table, columns []string, sel string) (*table.Table, error) {
	pred, err := selection.Parse(sel)
	if err != nil {
		return nil, err
	}
	rows, err := pred.Evaluate(tree)
	if err != nil {
		return nil, err
	}
	projected, err := tree.Select(columns...)
	if err != nil {
		return nil, err
	}
	return projected.Filter(rows), nil
}

// Memory is an in-memory Reader keyed by path and tree name.
// It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string]map[string]*table.Table
}

// NewMemory creates an empty in-memory reader.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]map[string]*table.Table)}
}

// Put stores a copy of t as tree in the file at path.
func (m *Memory) Put(path, tree string, t *table.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[path]
	if !ok {
		f = make(map[string]*table.Table)
		m.files[path] = f
	}
	f[tree] = t.Clone()
}

func (m *Memory) tree(path, tree string) (*table.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	t, ok := f[tree]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrTreeNotFound, tree, path)
	}
	return t, nil
}

// ListColumns implements Reader.
func (m *Memory) ListColumns(ctx context.Context, path, tree string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.tree(path, tree)
	if err != nil {
		return nil, err
	}
	return t.Names(), nil
}

// ReadTable implements Reader.
func (m *Memory) ReadTable(ctx context.Context, path, tree string, columns []string, sel string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.tree(path, tree)
	if err != nil {
		return nil, err
	}
	// Filter always copies, so callers never alias the stored tree.
	return Project(t, columns, sel)
}
