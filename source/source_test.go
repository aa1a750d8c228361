package source

import (
	"context"
	"testing"

	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReader(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("a.root", "CDCHitTree", table.MustNew(
		table.NewFloat64("x", []float64{-1, 2, -3}),
		table.NewInt64("ev", []int64{0, 0, 1}),
	))

	cols, err := m.ListColumns(ctx, "a.root", "CDCHitTree")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "ev"}, cols)

	got, err := m.ReadTable(ctx, "a.root", "CDCHitTree", []string{"ev"}, "x < 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"ev"}, got.Names())
	ev, _ := got.Column("ev")
	assert.Equal(t, []int64{0, 1}, ev.Int64s())

	// Mutating the result leaves the stored tree alone.
	ev.Int64s()[0] = 99
	again, err := m.ReadTable(ctx, "a.root", "CDCHitTree", []string{"ev"}, "")
	require.NoError(t, err)
	ev2, _ := again.Column("ev")
	assert.Equal(t, []int64{0, 0, 1}, ev2.Int64s())
}

func TestMemoryReaderErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("a.root", "T", table.MustNew(table.NewFloat64("x", []float64{1})))

	_, err := m.ListColumns(ctx, "b.root", "T")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = m.ListColumns(ctx, "a.root", "U")
	assert.ErrorIs(t, err, ErrTreeNotFound)

	_, err = m.ReadTable(ctx, "a.root", "T", []string{"x"}, "x <= 1")
	assert.ErrorIs(t, err, selection.ErrUnsupportedRelation)

	_, err = m.ReadTable(ctx, "a.root", "T", []string{"y"}, "")
	assert.ErrorIs(t, err, table.ErrColumnNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.ReadTable(cancelled, "a.root", "T", []string{"x"}, "")
	assert.ErrorIs(t, err, context.Canceled)
}
