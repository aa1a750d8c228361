// Package rowset provides boolean row masks over a flat table.
//
// A Set is a Roaring Bitmap of row positions. Filters and selections produce
// sets; the table consumes them to gather or retain rows. Positions are
// always iterated in ascending order, which keeps source row order intact.
package rowset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Set is a set of row positions.
type Set struct {
	rb *roaring.Bitmap
}

// New creates an empty set.
func New() *Set {
	return &Set{rb: roaring.New()}
}

// Of creates a set holding the given positions.
func Of(rows ...int) *Set {
	s := New()
	for _, r := range rows {
		s.Add(r)
	}
	return s
}

// Range creates a set holding [0, n).
func Range(n int) *Set {
	s := New()
	if n > 0 {
		s.rb.AddRange(0, uint64(n))
	}
	return s
}

// Add adds a row position.
func (s *Set) Add(row int) {
	s.rb.Add(uint32(row)) //nolint:gosec
}

// Remove removes a row position.
func (s *Set) Remove(row int) {
	s.rb.Remove(uint32(row)) //nolint:gosec
}

// Contains reports whether the row is in the set.
func (s *Set) Contains(row int) bool {
	if row < 0 {
		return false
	}
	return s.rb.Contains(uint32(row)) //nolint:gosec
}

// Len returns the number of rows in the set.
func (s *Set) Len() int {
	return int(s.rb.GetCardinality()) //nolint:gosec
}

// IsEmpty returns true if the set is empty.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// And intersects s with other in place.
func (s *Set) And(other *Set) {
	s.rb.And(other.rb)
}

// Or unions s with other in place.
func (s *Set) Or(other *Set) {
	s.rb.Or(other.rb)
}

// AndNot removes every row of other from s.
func (s *Set) AndNot(other *Set) {
	s.rb.AndNot(other.rb)
}

// Invert complements s within the universe [0, n).
// Rows at or beyond n are dropped.
func (s *Set) Invert(n int) {
	if n <= 0 {
		s.rb.Clear()
		return
	}
	s.rb.Flip(0, uint64(n))
	s.rb.RemoveRange(uint64(n), uint64(1)<<32)
}

// Rows returns the positions in ascending order.
func (s *Set) Rows() []int {
	out := make([]int, 0, s.Len())
	it := s.rb.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// All returns an iterator over the positions in ascending order.
func (s *Set) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}

// Mask expands the set into a dense boolean mask of length n.
func (s *Set) Mask(n int) []bool {
	mask := make([]bool, n)
	it := s.rb.Iterator()
	for it.HasNext() {
		r := int(it.Next())
		if r >= n {
			break
		}
		mask[r] = true
	}
	return mask
}

// FromMask builds a set from a dense boolean mask.
func FromMask(mask []bool) *Set {
	s := New()
	for i, ok := range mask {
		if ok {
			s.Add(i)
		}
	}
	return s
}
