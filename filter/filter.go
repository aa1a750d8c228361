// Package filter evaluates value-set and bound predicates over table columns.
//
// A Spec combines up to three criteria on one column: membership in a value
// set, an exclusive lower bound and an exclusive upper bound. Present
// criteria are joined with AND; absent criteria are the identity. Invert
// negates the combined mask, never the individual criteria.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/flathits/rowset"
	"github.com/hupe1980/flathits/table"
)

var (
	// ErrNotOrderable is returned when bounds are applied to a non-numeric column.
	ErrNotOrderable = errors.New("filter: column is not orderable")

	// ErrNotScalar is returned when filtering a column whose rows hold arrays.
	ErrNotScalar = errors.New("filter: column is not scalar")

	// ErrValueType is returned when a value in the set does not fit the column kind.
	ErrValueType = errors.New("filter: value type does not match column")
)

// Spec describes a filter on one column.
type Spec struct {
	// Values is the allowed value set. Nil means "any value".
	// An empty non-nil set matches nothing.
	Values []any
	// GreaterThan is the exclusive lower bound, if set.
	GreaterThan *float64
	// LessThan is the exclusive upper bound, if set.
	LessThan *float64
	// Invert negates the combined mask.
	Invert bool
}

// Bound returns a pointer to v, for use in Spec bounds.
func Bound(v float64) *float64 { return &v }

// IsNoop reports whether the spec keeps every row.
func (s Spec) IsNoop() bool {
	return s.Values == nil && s.GreaterThan == nil && s.LessThan == nil && !s.Invert
}

// String renders the spec for logs.
func (s Spec) String() string {
	out := ""
	if s.Values != nil {
		out += fmt.Sprintf("in %v", s.Values)
	}
	if s.GreaterThan != nil {
		if out != "" {
			out += " && "
		}
		out += fmt.Sprintf("> %g", *s.GreaterThan)
	}
	if s.LessThan != nil {
		if out != "" {
			out += " && "
		}
		out += fmt.Sprintf("< %g", *s.LessThan)
	}
	if out == "" {
		out = "all"
	}
	if s.Invert {
		out = "not (" + out + ")"
	}
	return out
}

// Validate checks that s can be applied to c without scanning rows.
func (s Spec) Validate(c *table.Column) error {
	_, err := compile(c, s)
	return err
}

// Evaluate returns the rows of c that satisfy s.
func Evaluate(c *table.Column, s Spec) (*rowset.Set, error) {
	return EvaluateRows(c, s, nil)
}

// EvaluateRows is like Evaluate but only considers the rows in these.
// A nil set means every row. Inversion is taken within these.
func EvaluateRows(c *table.Column, s Spec, these *rowset.Set) (*rowset.Set, error) {
	m, err := compile(c, s)
	if err != nil {
		return nil, err
	}

	n := c.Len()
	out := rowset.New()
	if these == nil {
		for r := 0; r < n; r++ {
			if m.match(r) != s.Invert {
				out.Add(r)
			}
		}
		return out, nil
	}

	for r := range these.All() {
		if r >= n {
			break
		}
		if m.match(r) != s.Invert {
			out.Add(r)
		}
	}
	return out, nil
}

// matcher holds the criteria lowered to the column's native type.
type matcher struct {
	col *table.Column

	hasSet bool
	fset   map[float64]struct{}
	iset   map[int64]struct{}
	sset   map[string]struct{}

	gt, lt     *float64
	gtI, ltI   int64
	gtInt      bool
	ltInt      bool
	checkLower bool
	checkUpper bool
}

func compile(c *table.Column, s Spec) (*matcher, error) {
	if !c.IsScalar() {
		return nil, fmt.Errorf("%w: %q has shape %v", ErrNotScalar, c.Name(), c.Shape())
	}
	if (s.GreaterThan != nil || s.LessThan != nil) && !c.Kind().Numeric() {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotOrderable, c.Name(), c.Kind())
	}

	m := &matcher{col: c, gt: s.GreaterThan, lt: s.LessThan}
	m.checkLower = s.GreaterThan != nil
	m.checkUpper = s.LessThan != nil
	if m.checkLower {
		m.gtI, m.gtInt = exactInt(*s.GreaterThan)
	}
	if m.checkUpper {
		m.ltI, m.ltInt = exactInt(*s.LessThan)
	}

	if s.Values != nil {
		m.hasSet = true
		if err := m.compileSet(s.Values); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *matcher) compileSet(values []any) error {
	switch m.col.Kind() {
	case table.KindFloat64:
		m.fset = make(map[float64]struct{}, len(values))
		for _, v := range values {
			f, ok := asFloat64(v)
			if !ok {
				return fmt.Errorf("%w: %v (%T) for %s column %q", ErrValueType, v, v, m.col.Kind(), m.col.Name())
			}
			m.fset[f] = struct{}{}
		}
	case table.KindInt64:
		m.iset = make(map[int64]struct{}, len(values))
		for _, v := range values {
			f, ok := asFloat64(v)
			if !ok {
				return fmt.Errorf("%w: %v (%T) for %s column %q", ErrValueType, v, v, m.col.Kind(), m.col.Name())
			}
			if i, ok := asInt64(v); ok {
				m.iset[i] = struct{}{}
			} else if i, exact := exactInt(f); exact {
				m.iset[i] = struct{}{}
			}
			// Fractional values can never equal an integer.
		}
	case table.KindString:
		m.sset = make(map[string]struct{}, len(values))
		for _, v := range values {
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: %v (%T) for string column %q", ErrValueType, v, v, m.col.Name())
			}
			m.sset[str] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: %s", table.ErrInvalidKind, m.col.Kind())
	}
	return nil
}

func (m *matcher) match(r int) bool {
	switch m.col.Kind() {
	case table.KindFloat64:
		v := m.col.Float64s()[r]
		if m.hasSet {
			if _, ok := m.fset[v]; !ok {
				return false
			}
		}
		if m.checkLower && !(v > *m.gt) {
			return false
		}
		if m.checkUpper && !(v < *m.lt) {
			return false
		}
		return true
	case table.KindInt64:
		v := m.col.Int64s()[r]
		if m.hasSet {
			if _, ok := m.iset[v]; !ok {
				return false
			}
		}
		if m.checkLower {
			if m.gtInt {
				if v <= m.gtI {
					return false
				}
			} else if !(float64(v) > *m.gt) {
				return false
			}
		}
		if m.checkUpper {
			if m.ltInt {
				if v >= m.ltI {
					return false
				}
			} else if !(float64(v) < *m.lt) {
				return false
			}
		}
		return true
	case table.KindString:
		if m.hasSet {
			_, ok := m.sset[m.col.Str(r)]
			return ok
		}
		return true
	default:
		return false
	}
}

// exactInt reports whether f is an integer representable as int64.
func exactInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
