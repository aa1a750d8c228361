// Package selection parses and evaluates conjunctive row-selection predicates.
//
// A predicate string has the form
//
//	col1 rel1 val1 && col2 rel2 val2 && ...
//
// with relations restricted to <, > and ==. The string is parsed once into a
// Predicate; evaluation never re-parses. Every comparison is lowered onto the
// filter package, so a predicate pushed into a reader and the same predicate
// applied to a loaded table select exactly the same rows.
package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/flathits/filter"
	"github.com/hupe1980/flathits/rowset"
	"github.com/hupe1980/flathits/table"
)

var (
	// ErrUnsupportedRelation is returned for relation symbols other than <, > and ==.
	ErrUnsupportedRelation = errors.New("selection: unsupported relation")

	// ErrMalformed is returned when a comparison cannot be split into column, relation and literal.
	ErrMalformed = errors.New("selection: malformed comparison")
)

// Separator joins comparisons in a predicate string.
const Separator = "&&"

// Relation is a comparison operator.
type Relation uint8

const (
	// Less is the < relation.
	Less Relation = iota + 1
	// Greater is the > relation.
	Greater
	// Equal is the == relation.
	Equal
)

// String returns the relation symbol.
func (r Relation) String() string {
	switch r {
	case Less:
		return "<"
	case Greater:
		return ">"
	case Equal:
		return "=="
	default:
		return "?"
	}
}

// Literal is the right-hand side of a comparison.
type Literal struct {
	Num      float64
	Str      string
	IsString bool
}

// String renders the literal the way it is parsed.
func (l Literal) String() string {
	if l.IsString {
		return strconv.Quote(l.Str)
	}
	return strconv.FormatFloat(l.Num, 'g', -1, 64)
}

func (l Literal) value() any {
	if l.IsString {
		return l.Str
	}
	return l.Num
}

// Comparison is one atomic term of a predicate.
type Comparison struct {
	Column   string
	Relation Relation
	Literal  Literal
}

// String renders the comparison as "column relation literal".
func (c Comparison) String() string {
	return c.Column + " " + c.Relation.String() + " " + c.Literal.String()
}

// Spec lowers the comparison to a filter spec.
func (c Comparison) Spec() filter.Spec {
	switch c.Relation {
	case Less:
		return filter.Spec{LessThan: filter.Bound(c.Literal.Num)}
	case Greater:
		return filter.Spec{GreaterThan: filter.Bound(c.Literal.Num)}
	default:
		return filter.Spec{Values: []any{c.Literal.value()}}
	}
}

// Predicate is a conjunction of comparisons. The zero value selects every row.
type Predicate struct {
	Comparisons []Comparison
}

// Parse parses a predicate string. The empty string yields the empty predicate.
func Parse(s string) (Predicate, error) {
	var p Predicate
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	terms, err := splitTerms(s)
	if err != nil {
		return Predicate{}, err
	}
	for _, term := range terms {
		c, err := parseComparison(term)
		if err != nil {
			return Predicate{}, err
		}
		p.Comparisons = append(p.Comparisons, c)
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Predicate {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Join parses and combines several predicate strings with AND.
func Join(terms ...string) (Predicate, error) {
	var p Predicate
	for _, t := range terms {
		q, err := Parse(t)
		if err != nil {
			return Predicate{}, err
		}
		p.Comparisons = append(p.Comparisons, q.Comparisons...)
	}
	return p, nil
}

// splitTerms splits s on Separator outside quoted literals.
func splitTerms(s string) ([]string, error) {
	var terms []string
	start := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' && quote == '"' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case strings.HasPrefix(s[i:], Separator):
			terms = append(terms, s[start:i])
			i += len(Separator) - 1
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated string in %q", ErrMalformed, s)
	}
	return append(terms, s[start:]), nil
}

// operators in match order; longer symbols first so "<=" is not read as "<".
var operators = []string{"==", "!=", "<=", ">=", "=<", "=>", "<", ">", "="}

func parseComparison(term string) (Comparison, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Comparison{}, fmt.Errorf("%w: empty term", ErrMalformed)
	}

	at, op := -1, ""
	for i := 0; i < len(term) && at < 0; i++ {
		for _, o := range operators {
			if strings.HasPrefix(term[i:], o) {
				at, op = i, o
				break
			}
		}
	}
	if at < 0 {
		return Comparison{}, fmt.Errorf("%w: no relation in %q", ErrMalformed, term)
	}

	var rel Relation
	switch op {
	case "<":
		rel = Less
	case ">":
		rel = Greater
	case "==":
		rel = Equal
	default:
		return Comparison{}, fmt.Errorf("%w: %q in %q", ErrUnsupportedRelation, op, term)
	}

	column := strings.TrimSpace(term[:at])
	raw := strings.TrimSpace(term[at+len(op):])
	if column == "" || raw == "" || strings.ContainsAny(column, " \t") {
		return Comparison{}, fmt.Errorf("%w: %q", ErrMalformed, term)
	}

	lit, err := parseLiteral(raw)
	if err != nil {
		return Comparison{}, fmt.Errorf("%w: %q: %v", ErrMalformed, term, err)
	}
	if lit.IsString && rel != Equal {
		return Comparison{}, fmt.Errorf("%w: string literal with %s in %q", ErrUnsupportedRelation, rel, term)
	}
	return Comparison{Column: column, Relation: rel, Literal: lit}, nil
}

func parseLiteral(raw string) (Literal, error) {
	if len(raw) >= 2 && raw[0] == '"' {
		str, err := strconv.Unquote(raw)
		if err != nil {
			return Literal{}, err
		}
		return Literal{Str: str, IsString: true}, nil
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return Literal{Str: raw[1 : len(raw)-1], IsString: true}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Literal{}, err
	}
	return Literal{Num: f}, nil
}

// IsEmpty reports whether the predicate has no comparisons.
func (p Predicate) IsEmpty() bool { return len(p.Comparisons) == 0 }

// String renders the predicate in the canonical reader form.
func (p Predicate) String() string {
	parts := make([]string, len(p.Comparisons))
	for i, c := range p.Comparisons {
		parts[i] = c.String()
	}
	return strings.Join(parts, " "+Separator+" ")
}

// Columns returns the distinct columns referenced, in order of appearance.
func (p Predicate) Columns() []string {
	seen := make(map[string]struct{}, len(p.Comparisons))
	var out []string
	for _, c := range p.Comparisons {
		if _, ok := seen[c.Column]; ok {
			continue
		}
		seen[c.Column] = struct{}{}
		out = append(out, c.Column)
	}
	return out
}

// WithPrefix returns a copy whose column names carry prefix.
// Names that already start with prefix are kept.
func (p Predicate) WithPrefix(prefix string) Predicate {
	out := Predicate{Comparisons: make([]Comparison, len(p.Comparisons))}
	for i, c := range p.Comparisons {
		if !strings.HasPrefix(c.Column, prefix) {
			c.Column = prefix + c.Column
		}
		out.Comparisons[i] = c
	}
	return out
}

// Validate checks every comparison against the table schema without scanning rows.
func (p Predicate) Validate(t *table.Table) error {
	for _, c := range p.Comparisons {
		col, err := t.Column(c.Column)
		if err != nil {
			return err
		}
		if err := c.Spec().Validate(col); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate returns the rows of t that satisfy every comparison.
func (p Predicate) Evaluate(t *table.Table) (*rowset.Set, error) {
	if err := p.Validate(t); err != nil {
		return nil, err
	}
	rows := rowset.Range(t.NumRows())
	for _, c := range p.Comparisons {
		col, _ := t.Column(c.Column)
		matched, err := filter.EvaluateRows(col, c.Spec(), rows)
		if err != nil {
			return nil, err
		}
		rows = matched
		if rows.IsEmpty() {
			break
		}
	}
	return rows, nil
}

// Apply returns the rows of t that satisfy the predicate, as a new table.
func (p Predicate) Apply(t *table.Table) (*table.Table, error) {
	if p.IsEmpty() {
		return t, nil
	}
	rows, err := p.Evaluate(t)
	if err != nil {
		return nil, err
	}
	return t.Filter(rows), nil
}
