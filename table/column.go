package table

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Kind identifies the element type stored in a Column.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindFloat64 stores 64-bit floats.
	KindFloat64
	// KindInt64 stores 64-bit signed integers.
	KindInt64
	// KindString stores strings.
	KindString
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindInt64:
		return "int64"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseKind parses the names produced by Kind.String.
// The empty string maps to KindFloat64.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "float64", "double", "float":
		return KindFloat64, nil
	case "int64", "int", "long":
		return KindInt64, nil
	case "string":
		return KindString, nil
	default:
		return KindInvalid, fmt.Errorf("%w: unknown kind %q", ErrInvalidKind, s)
	}
}

// Numeric reports whether values of this kind are ordered numbers.
func (k Kind) Numeric() bool {
	return k == KindFloat64 || k == KindInt64
}

// DataType returns the Arrow type of a scalar element of this kind.
func (k Kind) DataType() arrow.DataType {
	switch k {
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindString:
		return arrow.BinaryTypes.String
	default:
		return nil
	}
}

func kindOf(dt arrow.DataType) Kind {
	switch dt.ID() {
	case arrow.FLOAT64:
		return KindFloat64
	case arrow.INT64:
		return KindInt64
	case arrow.STRING:
		return KindString
	default:
		return KindInvalid
	}
}

// Column is a named, typed column of a flat table, backed by an Arrow array.
//
// Scalar columns are plain Arrow arrays. A column whose rows hold an array of
// shape [d0, d1, ...] is a nested FixedSizeList (d0 of d1 of ...) over a flat
// leaf array; row i occupies leaf elements [i*Stride(), (i+1)*Stride()).
//
// Columns allocate with the Go allocator and are never released explicitly;
// they are reclaimed with the tables that reference them.
type Column struct {
	name   string
	kind   Kind
	shape  []int
	stride int

	arr arrow.Array

	// leaf views, resolved once
	f64 []float64
	i64 []int64
	str *array.String
}

var alloc = memory.DefaultAllocator

func newColumn(name string, shape []int, stride int, leaf arrow.Array) *Column {
	c := &Column{name: name, kind: kindOf(leaf.DataType()), shape: shape, stride: stride}
	switch a := leaf.(type) {
	case *array.Float64:
		c.f64 = a.Float64Values()
	case *array.Int64:
		c.i64 = a.Int64Values()
	case *array.String:
		c.str = a
	}
	c.arr = nest(leaf, shape)
	return c
}

// nest wraps leaf into one FixedSizeList level per dimension, innermost last.
func nest(leaf arrow.Array, shape []int) arrow.Array {
	arr := leaf
	for i := len(shape) - 1; i >= 0; i-- {
		n := shape[i]
		data := array.NewData(arrow.FixedSizeListOf(int32(n), arr.DataType()), arr.Len()/n,
			[]*memory.Buffer{nil}, []arrow.ArrayData{arr.Data()}, 0, 0)
		arr = array.NewFixedSizeListData(data)
		data.Release()
	}
	return arr
}

func float64Array(values []float64) *array.Float64 {
	buf := memory.NewBufferBytes(arrow.Float64Traits.CastToBytes(values))
	data := array.NewData(arrow.PrimitiveTypes.Float64, len(values), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.NewFloat64Data(data)
}

func int64Array(values []int64) *array.Int64 {
	buf := memory.NewBufferBytes(arrow.Int64Traits.CastToBytes(values))
	data := array.NewData(arrow.PrimitiveTypes.Int64, len(values), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.NewInt64Data(data)
}

func stringArray(values []string) *array.String {
	b := array.NewStringBuilder(alloc)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewStringArray()
}

// NewFloat64 creates a scalar float64 column. The column aliases values.
func NewFloat64(name string, values []float64) *Column {
	return newColumn(name, nil, 1, float64Array(values))
}

// NewInt64 creates a scalar int64 column. The column aliases values.
func NewInt64(name string, values []int64) *Column {
	return newColumn(name, nil, 1, int64Array(values))
}

// NewString creates a scalar string column.
func NewString(name string, values []string) *Column {
	return newColumn(name, nil, 1, stringArray(values))
}

// NewShapedFloat64 creates a float64 column whose rows hold an array of the given shape.
func NewShapedFloat64(name string, shape []int, values []float64) (*Column, error) {
	stride, err := strideOf(shape)
	if err != nil {
		return nil, err
	}
	if len(values)%stride != 0 {
		return nil, fmt.Errorf("%w: column %q has %d values, not a multiple of %d", ErrShape, name, len(values), stride)
	}
	return newColumn(name, slices.Clone(shape), stride, float64Array(values)), nil
}

// NewShapedInt64 creates an int64 column whose rows hold an array of the given shape.
func NewShapedInt64(name string, shape []int, values []int64) (*Column, error) {
	stride, err := strideOf(shape)
	if err != nil {
		return nil, err
	}
	if len(values)%stride != 0 {
		return nil, fmt.Errorf("%w: column %q has %d values, not a multiple of %d", ErrShape, name, len(values), stride)
	}
	return newColumn(name, slices.Clone(shape), stride, int64Array(values)), nil
}

// Zeros creates a zero-filled column with the given kind, element shape and row count.
func Zeros(name string, kind Kind, shape []int, rows int) (*Column, error) {
	stride, err := strideOf(shape)
	if err != nil {
		return nil, err
	}
	n := rows * stride
	var leaf arrow.Array
	switch kind {
	case KindFloat64:
		leaf = float64Array(make([]float64, n))
	case KindInt64:
		leaf = int64Array(make([]int64, n))
	case KindString:
		leaf = stringArray(make([]string, n))
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	return newColumn(name, slices.Clone(shape), stride, leaf), nil
}

// FromArray wraps an Arrow array as a column without copying; the column
// retains the values. Nested FixedSizeList arrays become shaped columns.
// Arrays holding nulls are rejected.
func FromArray(name string, arr arrow.Array) (*Column, error) {
	if arr.NullN() > 0 {
		return nil, fmt.Errorf("%w: column %q has %d nulls", ErrNullValues, name, arr.NullN())
	}
	var shape []int
	begin, count := 0, arr.Len()
	leaf := arr
	for {
		fl, ok := leaf.(*array.FixedSizeList)
		if !ok {
			break
		}
		n := int(fl.DataType().(*arrow.FixedSizeListType).Len())
		if n <= 0 {
			return nil, fmt.Errorf("%w: column %q has list size %d", ErrShape, name, n)
		}
		shape = append(shape, n)
		begin = (begin + fl.Offset()) * n
		count *= n
		leaf = fl.ListValues()
	}
	if kindOf(leaf.DataType()) == KindInvalid {
		return nil, fmt.Errorf("%w: column %q has type %s", ErrInvalidKind, name, leaf.DataType())
	}
	if leaf.NullN() > 0 {
		return nil, fmt.Errorf("%w: column %q has %d nulls", ErrNullValues, name, leaf.NullN())
	}
	if begin != 0 || leaf.Len() != count {
		leaf = array.NewSlice(leaf, int64(begin), int64(begin+count))
	} else {
		leaf.Retain()
	}
	stride := 1
	for _, d := range shape {
		stride *= d
	}
	return newColumn(name, shape, stride, leaf), nil
}

func strideOf(shape []int) (int, error) {
	stride := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrShape, shape)
		}
		stride *= d
	}
	return stride, nil
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the element kind.
func (c *Column) Kind() Kind { return c.kind }

// Shape returns the per-row element shape (nil for scalars).
func (c *Column) Shape() []int { return slices.Clone(c.shape) }

// Stride returns the number of elements per row.
func (c *Column) Stride() int { return c.stride }

// IsScalar reports whether each row holds exactly one element.
func (c *Column) IsScalar() bool { return c.stride == 1 }

// Len returns the number of rows.
func (c *Column) Len() int { return c.arr.Len() }

// Array returns the backing Arrow array.
func (c *Column) Array() arrow.Array { return c.arr }

// Field returns the Arrow field describing the column.
func (c *Column) Field() arrow.Field {
	return arrow.Field{Name: c.name, Type: c.arr.DataType()}
}

// Float64s returns the flat float64 leaf values. The slice aliases the
// Arrow buffer and must not be modified.
func (c *Column) Float64s() []float64 { return c.f64 }

// Int64s returns the flat int64 leaf values. The slice aliases the Arrow
// buffer and must not be modified.
func (c *Column) Int64s() []int64 { return c.i64 }

// Strings returns a copy of the flat string leaf values.
func (c *Column) Strings() []string {
	if c.str == nil {
		return nil
	}
	out := make([]string, c.str.Len())
	for i := range out {
		out[i] = c.str.Value(i)
	}
	return out
}

// Float64 returns the first element of row as a float64.
// String columns return 0.
func (c *Column) Float64(row int) float64 {
	switch c.kind {
	case KindFloat64:
		return c.f64[row*c.stride]
	case KindInt64:
		return float64(c.i64[row*c.stride])
	default:
		return 0
	}
}

// Int64 returns the first element of row as an int64.
// Float values are truncated; string columns return 0.
func (c *Column) Int64(row int) int64 {
	switch c.kind {
	case KindInt64:
		return c.i64[row*c.stride]
	case KindFloat64:
		return int64(c.f64[row*c.stride])
	default:
		return 0
	}
}

// Str returns the first element of row formatted as a string.
func (c *Column) Str(row int) string {
	switch c.kind {
	case KindString:
		return c.str.Value(row * c.stride)
	case KindInt64:
		return strconv.FormatInt(c.i64[row*c.stride], 10)
	case KindFloat64:
		return strconv.FormatFloat(c.f64[row*c.stride], 'g', -1, 64)
	default:
		return ""
	}
}

// Format renders a full row, including all elements of shaped columns.
func (c *Column) Format(row int) string {
	if c.stride == 1 {
		return c.Str(row)
	}
	start, end := row*c.stride, (row+1)*c.stride
	switch c.kind {
	case KindFloat64:
		return fmt.Sprint(c.f64[start:end])
	case KindInt64:
		return fmt.Sprint(c.i64[start:end])
	default:
		vals := make([]string, 0, c.stride)
		for i := start; i < end; i++ {
			vals = append(vals, c.str.Value(i))
		}
		return fmt.Sprint(vals)
	}
}

// WithName returns a column sharing storage with c under a new name.
func (c *Column) WithName(name string) *Column {
	cp := *c
	cp.name = name
	return &cp
}

// SameLayout reports whether other has the same kind and shape.
func (c *Column) SameLayout(other *Column) bool {
	return c.kind == other.kind && slices.Equal(c.shape, other.shape)
}

// take gathers the given rows into a new column. Rows may repeat.
func (c *Column) take(rows []int) *Column {
	s := c.stride
	var leaf arrow.Array
	switch c.kind {
	case KindFloat64:
		out := make([]float64, 0, len(rows)*s)
		for _, r := range rows {
			out = append(out, c.f64[r*s:(r+1)*s]...)
		}
		leaf = float64Array(out)
	case KindInt64:
		out := make([]int64, 0, len(rows)*s)
		for _, r := range rows {
			out = append(out, c.i64[r*s:(r+1)*s]...)
		}
		leaf = int64Array(out)
	default:
		b := array.NewStringBuilder(alloc)
		defer b.Release()
		b.Reserve(len(rows) * s)
		for _, r := range rows {
			for i := r * s; i < (r+1)*s; i++ {
				b.Append(c.str.Value(i))
			}
		}
		leaf = b.NewStringArray()
	}
	return newColumn(c.name, c.shape, s, leaf)
}

// SizeInBytes estimates the memory held by the column values.
func (c *Column) SizeInBytes() int64 {
	switch c.kind {
	case KindFloat64:
		return int64(len(c.f64)) * 8
	case KindInt64:
		return int64(len(c.i64)) * 8
	case KindString:
		var n int64
		for i := 0; i < c.str.Len(); i++ {
			n += int64(c.str.ValueLen(i)) + 16
		}
		return n
	default:
		return 0
	}
}
