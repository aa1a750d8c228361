package hitfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/flathits/table"
)

// ErrUnsupportedColumn is returned for columns the format cannot store.
var ErrUnsupportedColumn = errors.New("hitfile: unsupported column")

// maxExactInt bounds int64 statistics to values float64 represents exactly.
const maxExactInt = 1 << 53

func encodeColumn(c *table.Column) ([]byte, error) {
	switch c.Kind() {
	case table.KindFloat64:
		vals := c.Float64s()
		out := make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out, nil
	case table.KindInt64:
		vals := c.Int64s()
		out := make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(out[8*i:], uint64(v))
		}
		return out, nil
	case table.KindString:
		if !c.IsScalar() {
			return nil, fmt.Errorf("%w: string column %q has shape %v", ErrUnsupportedColumn, c.Name(), c.Shape())
		}
		var out []byte
		for _, s := range c.Strings() {
			out = binary.AppendUvarint(out, uint64(len(s)))
			out = append(out, s...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedColumn, c.Kind())
	}
}

func decodeColumn(e *ColumnEntry, rows int, payload []byte) (*table.Column, error) {
	kind, err := table.ParseKind(e.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: column %q: %w", ErrCorrupted, e.Name, err)
	}
	stride := 1
	for _, d := range e.Shape {
		stride *= d
	}
	n := rows * stride

	switch kind {
	case table.KindFloat64:
		if len(payload) != 8*n {
			return nil, fmt.Errorf("%w: column %q has %d bytes, want %d", ErrCorrupted, e.Name, len(payload), 8*n)
		}
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
		}
		if len(e.Shape) == 0 {
			return table.NewFloat64(e.Name, vals), nil
		}
		return table.NewShapedFloat64(e.Name, e.Shape, vals)
	case table.KindInt64:
		if len(payload) != 8*n {
			return nil, fmt.Errorf("%w: column %q has %d bytes, want %d", ErrCorrupted, e.Name, len(payload), 8*n)
		}
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = int64(binary.LittleEndian.Uint64(payload[8*i:]))
		}
		if len(e.Shape) == 0 {
			return table.NewInt64(e.Name, vals), nil
		}
		return table.NewShapedInt64(e.Name, e.Shape, vals)
	case table.KindString:
		vals := make([]string, 0, n)
		for len(vals) < n {
			l, k := binary.Uvarint(payload)
			if k <= 0 || uint64(len(payload)-k) < l {
				return nil, fmt.Errorf("%w: column %q string %d truncated", ErrCorrupted, e.Name, len(vals))
			}
			vals = append(vals, string(payload[k:k+int(l)]))
			payload = payload[k+int(l):]
		}
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: column %q has trailing bytes", ErrCorrupted, e.Name)
		}
		return table.NewString(e.Name, vals), nil
	default:
		return nil, fmt.Errorf("%w: column %q kind %s", ErrCorrupted, e.Name, kind)
	}
}

// stats returns min and max over the non-NaN values of a scalar numeric column.
// Columns holding an infinity get no statistics.
func stats(c *table.Column) (lo, hi *float64) {
	if !c.IsScalar() || c.Len() == 0 {
		return nil, nil
	}
	var minV, maxV float64
	seen := false
	observe := func(v float64) {
		if !seen {
			minV, maxV, seen = v, v, true
			return
		}
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	switch c.Kind() {
	case table.KindFloat64:
		for _, v := range c.Float64s() {
			if math.IsInf(v, 0) {
				return nil, nil
			}
			if !math.IsNaN(v) {
				observe(v)
			}
		}
	case table.KindInt64:
		for _, v := range c.Int64s() {
			if v > maxExactInt || v < -maxExactInt {
				return nil, nil
			}
			observe(float64(v))
		}
	default:
		return nil, nil
	}
	if !seen {
		return nil, nil
	}
	return &minV, &maxV
}
