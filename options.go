package flathits

import (
	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/filter"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/selection"
)

// DefaultEventColumn is the bare name of the event column when none is set.
const DefaultEventColumn = "EventNumber"

type options struct {
	tree             string
	prefix           string
	columns          []string
	empty            []catalog.EmptyColumn
	selection        []string
	eventColumn      string
	geometry         catalog.Geometry
	exclusions       []string
	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures how a FlatHits is loaded.
type Option func(*options)

// WithTree sets the tree to read.
func WithTree(tree string) Option {
	return func(o *options) {
		o.tree = tree
	}
}

// WithPrefix sets the column name prefix, e.g. "CDCHit.f".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithColumns requests an explicit column list. Names may be bare or prefixed.
// The list is honored verbatim; exclusions do not apply.
func WithColumns(columns ...string) Option {
	return func(o *options) {
		o.columns = append([]string(nil), columns...)
	}
}

// WithAllColumns requests every column of the tree not matched by an
// exclusion. This is the default.
func WithAllColumns() Option {
	return func(o *options) {
		o.columns = []string{catalog.All}
	}
}

// WithEmptyColumns declares columns synthesized as zeros.
// A declared column that exists in the source is a configuration error.
func WithEmptyColumns(columns ...catalog.EmptyColumn) Option {
	return func(o *options) {
		o.empty = append(o.empty, columns...)
	}
}

// WithSelection adds load-time selection terms such as "Edep > 0". Terms are
// combined with AND, as are repeated calls.
func WithSelection(terms ...string) Option {
	return func(o *options) {
		for _, t := range terms {
			if t != "" {
				o.selection = append(o.selection, t)
			}
		}
	}
}

// WithEventColumn sets the column holding the event identifier.
// Default: <prefix>EventNumber.
func WithEventColumn(column string) Option {
	return func(o *options) {
		o.eventColumn = column
	}
}

// WithGeometry applies a built-in geometry: its tree, prefix, event column
// and exclusion list. Explicit WithTree, WithPrefix and WithEventColumn win.
func WithGeometry(g catalog.Geometry) Option {
	return func(o *options) {
		o.geometry = g
	}
}

// WithExclusions adds patterns excluded when every column is requested.
func WithExclusions(patterns ...string) Option {
	return func(o *options) {
		o.exclusions = append(o.exclusions, patterns...)
	}
}

// WithLogger sets the logger. Default: NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector. Default: NoopMetricsCollector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController bounds concurrent loads and accounts table memory.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func (o *options) applyGeometry() error {
	if o.geometry == "" {
		return nil
	}
	layout, err := catalog.LayoutOf(o.geometry)
	if err != nil {
		return err
	}
	if o.tree == "" {
		o.tree = layout.Tree
	}
	if o.prefix == "" {
		o.prefix = layout.Prefix
	}
	if o.eventColumn == "" {
		o.eventColumn = layout.EventColumn
	}
	return nil
}

func (o *options) predicate() (string, error) {
	p, err := selection.Join(o.selection...)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

type filterOptions struct {
	spec filter.Spec
	rows []int
	set  bool
}

// FilterOption configures FilterHits and TrimHits. Criteria combine with AND.
type FilterOption func(*filterOptions)

// WithRows restricts the candidates to the given row positions.
// Inversion is taken within these rows.
func WithRows(rows ...int) FilterOption {
	return func(o *filterOptions) {
		o.rows = append([]int(nil), rows...)
		o.set = true
	}
}

// WithValues keeps hits whose value is one of values.
func WithValues(values ...any) FilterOption {
	return func(o *filterOptions) {
		o.spec.Values = append([]any{}, values...)
	}
}

// GreaterThan keeps hits whose value is strictly greater than v.
func GreaterThan(v float64) FilterOption {
	return func(o *filterOptions) {
		o.spec.GreaterThan = filter.Bound(v)
	}
}

// LessThan keeps hits whose value is strictly less than v.
func LessThan(v float64) FilterOption {
	return func(o *filterOptions) {
		o.spec.LessThan = filter.Bound(v)
	}
}

// Invert keeps the hits that fail the criteria instead.
func Invert() FilterOption {
	return func(o *filterOptions) {
		o.spec.Invert = true
	}
}
