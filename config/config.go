// Package config reads YAML descriptions of hit sources.
//
//	storage:
//	  kind: s3
//	  bucket: detector-runs
//	  prefix: mc5/
//	geometries:
//	  - name: CDC
//	    path: run042.hits
//	    columns: all
//	    selection: "Edep > 0"
//	    empty:
//	      - name: Weight
//	  - name: CTH
//	    path: run042.hits
//	    columns: [EventNumber, Channel, MCPos.fP]
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/resource"
	"github.com/hupe1980/flathits/table"
)

// ErrInvalid is returned for configurations that cannot describe a load.
var ErrInvalid = errors.New("config: invalid")

// File is a parsed configuration file.
type File struct {
	Storage    Storage    `yaml:"storage"`
	Resources  Resources  `yaml:"resources"`
	Geometries []Geometry `yaml:"geometries"`
}

// Storage selects the blob store holding hit files.
type Storage struct {
	// Kind is "local" (default), "s3" or "minio".
	Kind      string `yaml:"kind"`
	Root      string `yaml:"root,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Secure    bool   `yaml:"secure,omitempty"`
}

// Resources mirrors resource.Config.
type Resources struct {
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes,omitempty"`
	MaxConcurrentLoads int64 `yaml:"max_concurrent_loads,omitempty"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec,omitempty"`
}

// Controller returns a controller for the limits, or nil when none is set.
func (r Resources) Controller() *resource.Controller {
	if r == (Resources{}) {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   r.MemoryLimitBytes,
		MaxConcurrentLoads: r.MaxConcurrentLoads,
		IOLimitBytesPerSec: r.IOLimitBytesPerSec,
	})
}

// Geometry describes how to load one detector's hits.
type Geometry struct {
	Name        string        `yaml:"name"`
	Path        string        `yaml:"path"`
	Tree        string        `yaml:"tree,omitempty"`
	Prefix      string        `yaml:"prefix,omitempty"`
	Columns     Columns       `yaml:"columns,omitempty"`
	Empty       []EmptyColumn `yaml:"empty,omitempty"`
	Selection   string        `yaml:"selection,omitempty"`
	EventColumn string        `yaml:"event_column,omitempty"`
	Exclude     []string      `yaml:"exclude,omitempty"`
}

// EmptyColumn declares a column synthesized as zeros.
type EmptyColumn struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind,omitempty"`
	Shape []int  `yaml:"shape,omitempty"`
}

// Columns is a column list that also accepts the scalar "all".
type Columns []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*c = Columns{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("%w: line %d: columns must be %q or a list", ErrInvalid, node.Line, catalog.All)
	}
}

// Known reports whether the geometry name has a built-in layout.
func (g Geometry) Known() bool {
	_, err := catalog.LayoutOf(catalog.Geometry(g.Name))
	return err == nil
}

// WithDefaults fills tree, prefix and event column from the built-in layout
// of a known geometry. Explicit values win.
func (g Geometry) WithDefaults() Geometry {
	layout, err := catalog.LayoutOf(catalog.Geometry(g.Name))
	if err != nil {
		return g
	}
	if g.Tree == "" {
		g.Tree = layout.Tree
	}
	if g.Prefix == "" {
		g.Prefix = layout.Prefix
	}
	if g.EventColumn == "" {
		g.EventColumn = layout.EventColumn
	}
	if len(g.Columns) == 0 {
		g.Columns = Columns{catalog.All}
	}
	return g
}

// EmptyColumns converts the declarations.
func (g Geometry) EmptyColumns() ([]catalog.EmptyColumn, error) {
	out := make([]catalog.EmptyColumn, len(g.Empty))
	for i, e := range g.Empty {
		kind, err := table.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: empty column %q: %w", ErrInvalid, e.Name, err)
		}
		out[i] = catalog.EmptyColumn{Name: e.Name, Kind: kind, Shape: e.Shape}
	}
	return out, nil
}

// Validate checks the fields required for a load.
func (g Geometry) Validate() error {
	if g.Path == "" {
		return fmt.Errorf("%w: geometry %q has no path", ErrInvalid, g.Name)
	}
	if g.Tree == "" {
		return fmt.Errorf("%w: geometry %q has no tree", ErrInvalid, g.Name)
	}
	for _, e := range g.Empty {
		if e.Name == "" {
			return fmt.Errorf("%w: geometry %q has an unnamed empty column", ErrInvalid, g.Name)
		}
	}
	_, err := g.EmptyColumns()
	return err
}

// DefaultGeometries returns the built-in geometries with every column
// requested. Path is left empty.
func DefaultGeometries() []Geometry {
	var out []Geometry
	for _, g := range catalog.Geometries() {
		out = append(out, Geometry{Name: string(g)}.WithDefaults())
	}
	return out
}

// Geometry returns the geometry named name.
func (f *File) Geometry(name string) (Geometry, bool) {
	for _, g := range f.Geometries {
		if g.Name == name {
			return g, true
		}
	}
	return Geometry{}, false
}

// Parse parses YAML configuration data, applies defaults and validates it.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if f.Storage.Kind == "" {
		f.Storage.Kind = "local"
	}
	switch f.Storage.Kind {
	case "local", "s3", "minio":
	default:
		return nil, fmt.Errorf("%w: unknown storage kind %q", ErrInvalid, f.Storage.Kind)
	}
	if f.Storage.Kind != "local" && f.Storage.Bucket == "" {
		return nil, fmt.Errorf("%w: %s storage needs a bucket", ErrInvalid, f.Storage.Kind)
	}

	seen := make(map[string]struct{})
	for i, g := range f.Geometries {
		g = g.WithDefaults()
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[g.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate geometry %q", ErrInvalid, g.Name)
		}
		seen[g.Name] = struct{}{}
		f.Geometries[i] = g
	}
	return &f, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
