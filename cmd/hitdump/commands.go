package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/flathits"
	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/codec"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/event"
	"github.com/hupe1980/flathits/hitfile"
	"github.com/hupe1980/flathits/table"
)

func (a *app) newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: hitdump %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) reader() *hitfile.Reader {
	if a.cache != nil {
		return hitfile.NewReader(a.store, hitfile.WithBlockCache(a.cache))
	}
	return hitfile.NewReader(a.store)
}

func (a *app) options() []flathits.Option {
	return []flathits.Option{
		flathits.WithLogger(a.logger),
		flathits.WithMetricsCollector(a.metrics),
		flathits.WithResourceController(a.rc),
	}
}

func (a *app) columns(ctx context.Context, args []string) error {
	fs := a.newFlagSet("columns", "<path> <tree>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errUsage
	}
	names, err := a.reader().ListColumns(ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(a.stdout, n)
	}
	return nil
}

func (a *app) inspect(ctx context.Context, args []string) error {
	fs := a.newFlagSet("inspect", "<path>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	dir, err := a.reader().Inspect(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, tree := range dir.Trees {
		fmt.Fprintf(w, "tree %s\t%d rows\n", tree.Name, tree.Rows)
		fmt.Fprintln(w, "  COLUMN\tKIND\tSHAPE\tBYTES\tMIN\tMAX")
		for _, c := range tree.Columns {
			fmt.Fprintf(w, "  %s\t%s\t%v\t%d\t%s\t%s\n", c.Name, c.Kind, c.Shape, c.Length, bound(c.Min), bound(c.Max))
		}
	}
	return w.Flush()
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

// listFlag collects comma-separated or repeated values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

// selectionFlag collects repeated selection terms verbatim.
type selectionFlag []string

func (s *selectionFlag) String() string { return strings.Join(*s, " && ") }

func (s *selectionFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, len(values))
	for i, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event id %q: %w", v, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (a *app) events(ctx context.Context, args []string) error {
	fs := a.newFlagSet("events", "<path>")
	geometry := fs.String("geometry", "", "geometry name (CDC, CTH or one from the config)")
	tree := fs.String("tree", "", "tree name")
	prefix := fs.String("prefix", "", "column prefix")
	eventColumn := fs.String("event-column", "", "event identifier column")
	var columns, empty, ids, show listFlag
	var selection selectionFlag
	fs.Var(&columns, "columns", "columns to read (default all)")
	fs.Var(&empty, "empty", "columns to synthesize as zeros")
	fs.Var(&selection, "select", "load-time selection, e.g. \"Edep > 0\" (repeatable)")
	fs.Var(&ids, "events", "event identifiers to print")
	fs.Var(&show, "show", "columns to print per hit for the selected events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return errUsage
	}

	g, fromConfig := a.cfg.Geometry(*geometry)
	path := fs.Arg(0)
	if !fromConfig {
		g = config.Geometry{Name: *geometry}
	}
	if path != "" {
		g.Path = path
	}
	if g.Path == "" {
		fs.Usage()
		return errUsage
	}

	opts := a.options()
	if *tree != "" {
		opts = append(opts, flathits.WithTree(*tree))
	}
	if *prefix != "" {
		opts = append(opts, flathits.WithPrefix(*prefix))
	}
	if *eventColumn != "" {
		opts = append(opts, flathits.WithEventColumn(*eventColumn))
	}
	if len(columns) > 0 {
		opts = append(opts, flathits.WithColumns(columns...))
	}
	for _, e := range empty {
		opts = append(opts, flathits.WithEmptyColumns(catalog.Empty(e)))
	}
	if len(selection) > 0 {
		opts = append(opts, flathits.WithSelection(selection...))
	}

	var hits *flathits.FlatHits
	var err error
	if fromConfig || g.Known() {
		hits, err = flathits.FromConfig(ctx, a.reader(), g, opts...)
	} else {
		hits, err = flathits.New(ctx, a.reader(), g.Path, opts...)
	}
	if err != nil {
		return err
	}
	defer hits.Close()

	sel := event.All()
	if len(ids) > 0 {
		parsed, err := parseIDs(ids)
		if err != nil {
			return err
		}
		sel = event.IDs(parsed...)
	}
	return a.printEvents(hits, sel, show)
}

func (a *app) printEvents(hits *flathits.FlatHits, sel event.Selector, show []string) error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%d hits in %d events\n", hits.NHits(), hits.NEvents())

	counts := make(map[int64]int, hits.NEvents())
	for i, id := range hits.EventIDs() {
		counts[id] = hits.HitCounts()[i]
	}
	ids := hits.EventIDs()
	if !sel.IsAll() {
		ids = sel.Identifiers()
	}
	fmt.Fprintln(w, "EVENT\tHITS")
	for _, id := range ids {
		fmt.Fprintf(w, "%d\t%d\n", id, counts[id])
	}

	if len(show) > 0 {
		t, err := hits.GetEvents(sel)
		if err != nil {
			return err
		}
		cols := make([]*table.Column, len(show))
		header := make([]string, len(show))
		for i, name := range show {
			c, err := t.Column(qualify(hits.Prefix(), name))
			if err != nil {
				return err
			}
			cols[i] = c
			header[i] = c.Name()
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(header, "\t"))
		row := make([]string, len(cols))
		for r := range t.NumRows() {
			for i, c := range cols {
				row[i] = c.Format(r)
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	}
	return w.Flush()
}

func qualify(prefix, name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

func (a *app) load(ctx context.Context, args []string) error {
	fs := a.newFlagSet("load", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(a.cfg.Geometries) == 0 {
		return fmt.Errorf("%w: no geometries configured", errUsage)
	}
	all, err := flathits.LoadAll(ctx, a.reader(), a.cfg.Geometries, a.options()...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GEOMETRY\tPATH\tHITS\tEVENTS\tCOLUMNS")
	for i, hits := range all {
		g := a.cfg.Geometries[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", g.Name, g.Path, hits.NHits(), hits.NEvents(), hits.Data().NumColumns())
		hits.Close()
	}
	return w.Flush()
}

func (a *app) convert(ctx context.Context, args []string) error {
	fs := a.newFlagSet("convert", "<in> <out>")
	compression := fs.String("compression", hitfile.CompressionZSTD.String(), "block compression: none, lz4 or zstd")
	codecName := fs.String("codec", "go-json", "directory codec: json or go-json")
	xz := fs.Bool("xz", false, "wrap the output in an xz stream")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errUsage
	}
	in, out := fs.Arg(0), fs.Arg(1)

	c, err := hitfile.ParseCompression(*compression)
	if err != nil {
		return err
	}
	cd, ok := codec.ByName(*codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q", *codecName)
	}

	data, err := readAll(ctx, a.store, in)
	if err != nil {
		return err
	}
	src := blobstore.NewMemoryStore()
	if err := src.Put(ctx, in, data); err != nil {
		return err
	}
	reader := hitfile.NewReader(src)
	dir, err := reader.Inspect(ctx, in)
	if err != nil {
		return err
	}

	w := hitfile.NewWriter(hitfile.WithCompression(c), hitfile.WithCodec(cd))
	for _, tree := range dir.Trees {
		t, err := reader.ReadTable(ctx, in, tree.Name, tree.Names(), "")
		if err != nil {
			return fmt.Errorf("tree %s: %w", tree.Name, err)
		}
		if err := w.AddTree(tree.Name, t); err != nil {
			return fmt.Errorf("tree %s: %w", tree.Name, err)
		}
	}

	encoded, err := w.Bytes()
	if err != nil {
		return err
	}
	if *xz {
		if encoded, err = hitfile.WrapXZ(encoded); err != nil {
			return err
		}
	}
	if err := a.store.Put(ctx, out, encoded); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "converted", "in", in, "out", out, "compression", c.String(), "bytes", len(encoded))
	fmt.Fprintf(a.stdout, "%s -> %s: %d trees, %d bytes\n", in, out, len(dir.Trees), len(encoded))
	return nil
}

