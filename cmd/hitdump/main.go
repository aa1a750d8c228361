// Command hitdump inspects and converts hit files.
//
// Usage:
//
//	hitdump [global flags] <command> [flags] <args>
//
// Commands:
//
//	columns <path> <tree>   list the columns of a tree
//	inspect <path>          print the directory of a hit file
//	events  [flags] <path>  load one geometry and list its events
//	load                    load every geometry of the config file
//	convert [flags] <in> <out>
//	                        rewrite a hit file with another compression
//
// Storage, resource limits and geometries come from the YAML file given with
// -config. Without one, files are read from the local directory -root.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/flathits"
	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/cache"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/prommetrics"
	"github.com/hupe1980/flathits/resource"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "hitdump:", err)
		}
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg     *config.File
	store   blobstore.BlobStore
	cache   *cache.LRU
	rc      *resource.Controller
	logger  *flathits.Logger
	metrics flathits.MetricsCollector
	stdout  io.Writer
	stderr  io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hitdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	root := fs.String("root", "", "local directory holding hit files (overrides local storage root)")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	blockCache := fs.Int64("block-cache", 0, "bytes of decoded column blocks kept in memory (0 disables)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: hitdump [flags] columns|inspect|events|load|convert ...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg := &config.File{Storage: config.Storage{Kind: "local"}}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *root != "" && (cfg.Storage.Kind == "" || cfg.Storage.Kind == "local") {
		cfg.Storage.Root = *root
	}

	logger, err := newLogger(stderr, *logLevel, *logFormat)
	if err != nil {
		return err
	}

	a := &app{
		cfg:     cfg,
		rc:      cfg.Resources.Controller(),
		logger:  logger,
		metrics: flathits.NoopMetricsCollector{},
		stdout:  stdout,
		stderr:  stderr,
	}
	if *blockCache > 0 {
		a.cache = cache.NewLRU(*blockCache, a.rc)
	}
	if a.store, err = openStore(ctx, cfg.Storage, a.rc); err != nil {
		return err
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = prommetrics.New(reg)
		shutdown, err := serveMetrics(*metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "columns":
		return a.columns(ctx, rest)
	case "inspect":
		return a.inspect(ctx, rest)
	case "events":
		return a.events(ctx, rest)
	case "load":
		return a.load(ctx, rest)
	case "convert":
		return a.convert(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newLogger(w io.Writer, level, format string) (*flathits.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return flathits.NewLogger(slog.NewTextHandler(w, opts)), nil
	case "json":
		return flathits.NewLogger(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *flathits.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
