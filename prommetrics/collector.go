// Package prommetrics exports flathits operation metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc := prommetrics.New(reg)
//	hits, err := flathits.New(ctx, reader, path, flathits.WithMetricsCollector(mc))
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/flathits"
)

var _ flathits.MetricsCollector = (*Collector)(nil)

// Collector implements flathits.MetricsCollector with Prometheus metrics.
type Collector struct {
	latency  *prometheus.HistogramVec
	ops      *prometheus.CounterVec
	loaded   prometheus.Counter
	trimmed  prometheus.Counter
	selected prometheus.Counter
	matched  prometheus.Histogram
}

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flathits_operation_latency_seconds",
			Help:    "Latency of flathits operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flathits_operations_total",
			Help: "Operations by outcome",
		}, []string{"op", "status"}),
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flathits_loaded_hits_total",
			Help: "Hits loaded from sources",
		}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flathits_trimmed_hits_total",
			Help: "Hits removed by trims",
		}),
		selected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flathits_event_hits_total",
			Help: "Hits returned by event lookups",
		}),
		matched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flathits_filter_match_ratio",
			Help:    "Fraction of hits matched by filters",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	reg.MustRegister(c.latency, c.ops, c.loaded, c.trimmed, c.selected, c.matched)
	return c
}

func status(err error, empty bool) string {
	switch {
	case err != nil:
		return "error"
	case empty:
		return "empty"
	default:
		return "success"
	}
}

// RecordLoad implements flathits.MetricsCollector.
func (c *Collector) RecordLoad(hits int, duration time.Duration, err error) {
	c.latency.WithLabelValues("load").Observe(duration.Seconds())
	c.ops.WithLabelValues("load", status(err, hits == 0)).Inc()
	if err == nil {
		c.loaded.Add(float64(hits))
	}
}

// RecordFilter implements flathits.MetricsCollector.
func (c *Collector) RecordFilter(in, out int, duration time.Duration, err error) {
	c.latency.WithLabelValues("filter").Observe(duration.Seconds())
	c.ops.WithLabelValues("filter", status(err, out == 0)).Inc()
	if err == nil && in > 0 {
		c.matched.Observe(float64(out) / float64(in))
	}
}

// RecordTrim implements flathits.MetricsCollector.
func (c *Collector) RecordTrim(removed int, duration time.Duration, err error) {
	c.latency.WithLabelValues("trim").Observe(duration.Seconds())
	c.ops.WithLabelValues("trim", status(err, false)).Inc()
	if err == nil {
		c.trimmed.Add(float64(removed))
	}
}

// RecordGetEvents implements flathits.MetricsCollector.
func (c *Collector) RecordGetEvents(hits int, duration time.Duration) {
	c.latency.WithLabelValues("get_events").Observe(duration.Seconds())
	c.ops.WithLabelValues("get_events", "success").Inc()
	c.selected.Add(float64(hits))
}
