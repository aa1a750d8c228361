package flathits

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    loadedHits   prometheus.Counter
//	    loadDuration prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordLoad(hits int, duration time.Duration, err error) {
//	    p.loadedHits.Add(float64(hits))
//	    p.loadDuration.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordLoad is called after each table load.
	// hits is the number of rows loaded, err is nil if successful.
	RecordLoad(hits int, duration time.Duration, err error)

	// RecordFilter is called after each FilterHits call.
	// in is the number of candidate hits, out the number that matched.
	RecordFilter(in, out int, duration time.Duration, err error)

	// RecordTrim is called after each TrimHits call.
	// removed is the number of hits dropped from the table.
	RecordTrim(removed int, duration time.Duration, err error)

	// RecordGetEvents is called after each GetEvents call.
	RecordGetEvents(hits int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordFilter(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordTrim(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordGetEvents(int, time.Duration)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadedHits      atomic.Int64
	LoadTotalNanos  atomic.Int64
	FilterCount     atomic.Int64
	FilterErrors    atomic.Int64
	FilterEmpty     atomic.Int64
	TrimCount       atomic.Int64
	TrimErrors      atomic.Int64
	TrimmedHits     atomic.Int64
	GetEventsCount  atomic.Int64
	GetEventsHits   atomic.Int64
	QueryTotalNanos atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(hits int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadedHits.Add(int64(hits))
}

// RecordFilter implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFilter(in, out int, duration time.Duration, err error) {
	b.FilterCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.FilterErrors.Add(1)
	case out == 0:
		b.FilterEmpty.Add(1)
	}
}

// RecordTrim implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrim(removed int, duration time.Duration, err error) {
	b.TrimCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrimErrors.Add(1)
		return
	}
	b.TrimmedHits.Add(int64(removed))
}

// RecordGetEvents implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetEvents(hits int, duration time.Duration) {
	b.GetEventsCount.Add(1)
	b.GetEventsHits.Add(int64(hits))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadedHits:     b.LoadedHits.Load(),
		LoadAvgNanos:   b.getAvgLoadNanos(),
		FilterCount:    b.FilterCount.Load(),
		FilterErrors:   b.FilterErrors.Load(),
		FilterEmpty:    b.FilterEmpty.Load(),
		TrimCount:      b.TrimCount.Load(),
		TrimErrors:     b.TrimErrors.Load(),
		TrimmedHits:    b.TrimmedHits.Load(),
		GetEventsCount: b.GetEventsCount.Load(),
		GetEventsHits:  b.GetEventsHits.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount      int64
	LoadErrors     int64
	LoadedHits     int64
	LoadAvgNanos   int64
	FilterCount    int64
	FilterErrors   int64
	FilterEmpty    int64
	TrimCount      int64
	TrimErrors     int64
	TrimmedHits    int64
	GetEventsCount int64
	GetEventsHits  int64
}
