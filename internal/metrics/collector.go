// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for notebot. It renders text/plain in Prometheus exposition
// format without pulling in the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
// Registration order is preserved so the exposition output is stable.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   []*Counter
	gauges     []*Gauge
	histograms []*Histogram
	startTime  time.Time
}

// NewCollector creates a new collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Counter registers a counter with the given name.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ctr := range c.counters {
		if ctr.name == name {
			return ctr
		}
	}
	ctr := &Counter{name: name, help: help}
	c.counters = append(c.counters, ctr)
	return ctr
}

// Gauge registers a gauge with the given name.
func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gauges {
		if g.name == name {
			return g
		}
	}
	g := &Gauge{name: name, help: help}
	c.gauges = append(c.gauges, g)
	return g
}

// Histogram registers a histogram with the given name and bucket bounds.
func (c *MetricsCollector) Histogram(name, help string, buckets []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.histograms {
		if h.name == name {
			return h
		}
	}
	sort.Float64s(buckets)
	hb := make([]histBucket, len(buckets))
	for i, b := range buckets {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, buckets: hb}
	c.histograms = append(c.histograms, h)
	return h
}

// Handler returns an http.HandlerFunc that renders metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP notebot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE notebot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "notebot_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		c.mu.Lock()
		counters := append([]*Counter(nil), c.counters...)
		gauges := append([]*Gauge(nil), c.gauges...)
		histograms := append([]*Histogram(nil), c.histograms...)
		c.mu.Unlock()

		for _, ctr := range counters {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
		}

		for _, g := range gauges {
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
		}

		for _, h := range histograms {
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			for _, b := range h.buckets {
				le := fmt.Sprintf("%g", b.le)
				if math.IsInf(b.le, 1) {
					le = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", h.name, le, b.count)
			}
			fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

// Pre-defined metrics used across the pipeline.
var (
	UpdatesTotal       = Collector.Counter("notebot_updates_total", "Total webhook updates received")
	NotesSavedTotal    = Collector.Counter("notebot_notes_saved_total", "Total notes persisted to the store")
	PipelineFailures   = Collector.Counter("notebot_pipeline_failures_total", "Total terminal pipeline failures")
	DuplicateUpdates   = Collector.Counter("notebot_duplicate_updates_total", "Updates skipped by the journal dedup check")
	InferenceFallbacks = Collector.Counter("notebot_inference_fallbacks_total", "Inference calls that degraded to a fallback value")

	StageLatency = Collector.Histogram("notebot_stage_latency_seconds", "Enrichment stage latency in seconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
)
