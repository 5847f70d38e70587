package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// DefaultBuckets are the default histogram buckets in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Counter is a monotonically increasing counter.
type Counter struct {
	mu    sync.Mutex
	value float64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add increments the counter by the given value.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the current counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	mu    sync.Mutex
	value float64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.mu.Lock()
	g.value++
	g.mu.Unlock()
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.mu.Lock()
	g.value--
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Histogram tracks a distribution of observations.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// NewHistogram creates a histogram with the given bucket boundaries.
func NewHistogram(buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{
		buckets: sorted,
		counts:  make([]uint64, len(sorted)),
	}
}

// Observe records an observation.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Snapshot returns the histogram state.
func (h *Histogram) Snapshot() (buckets []float64, counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buckets = make([]float64, len(h.buckets))
	copy(buckets, h.buckets)
	counts = make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return buckets, counts, h.sum, h.count
}

// metricEntry holds a registered metric with its metadata.
type metricEntry struct {
	name       string
	help       string
	metricType MetricType
	counter    *Counter
	gauge      *Gauge
	histogram  *Histogram
}

// MetricsRegistry holds named metrics and renders them in the
// Prometheus text exposition format.
type MetricsRegistry struct {
	mu      sync.RWMutex
	entries map[string]*metricEntry
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		entries: make(map[string]*metricEntry),
	}
}

// Counter returns the counter with the given name, registering it if needed.
func (r *MetricsRegistry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.counter != nil {
		return e.counter
	}
	c := &Counter{}
	r.entries[name] = &metricEntry{name: name, help: help, metricType: MetricCounter, counter: c}
	return c
}

// Gauge returns the gauge with the given name, registering it if needed.
func (r *MetricsRegistry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.gauge != nil {
		return e.gauge
	}
	g := &Gauge{}
	r.entries[name] = &metricEntry{name: name, help: help, metricType: MetricGauge, gauge: g}
	return g
}

// Histogram returns the histogram with the given name, registering it if needed.
func (r *MetricsRegistry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.histogram != nil {
		return e.histogram
	}
	h := NewHistogram(buckets)
	r.entries[name] = &metricEntry{name: name, help: help, metricType: MetricHistogram, histogram: h}
	return h
}

// WritePrometheus renders all registered metrics in the Prometheus
// text exposition format.
func (r *MetricsRegistry) WritePrometheus(sb *strings.Builder) {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]*metricEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.entries[name])
	}
	r.mu.RUnlock()

	for _, e := range entries {
		fmt.Fprintf(sb, "# HELP %s %s\n", e.name, e.help)
		fmt.Fprintf(sb, "# TYPE %s %s\n", e.name, e.metricType)
		switch e.metricType {
		case MetricCounter:
			fmt.Fprintf(sb, "%s %s\n", e.name, formatFloat(e.counter.Value()))
		case MetricGauge:
			fmt.Fprintf(sb, "%s %s\n", e.name, formatFloat(e.gauge.Value()))
		case MetricHistogram:
			buckets, counts, sum, count := e.histogram.Snapshot()
			for i, b := range buckets {
				fmt.Fprintf(sb, "%s_bucket{le=%q} %d\n", e.name, formatFloat(b), counts[i])
			}
			fmt.Fprintf(sb, "%s_bucket{le=\"+Inf\"} %d\n", e.name, count)
			fmt.Fprintf(sb, "%s_sum %s\n", e.name, formatFloat(sum))
			fmt.Fprintf(sb, "%s_count %d\n", e.name, count)
		}
	}
}

// Handler returns an http.Handler serving the metrics endpoint.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var sb strings.Builder
		r.WritePrometheus(&sb)
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sb.String()))
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// IndexingMetrics bundles the pipeline's metrics over a registry.
type IndexingMetrics struct {
	VectorsIndexed    *Counter
	VectorsRemoved    *Counter
	Searches          *Counter
	BatchItemFailures *Counter
	ExtractionSkips   *Counter
	EmbedDuration     *Histogram
	SearchDuration    *Histogram
	UpsertDuration    *Histogram
}

// NewIndexingMetrics registers the pipeline metrics on the registry.
func NewIndexingMetrics(r *MetricsRegistry) *IndexingMetrics {
	return &IndexingMetrics{
		VectorsIndexed:    r.Counter("vecsync_vectors_indexed_total", "Total number of vectors written to the vector store"),
		VectorsRemoved:    r.Counter("vecsync_vectors_removed_total", "Total number of vectors deleted from the vector store"),
		Searches:          r.Counter("vecsync_searches_total", "Total number of similarity searches executed"),
		BatchItemFailures: r.Counter("vecsync_batch_item_failures_total", "Total number of batch items that failed extraction or embedding"),
		ExtractionSkips:   r.Counter("vecsync_extraction_skips_total", "Total number of entities skipped because they produced no searchable content"),
		EmbedDuration:     r.Histogram("vecsync_embed_duration_seconds", "Embedding provider call duration in seconds", DefaultBuckets),
		SearchDuration:    r.Histogram("vecsync_search_duration_seconds", "Similarity search duration in seconds", DefaultBuckets),
		UpsertDuration:    r.Histogram("vecsync_upsert_duration_seconds", "Single-entity upsert duration in seconds", DefaultBuckets),
	}
}
