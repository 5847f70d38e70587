package observability

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := &Counter{}
	c.Inc()
	c.Add(2.5)
	c.Add(-1) // negative adds are ignored
	if got := c.Value(); got != 3.5 {
		t.Errorf("Value = %f, want 3.5", got)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	c := &Counter{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	if got := c.Value(); got != 100 {
		t.Errorf("Value = %f, want 100", got)
	}
}

func TestGauge(t *testing.T) {
	g := &Gauge{}
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if got := g.Value(); got != 4 {
		t.Errorf("Value = %f, want 4", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram([]float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	buckets, counts, sum, count := h.Snapshot()
	if len(buckets) != 3 {
		t.Fatalf("buckets = %v", buckets)
	}
	// Bucket counts are cumulative.
	if counts[0] != 1 || counts[1] != 2 || counts[2] != 3 {
		t.Errorf("counts = %v, want [1 2 3]", counts)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if diff := sum - 55.55; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("sum = %f, want 55.55", sum)
	}
}

func TestHistogram_ObserveDuration(t *testing.T) {
	h := NewHistogram(DefaultBuckets)
	h.ObserveDuration(50 * time.Millisecond)

	_, counts, _, count := h.Snapshot()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	// 0.05s lands in the 0.05 bucket and all larger ones.
	if counts[3] != 1 {
		t.Errorf("counts = %v, want observation in the 0.05 bucket", counts)
	}
}

func TestRegistry_ReturnsSameMetric(t *testing.T) {
	r := NewMetricsRegistry()
	a := r.Counter("requests_total", "help")
	b := r.Counter("requests_total", "help")
	if a != b {
		t.Error("same name returned distinct counters")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewMetricsRegistry()
	r.Counter("zeta_total", "last alphabetically").Add(7)
	r.Gauge("alpha_current", "first alphabetically").Set(2.5)
	r.Histogram("latency_seconds", "request latency", []float64{0.1, 1}).Observe(0.5)

	var sb strings.Builder
	r.WritePrometheus(&sb)
	out := sb.String()

	for _, want := range []string{
		"# HELP alpha_current first alphabetically",
		"# TYPE alpha_current gauge",
		"alpha_current 2.5",
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="0.1"} 0`,
		`latency_seconds_bucket{le="1"} 1`,
		`latency_seconds_bucket{le="+Inf"} 1`,
		"latency_seconds_sum 0.5",
		"latency_seconds_count 1",
		"# TYPE zeta_total counter",
		"zeta_total 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	// Metrics are rendered in sorted name order.
	if strings.Index(out, "alpha_current") > strings.Index(out, "zeta_total") {
		t.Error("metrics not sorted by name")
	}
}

func TestHandler(t *testing.T) {
	r := NewMetricsRegistry()
	r.Counter("requests_total", "total requests").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "requests_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestNewIndexingMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	m := NewIndexingMetrics(r)

	m.VectorsIndexed.Inc()
	m.Searches.Inc()
	m.EmbedDuration.ObserveDuration(10 * time.Millisecond)

	var sb strings.Builder
	r.WritePrometheus(&sb)
	out := sb.String()

	for _, want := range []string{
		"vecsync_vectors_indexed_total 1",
		"vecsync_searches_total 1",
		"vecsync_embed_duration_seconds_count 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
