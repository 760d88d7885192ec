// Package prometheus implements latchkv.MetricsCollector on top of
// github.com/prometheus/client_golang, the way the teacher's own
// examples/otel-prometheus wires observability for balios, except this
// package talks to client_golang's registry directly instead of routing
// through an OpenTelemetry MeterProvider: latchkv has no otel package of
// its own (see DESIGN.md), and client_golang is already a direct dependency
// pulled in for exactly this purpose.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a latchkv.MetricsCollector backed by Prometheus counters
// and histograms. The zero value is not usable; build one with New.
type Collector struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	latency   *prometheus.HistogramVec
}

// Options configures a Collector's metric names and registry.
type Options struct {
	// Namespace prefixes every metric name (e.g. "latchkv"). Default:
	// "latchkv".
	Namespace string

	// Registerer is the Prometheus registry metrics are registered
	// against. Default: prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// LatencyBuckets overrides the default latency histogram buckets (in
	// seconds). Default: prometheus.DefBuckets.
	LatencyBuckets []float64
}

// New builds a Collector and registers its metrics with opts.Registerer
// (or the default global registry). Registering the same Collector twice
// against the same registry panics, matching client_golang's own
// MustRegister semantics.
func New(opts Options) *Collector {
	if opts.Namespace == "" {
		opts.Namespace = "latchkv"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.LatencyBuckets == nil {
		opts.LatencyBuckets = prometheus.DefBuckets
	}

	c := &Collector{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "cache_hits_total",
			Help:      "Number of Get calls that found their key.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "cache_misses_total",
			Help:      "Number of Get calls that did not find their key.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "cache_evictions_total",
			Help:      "Number of entries evicted to make room for another.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Latency of cache operations, by operation name.",
			Buckets:   opts.LatencyBuckets,
		}, []string{"op"}),
	}

	opts.Registerer.MustRegister(c.hits, c.misses, c.evictions, c.latency)
	return c
}

// ObserveHit implements latchkv.MetricsCollector.
func (c *Collector) ObserveHit() { c.hits.Inc() }

// ObserveMiss implements latchkv.MetricsCollector.
func (c *Collector) ObserveMiss() { c.misses.Inc() }

// ObserveEviction implements latchkv.MetricsCollector.
func (c *Collector) ObserveEviction() { c.evictions.Inc() }

// ObserveOperation implements latchkv.MetricsCollector.
func (c *Collector) ObserveOperation(op string, durationNanos int64) {
	c.latency.WithLabelValues(op).Observe(time.Duration(durationNanos).Seconds())
}
