// Package metrics exposes dispatch activity as prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/planner"
)

// Collector records batch, request and cache metrics. It implements
// dispatch.Observer.
type Collector struct {
	batchesTotal    *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	batchTokens     *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	windowWait      *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	inflightBatches prometheus.Gauge
}

// NewCollector registers the metrics on reg under namespace.
// A nil reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of dispatched batches",
		}, []string{"model"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch from first send to last reply",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"model"}),
		batchTokens: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_tokens",
			Help:      "Estimated prompt tokens per batch",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}, []string{"model"}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests by outcome: ok, error or skipped",
		}, []string{"model", "status"}),
		windowWait: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_wait_seconds_total",
			Help:      "Time spent waiting for the next rate window",
		}, []string{"model"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Response cache hits",
		}, []string{"model"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Response cache misses",
		}, []string{"model"}),
		inflightBatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_batches",
			Help:      "Batches currently being dispatched",
		}),
	}
}

func (c *Collector) BatchStarted(model string, b planner.Batch) {
	c.inflightBatches.Inc()
	c.batchTokens.WithLabelValues(model).Observe(float64(b.Cost()))
}

func (c *Collector) BatchFinished(model string, b planner.Batch, results []dispatch.Result, elapsed time.Duration) {
	c.inflightBatches.Dec()
	c.batchesTotal.WithLabelValues(model).Inc()
	c.batchDuration.WithLabelValues(model).Observe(elapsed.Seconds())

	for _, r := range results {
		c.requestsTotal.WithLabelValues(model, status(r)).Inc()
	}
}

func (c *Collector) WindowWait(model string, d time.Duration) {
	c.windowWait.WithLabelValues(model).Add(d.Seconds())
}

// RecordCacheHit counts a response served from cache
func (c *Collector) RecordCacheHit(model string) {
	c.cacheHits.WithLabelValues(model).Inc()
}

// RecordCacheMiss counts a cache lookup that went to the endpoint
func (c *Collector) RecordCacheMiss(model string) {
	c.cacheMisses.WithLabelValues(model).Inc()
}

func status(r dispatch.Result) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "error"
	}
	return "ok"
}

var _ dispatch.Observer = (*Collector)(nil)
