// Package metrics exports cache, fetch and session counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	gomediacache "github.com/dgduncan/go-media-cache"
)

const namespace = "gomediacache"

// Collector owns the metric vectors. Use For to obtain the gomediacache.Metrics of
// one cache.
type Collector struct {
	factory promauto.Factory

	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	expired  *prometheus.CounterVec
	retries  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// For returns the counters labelled with cache.
func (c *Collector) For(cache string) gomediacache.Metrics {
	return &cacheMetrics{
		hits:     c.hits.WithLabelValues(cache),
		misses:   c.misses.WithLabelValues(cache),
		expired:  c.expired.WithLabelValues(cache),
		retries:  c.retries.WithLabelValues(cache),
		failures: c.failures.WithLabelValues(cache),
	}
}

// Sessions exports the number of open picker sessions as reported by fn.
func (c *Collector) Sessions(fn func() int) {
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gif_sessions",
		Help:      "Number of registered GIF picker sessions",
	}, func() float64 { return float64(fn()) })
}

type cacheMetrics struct {
	hits, misses, expired, retries, failures prometheus.Counter
}

func (m *cacheMetrics) Hit()     { m.hits.Inc() }
func (m *cacheMetrics) Miss()    { m.misses.Inc() }
func (m *cacheMetrics) Expired() { m.expired.Inc() }
func (m *cacheMetrics) Retry()   { m.retries.Inc() }
func (m *cacheMetrics) Failure() { m.failures.Inc() }

func counter(f promauto.Factory, name, help string) *prometheus.CounterVec {
	return f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"cache"})
}

// New registers the metric vectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		factory:  f,
		hits:     counter(f, "cache_hits_total", "Lookups served from memory or the store"),
		misses:   counter(f, "cache_misses_total", "Lookups that found nothing stored"),
		expired:  counter(f, "cache_expired_total", "Stored items found past their expiration"),
		retries:  counter(f, "fetch_retries_total", "Fetch attempts that were retried"),
		failures: counter(f, "fetch_failures_total", "Fetches that failed after every retry"),
	}
}
