package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_hits_total",
			Help: "Total cache hits per category",
		},
		[]string{"category"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_misses_total",
			Help: "Total cache misses per category",
		},
		[]string{"category"},
	)
)

// Metrics exports cache hit/miss counters. A nil *Metrics disables
// export.
type Metrics struct{}

// NewMetrics returns the process-wide cache metrics handle
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Hit counts a cache hit
func (m *Metrics) Hit(category string) {
	cacheHits.WithLabelValues(category).Inc()
}

// Miss counts a cache miss
func (m *Metrics) Miss(category string) {
	cacheMisses.WithLabelValues(category).Inc()
}
