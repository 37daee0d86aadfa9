package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the pipeline's Prometheus metrics.
type Registry struct {
	StepDuration      *prometheus.HistogramVec
	PlacesTotal       *prometheus.CounterVec
	PlaceDuration     prometheus.Histogram
	RetriesTotal      *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec
	GraphNodes        *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialised.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.StepDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "food_access_step_duration_seconds",
			Help:    "Duration of each fusion pipeline step",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"step"},
	)
	r.PlacesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "food_access_places_total",
			Help: "Places processed by outcome",
		},
		[]string{"status"},
	)
	r.PlaceDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "food_access_place_duration_seconds",
			Help:    "End-to-end duration of one place",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	r.RetriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "food_access_retries_total",
			Help: "Retries of external retrieval by operation",
		},
		[]string{"operation"},
	)
	r.CacheLookupsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "food_access_cache_lookups_total",
			Help: "Result cache lookups by driver and outcome",
		},
		[]string{"driver", "result"},
	)
	r.GraphNodes = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "food_access_graph_nodes",
			Help:    "Node count of the fused graph before and after cleaning",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"stage"},
	)
	return r
}

// Prometheus returns the underlying registry for exposition.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ObserveStep records the duration of a pipeline step.
func (r *Registry) ObserveStep(step string, d time.Duration) {
	r.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordPlace records the outcome of one place.
func (r *Registry) RecordPlace(status string, d time.Duration) {
	r.PlacesTotal.WithLabelValues(status).Inc()
	r.PlaceDuration.Observe(d.Seconds())
}

// RecordRetry counts one retry of operation.
func (r *Registry) RecordRetry(operation string) {
	r.RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (r *Registry) RecordCacheLookup(driver string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookupsTotal.WithLabelValues(driver, result).Inc()
}

// RecordGraphSize records the node count at a pipeline stage.
func (r *Registry) RecordGraphSize(stage string, nodes int) {
	r.GraphNodes.WithLabelValues(stage).Observe(float64(nodes))
}
