package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search orchestration metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagespace",
			Name:      "searches_total",
			Help:      "Search navigations by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: stored|image; outcome: bound|failed|superseded|rejected
	)

	FeatureResolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagespace",
			Name:      "feature_resolution_total",
			Help:      "Feature record resolutions by result",
		},
		[]string{"result"}, // found|computed|error
	)

	FeatureCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagespace",
			Name:      "feature_cache_total",
			Help:      "Computed feature cache hits and misses",
		},
		[]string{"result"},
	)

	StaleCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagespace",
			Name:      "stale_completions_total",
			Help:      "Asynchronous completions discarded because a newer search superseded them",
		},
		[]string{"source"}, // resolve|compute|navigation|render
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagespace",
			Name:      "backend_request_duration_seconds",
			Help:      "Outbound backend request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "op", "status"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers the search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(FeatureResolutionTotal)
	prometheus.MustRegister(FeatureCacheTotal)
	prometheus.MustRegister(StaleCompletionsTotal)
	prometheus.MustRegister(BackendRequestDuration)
	searchMetricsRegistered = true
}
