package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takeoff",
			Name:      "search_runs_total",
			Help:      "Total number of symbol search runs",
		},
		[]string{"scope", "status"},
	)

	SearchRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "takeoff",
			Name:      "search_run_duration_seconds",
			Help:      "Symbol search run duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"scope"},
	)

	SearchUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takeoff",
			Name:      "search_units_total",
			Help:      "Total page units processed",
		},
		[]string{"status"}, // "ok" / "failed"
	)

	SearchMatchesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "takeoff",
			Name:      "search_matches_found_total",
			Help:      "Total matches surviving aggregation",
		},
	)

	ScorerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "takeoff",
			Name:      "scorer_duration_seconds",
			Help:      "Per-page match scorer duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	MeasurementsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "takeoff",
			Name:      "measurements_created_total",
			Help:      "Total count measurements materialized",
		},
	)
)

// RegisterSearchMetrics registers search pipeline metrics explicitly (no init()).
func RegisterSearchMetrics() {
	prometheus.MustRegister(
		SearchRunsTotal,
		SearchRunDuration,
		SearchUnitsTotal,
		SearchMatchesFound,
		ScorerDuration,
		MeasurementsCreated,
	)
}
