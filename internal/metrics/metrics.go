package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pair pipeline metrics
	PairsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_pairs_evaluated_total",
		Help: "Total number of token pairs run through the settlement pipeline",
	})

	PairsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_pairs_skipped_total",
		Help: "Total number of token pairs skipped because the time budget ran out",
	})

	PairOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsolver_pair_outcomes_total",
			Help: "Token pair results by outcome",
		},
		[]string{"outcome"},
	)

	PairDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchsolver_pair_duration_seconds",
		Help:    "Single token pair pipeline duration in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsolver_validation_failures_total",
			Help: "Rounded solutions rejected by the validator, by rule",
		},
		[]string{"rule"},
	)

	// Search metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsolver_search_requests_total",
			Help: "Total number of solve runs",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchsolver_search_duration_seconds",
			Help:    "Solve run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	EligiblePairs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchsolver_eligible_pairs",
		Help:    "Number of eligible token pairs per best-pair search",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
	})

	BestObjective = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchsolver_best_objective",
		Help: "Score of the most recent best pair search result",
	})

	OrdersTouched = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchsolver_orders_touched",
		Help:    "Number of executed orders per returned solution",
		Buckets: []float64{0, 2, 3, 5, 10, 20, 30},
	})

	// Cache metrics
	SolutionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_solution_cache_hits_total",
		Help: "Total number of solution cache hits",
	})

	SolutionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_solution_cache_misses_total",
		Help: "Total number of solution cache misses",
	})

	SolutionCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchsolver_solution_cache_size",
		Help: "Current number of entries in the solution cache",
	})

	// Archive metrics
	ArchivedSolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_archived_solutions_total",
		Help: "Total number of solutions written to the archive",
	})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchsolver_archive_failures_total",
		Help: "Total number of failed archive writes",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsolver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchsolver_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
