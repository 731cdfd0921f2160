package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	allocationsTotal     *prometheus.CounterVec
	reservationConflicts prometheus.Counter
	candidatePoolSize    prometheus.Histogram
	allocationLatency    prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Histogram, prometheus.Histogram) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocations_total",
			Help: "Allocation attempts by outcome",
		},
		[]string{"outcome"},
	)
	conflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_conflicts_total",
			Help: "Reservations lost to a concurrent allocation",
		},
	)
	pool := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_candidate_pool_size",
			Help:    "Number of candidates fetched per allocation",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)
	latency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_duration_seconds",
			Help:    "End-to-end latency of allocate calls",
			Buckets: prometheus.DefBuckets,
		},
	)
	return total, conflicts, pool, latency
}

func init() {
	allocationsTotal, reservationConflicts, candidatePoolSize, allocationLatency = newCollectors()
	prometheus.MustRegister(allocationsTotal, reservationConflicts, candidatePoolSize, allocationLatency)
}

const (
	outcomeAllocated    = "allocated"
	outcomeNoCandidates = "no_candidates"
	outcomeRuleNotFound = "rule_not_found"
	outcomeExhausted    = "exhausted"
	outcomeError        = "error"
)
