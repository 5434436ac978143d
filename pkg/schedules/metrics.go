package schedules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for schedule fetches.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bugbug_requests_total",
		Help: "Total bugbug schedule requests by HTTP status",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bugbug_push_schedules_duration_seconds",
		Help:    "Time spent polling bugbug for push schedules by outcome",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 240, 480},
	}, []string{"outcome"})

	pollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bugbug_poll_attempts",
		Help:    "Number of 202 responses consumed per fetch",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 48},
	})

	memoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bugbug_memo_lookups_total",
		Help: "Schedule fetches answered from the memo (hit) or the network (miss)",
	}, []string{"result"})
)

// Outcome labels.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeTimedOut  = "timed_out"
)
