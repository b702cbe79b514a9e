// Package metrics registers the engine's prometheus instrumentation,
// following the package-level promauto pattern used throughout
// dendrite's syncapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts response-cache hits, by outcome.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncengine",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Count of sync requests handled by the response cache, by outcome.",
	}, []string{"outcome"}) // hit|miss|coalesced

	// MaterializeDuration measures per-room materialization latency.
	MaterializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "syncengine",
		Subsystem: "room",
		Name:      "materialize_seconds",
		Help:      "Time spent materializing a single room's sync contribution.",
		Buckets:   prometheus.DefBuckets,
	})

	// PaginatorPageSize records how many rooms were included per page.
	PaginatorPageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "syncengine",
		Subsystem: "paginate",
		Name:      "page_size",
		Help:      "Number of rooms included in a lazy-loading page.",
		Buckets:   []float64{1, 5, 10, 20, 50, 100, 200},
	})

	// LongPollWaitSeconds measures how long a request waited on the
	// notifier before a result was returned.
	LongPollWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "syncengine",
		Subsystem: "longpoll",
		Name:      "wait_seconds",
		Help:      "Time a sync request spent waiting on the notifier.",
		Buckets:   prometheus.DefBuckets,
	})
)
