package rss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skimmer_feed_updates_total",
		Help: "Feed update attempts by result",
	}, []string{"result"})

	entriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skimmer_entries_created_total",
		Help: "Entries stored by the feed updater",
	})

	itemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skimmer_item_failures_total",
		Help: "Feed items that could not be stored",
	})

	feedFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skimmer_feed_fetch_duration_seconds",
		Help:    "Time spent fetching and parsing a feed document",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})
)
