// Package metrics holds the Prometheus instruments of the offline engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRequests counts intercepted requests by tier and by where the response came from.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_requests_total",
			Help: "Requests served by the cache tier manager",
		},
		[]string{"tier", "source"}, // source: network, cache, fallback, unavailable, passthrough
	)

	CacheDeletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_deletions_total",
			Help: "Named caches deleted on activation or reset",
		},
	)

	PackageDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_package_downloads_total",
			Help: "City package download attempts by result",
		},
		[]string{"result"}, // saved, not_modified, quota_exceeded, failed
	)

	VisitsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_visits_queued_total",
			Help: "Visits appended to the sync queue",
		},
	)

	VisitsSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_visits_synced_total",
			Help: "Queued visits acknowledged by the server",
		},
	)

	VisitSyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_visit_sync_failures_total",
			Help: "Queued visit sync attempts that failed",
		},
	)

	VisitsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_visits_dead_lettered_total",
			Help: "Queued visits that exhausted their sync attempts",
		},
	)

	AudioIntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_audio_integrity_failures_total",
			Help: "Stored audio clips discarded after a checksum mismatch",
		},
	)

	ConnectivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_connectivity_transitions_total",
			Help: "Observed online/offline transitions",
		},
		[]string{"to"},
	)
)
