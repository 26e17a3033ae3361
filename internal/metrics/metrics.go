// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package metrics defines the Prometheus instrumentation for the sync engine
// and cache manager. All metrics are registered via promauto at package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncEntriesSynced counts queue entries confirmed by the server.
	syncEntriesSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_entries_synced_total",
		Help: "Total number of queue entries successfully synced",
	})

	// syncEntriesFailed counts entries whose drain attempt failed.
	syncEntriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_entries_failed_total",
		Help: "Total number of queue entry drain failures",
	})

	// syncEntriesCleaned counts entries cleared as terminal not-found.
	syncEntriesCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_entries_cleaned_total",
		Help: "Total number of queue entries cleared because the remote object was already gone",
	})

	// syncQueueDepth is the current number of pending queue entries.
	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Current number of pending sync queue entries",
	})

	// syncDrainLatency measures full drain pass latency.
	syncDrainLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_drain_latency_seconds",
		Help:    "Sync queue drain latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// reconcileRuns counts reconciliation passes by outcome.
	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_runs_total",
		Help: "Total number of reconciliation passes by outcome",
	}, []string{"outcome"})

	// cacheRequests counts cache lookups by tier and result.
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of cache lookups by tier and result",
	}, []string{"tier", "result"})

	// cacheRevalidations counts background stale-while-revalidate refreshes.
	cacheRevalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_revalidations_total",
		Help: "Total number of background cache revalidations by outcome",
	}, []string{"outcome"})
)

// RecordEntrySynced increments the synced-entries counter.
func RecordEntrySynced() { syncEntriesSynced.Inc() }

// RecordEntryFailed increments the failed-entries counter.
func RecordEntryFailed() { syncEntriesFailed.Inc() }

// RecordEntryCleaned increments the 404-cleanup counter.
func RecordEntryCleaned() { syncEntriesCleaned.Inc() }

// UpdateQueueDepth sets the pending queue depth gauge.
func UpdateQueueDepth(depth int64) { syncQueueDepth.Set(float64(depth)) }

// RecordDrainLatency observes a full drain pass duration in seconds.
func RecordDrainLatency(seconds float64) { syncDrainLatency.Observe(seconds) }

// RecordReconcileRun counts a reconciliation pass, outcome one of
// "completed", "skipped", "failed".
func RecordReconcileRun(outcome string) { reconcileRuns.WithLabelValues(outcome).Inc() }

// RecordCacheRequest counts a cache lookup, tier one of "memory",
// "persistent", result one of "hit", "stale_hit", "miss", "corrupt".
func RecordCacheRequest(tier, result string) { cacheRequests.WithLabelValues(tier, result).Inc() }

// RecordCacheRevalidation counts a background refresh, outcome one of
// "success", "failure", "deduplicated".
func RecordCacheRevalidation(outcome string) { cacheRevalidations.WithLabelValues(outcome).Inc() }
