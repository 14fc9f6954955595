// Package metrics exposes sync observability as prometheus collectors.
// Collection is passive: nothing is transmitted anywhere unless the host
// chooses to scrape or push the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item results recorded per drained queue item.
const (
	ResultSynced   = "synced"
	ResultRejected = "rejected"
	ResultDeferred = "deferred"
)

var (
	// SyncPasses counts completed sync passes by terminal state.
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_sync_passes_total",
		Help: "Completed sync passes, labelled by outcome state.",
	}, []string{"state"})

	// SyncItems counts drained queue items by result.
	SyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_sync_items_total",
		Help: "Queue items processed during sync, labelled by result.",
	}, []string{"result"})

	// QueueDepth tracks the number of pending outbound mutations.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "possync_queue_depth",
		Help: "Pending outbound mutations in the sync queue.",
	})

	// SyncState publishes the engine state as a numeric gauge
	// (0=idle, 1=syncing, 2=auth_failure, 3=backoff_wait).
	SyncState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "possync_sync_state",
		Help: "Current sync engine state (0 idle, 1 syncing, 2 auth failure, 3 backoff wait).",
	})

	// SummaryDegraded counts shift opens whose summary projection failed.
	SummaryDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_summary_degraded_total",
		Help: "Shift opens that proceeded with a degraded summary projection.",
	})
)
