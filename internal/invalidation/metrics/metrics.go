package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsReceived counts invalidation signals by the channel they
	// arrived through (local, crosstab, feed).
	SignalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_invalidation_signals_total",
		Help: "Invalidation signals received, by source channel",
	}, []string{"source"})

	// SignalsStale counts cross-context signals discarded by the staleness
	// window check.
	SignalsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quorum_invalidation_stale_total",
		Help: "Cross-context signals discarded as stale",
	})

	// SignalsDropped counts signals dropped for reasons other than
	// staleness (malformed payload, closed controller).
	SignalsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_invalidation_dropped_total",
		Help: "Invalidation signals dropped before delivery",
	}, []string{"reason"})

	// BroadcastFailures counts cross-context store writes that failed and
	// were swallowed. Failures here never surface to the mutation path.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quorum_invalidation_broadcast_failures_total",
		Help: "Cross-context broadcast attempts that failed",
	})

	// Refreshes counts refetch callbacks fired per portal and trigger
	// source. Coalescing means this is usually far below signals_total.
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_invalidation_refreshes_total",
		Help: "Portal refetch callbacks invoked, by portal and source",
	}, []string{"portal", "source"})

	// GuardDecisions counts role guard outcomes per portal.
	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_authz_decisions_total",
		Help: "Role guard decisions, by portal and phase",
	}, []string{"portal", "phase"})
)
