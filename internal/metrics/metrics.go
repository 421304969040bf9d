// Package metrics defines and registers all custom Prometheus metrics
// for the guest-list sync client. It is the single source of truth for
// metric names, labels, and help strings.
//
// Metrics are registered with the default registry at import time; the
// `run` command exposes them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guestsync"

// ── Push channel ─────────────────────────────────────────────────────────────

// ConnectsTotal counts connection attempts on the push channel.
// Label:
//   - result: "ok" (status received, authorized) or "error"
var ConnectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connects_total",
		Help:      "Total number of push channel connection attempts.",
	},
	[]string{"result"},
)

// MessagesReceivedTotal counts inbound push messages by event kind.
var MessagesReceivedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total number of push messages received, labelled by event.",
	},
	[]string{"event"},
)

// PendingRequestsDrained counts correlated requests rejected because the
// channel dropped before their response arrived.
var PendingRequestsDrained = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pending_requests_drained_total",
		Help:      "Total number of in-flight requests rejected on disconnect.",
	},
)

// ── Action buffer ────────────────────────────────────────────────────────────

// BufferDepth tracks the current number of unconfirmed buffered writes.
var BufferDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffer_depth",
		Help:      "Current number of buffered write intents awaiting replay.",
	},
)

// ReplaysTotal counts buffered actions replayed against the server.
// Label:
//   - result: "ok" (confirmed, entry deleted) or "error" (replay halted)
var ReplaysTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replays_total",
		Help:      "Total number of buffered action replay attempts.",
	},
	[]string{"result"},
)

// ── Reconciler ───────────────────────────────────────────────────────────────

// EventsAppliedTotal counts authoritative server events applied to the
// local store, labelled by event kind.
var EventsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_applied_total",
		Help:      "Total number of server events applied to the local store.",
	},
	[]string{"event"},
)
