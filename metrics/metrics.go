// Package metrics exposes prometheus instrumentation for the chat core
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionState is 0 disconnected, 1 connecting, 2 connected
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evchat_transport_connection_state",
		Help: "Transport session state: 0 disconnected, 1 connecting, 2 connected",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evchat_transport_reconnect_attempts_total",
		Help: "Number of automatic reconnect attempts made by the transport session",
	})
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evchat_transport_frames_received_total",
		Help: "Inbound STOMP frames by command",
	}, []string{"command"})
	MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evchat_store_messages_ingested_total",
		Help: "Messages inserted into the active conversation log",
	})
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evchat_store_duplicates_dropped_total",
		Help: "Inbound messages dropped because their id was already in the log",
	})
	OptimisticReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evchat_store_optimistic_reconciled_total",
		Help: "Pending local entries replaced by their server echo",
	})
	StaleLoadsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evchat_store_stale_loads_discarded_total",
		Help: "History loads discarded because the active conversation changed",
	})
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evchat_send_failures_total",
		Help: "Sends aborted, by reason",
	}, []string{"reason"})
	FallbackSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evchat_send_fallback_total",
		Help: "REST fallback sends after a failed publish, by result",
	}, []string{"result"})
)
