// Package metrics exposes the Prometheus metrics emitted by the
// signaling broker and transfer engine. Naming follows the
// namespace_subsystem_name convention used throughout this repository.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dropwire"

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Number of rooms currently held open by the broker.",
	})

	PeersConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "peers_connected",
		Help:      "Number of peers currently attached to a room.",
	}, []string{"room_code"})

	SignalingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "events_total",
		Help:      "Count of signaling messages processed, by event type and outcome.",
	}, []string{"event_type", "status"})

	SignalingMessageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "message_duration_seconds",
		Help:      "Time spent dispatching a signaling message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	TransferChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transfer",
		Name:      "chunks_total",
		Help:      "Count of file chunks processed, by direction and outcome.",
	}, []string{"direction", "status"})

	TransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transfer",
		Name:      "bytes_total",
		Help:      "Total bytes transferred, by direction.",
	}, []string{"direction"})

	RoomExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "expirations_total",
		Help:      "Count of rooms removed by the expiry sweep.",
	})
)
