package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Соединения и присутствие
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	PresenceJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_joined",
			Help: "Connections that completed the join handshake",
		},
	)

	// Сообщения
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages stored and broadcast",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_dropped_total",
			Help: "Inbound messages or outbound events that were discarded",
		},
		[]string{"reason"}, // unjoined, empty, too-long, store-error, slow-client
	)

	// Хранилище
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_operation_duration_seconds",
			Help:    "Message store call latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5, 1},
		},
		[]string{"backend", "op"},
	)
)
