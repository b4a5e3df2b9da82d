package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workroom transitions by outcome reason.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transitions_total",
			Help: "Workroom transitions by transition and reason",
		},
		[]string{"transition", "reason"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_notifications_total",
			Help: "Notification deliveries by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	FloodWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_flood_waits_total",
			Help: "Rate-limit responses honoured by the membership reconciler",
		},
	)

	FloodWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_flood_wait_seconds",
			Help:    "Provider-requested wait before retrying a member",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	StorageOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_storage_ops_total",
			Help: "Record store operations",
		},
		[]string{"kind", "op", "result"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_webhook_duration_seconds",
			Help:    "Time spent running the handlers of one webhook delivery",
			Buckets: []float64{.05, .1, .25, .5, 1, 5, 30, 120, 600},
		},
		[]string{"event"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
