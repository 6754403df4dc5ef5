package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_webhook_events_total",
			Help: "Inbound subscription events by class and outcome",
		},
		[]string{"class", "outcome"}, // enabled|disabled|unrecognized , subscribed|skipped_missing_details|...
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_store_errors_total",
			Help: "Subscription store failures by operation",
		},
		[]string{"op"}, // read|write
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_deliveries_total",
			Help: "Per-subscriber delivery attempts by status",
		},
		[]string{"status"}, // sent|failed
	)

	BroadcastRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_broadcast_runs_total",
			Help: "Broadcast runs by trigger mode",
		},
		[]string{"mode"}, // scheduled|manual
	)

	BroadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifygw_broadcast_duration_seconds",
			Help:    "Wall-clock duration of broadcast runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

var once sync.Once

// MustRegister registers all collectors once; the server and workers may both call it.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			WebhookEventsTotal,
			StoreErrorsTotal,
			DeliveriesTotal,
			BroadcastRunsTotal,
			BroadcastDuration,
		)
	})
}
