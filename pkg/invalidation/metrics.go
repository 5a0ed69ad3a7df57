package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Events counts handled change events by resource type
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statscache_invalidation_events_total",
		Help: "Total change events handled by resource type",
	}, []string{"resource_type"})

	// Reconnects counts change feed reconnect attempts
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statscache_invalidation_reconnects_total",
		Help: "Total change feed reconnect attempts",
	})

	// ReconnectBackoff observes the wait before each reconnect
	ReconnectBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statscache_invalidation_reconnect_backoff_seconds",
		Help:    "Backoff before change feed reconnect attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	// Connected is 1 while the change feed subscription is live
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statscache_invalidation_connected",
		Help: "Whether the change feed subscription is live (1) or not (0)",
	})

	// Dropped counts change payloads that could not be decoded
	Dropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statscache_invalidation_dropped_total",
		Help: "Total malformed change payloads dropped",
	})
)
