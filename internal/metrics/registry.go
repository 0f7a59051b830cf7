package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions for the auction API.

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "handler", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method", "handler"},
	)

	// Bid pipeline metrics
	BidsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "accepted_total",
			Help:      "Bids accepted and persisted",
		},
	)

	BidsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "rejected_total",
			Help:      "Bids rejected, by reason",
		},
		[]string{"reason"},
	)

	BidCriticalSection = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "critical_section_seconds",
			Help:      "Time spent holding the per-auction lock",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// Lock service metrics
	LockAcquireDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "lock",
			Name:      "acquire_duration_seconds",
			Help:      "Time waiting to acquire the per-auction lock",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	LockTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "lock",
			Name:      "timeouts_total",
			Help:      "Lock acquisitions abandoned after the wait budget",
		},
	)

	// Lifecycle metrics
	AuctionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "lifecycle",
			Name:      "finalized_total",
			Help:      "Auctions moved to a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	// Real-time fan-out metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "auction",
			Subsystem: "ws",
			Name:      "connected_clients",
			Help:      "Currently connected WebSocket clients (advisory)",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "ws",
			Name:      "events_published_total",
			Help:      "Real-time events published, by type",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "ws",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client buffer was full",
		},
	)
)

// ObserveCriticalSection records a completed critical section.
func ObserveCriticalSection(start time.Time) {
	BidCriticalSection.Observe(time.Since(start).Seconds())
}
