// Package metrics holds the broker's Prometheus counters and
// histograms, grounded on the package-level promauto.New* style the
// rest of the corpus uses for its own metrics packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDelaySeconds records now - message_time_ms for every handled
	// message, where message_time_ms is the notification's own change time.
	QueueDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_queue_delay_seconds",
			Help:    "Delay between a message's change time and the broker handling it",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ProcessingDurationSeconds records total handler duration per event
	// type.
	ProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_processing_duration_seconds",
			Help:    "Duration of handling one notification message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// SubscriptionEventDelaySeconds records now - eventCreatedAt*1000 for
	// subscription events only.
	SubscriptionEventDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_subscription_event_delay_seconds",
			Help:    "Delay between a subscription event's eventCreatedAt and handling",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MessagesTotal counts every handled message by event type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_messages_total",
			Help: "Total notification messages handled",
		},
		[]string{"event_type"},
	)

	// PublishedTotal counts every successful fan-out publish by event type.
	PublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_published_total",
			Help: "Total outbound messages published",
		},
		[]string{"event_type"},
	)

	// CodecDroppedTotal counts messages dropped by the codec, by reason.
	CodecDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_codec_dropped_total",
			Help: "Total messages dropped by the codec as unwanted",
		},
		[]string{"reason"},
	)

	// HandlerErrorsTotal counts transient I/O errors by stage (store,
	// publish).
	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_handler_errors_total",
			Help: "Total transient handler errors by stage",
		},
		[]string{"stage"},
	)

	// CacheRefreshTotal counts cache refresh attempts by cache name and
	// result ("success" or "error").
	CacheRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_cache_refresh_total",
			Help: "Total cache refresh attempts by cache and result",
		},
		[]string{"cache", "result"},
	)

	// HandlerPanicsTotal counts handler-level recoveries from the
	// dispatch default branch.
	HandlerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_handler_panics_total",
			Help: "Total handler panics recovered at the per-message boundary",
		},
	)
)
