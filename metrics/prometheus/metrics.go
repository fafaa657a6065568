// Package prometheus provides Prometheus metrics for the connector.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moltbot_connector"

var (
	// messagesTotal counts inbound messages by kind and outcome.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of inbound messages handled",
		},
		[]string{"kind", "status"}, // status: success, error, reset, empty
	)

	// streamDuration is a histogram of completion stream duration in seconds.
	streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of completion streams in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"}, // status: success, error
	)

	// cardPushesTotal counts card streaming pushes.
	cardPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_pushes_total",
			Help:      "Total number of card content pushes",
		},
		[]string{"status"}, // status: success, error, throttled
	)

	// cardFallbacksTotal counts degraded plain-message deliveries.
	cardFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_fallbacks_total",
			Help:      "Total number of messages delivered without a streaming card",
		},
	)

	// mediaUploadsTotal counts media reference uploads.
	mediaUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Total number of local media uploads",
		},
		[]string{"status"}, // status: success, error
	)

	// sessionsActive is a gauge of tracked conversation sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of tracked conversation sessions",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		messagesTotal,
		streamDuration,
		cardPushesTotal,
		cardFallbacksTotal,
		mediaUploadsTotal,
		sessionsActive,
	}
)

// RecordMessage records one handled inbound message.
func RecordMessage(kind, status string) {
	messagesTotal.WithLabelValues(kind, status).Inc()
}

// RecordStreamDuration records one completion stream's duration.
func RecordStreamDuration(status string, durationSeconds float64) {
	streamDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordCardPush records one card content push.
func RecordCardPush(status string) {
	cardPushesTotal.WithLabelValues(status).Inc()
}

// RecordCardFallback records one degraded plain-message delivery.
func RecordCardFallback() {
	cardFallbacksTotal.Inc()
}

// RecordMediaUpload records one media upload attempt.
func RecordMediaUpload(status string) {
	mediaUploadsTotal.WithLabelValues(status).Inc()
}

// SetSessionsActive updates the tracked-sessions gauge.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}
