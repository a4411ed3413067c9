// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"service", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"service", "method"},
	)

	PermissionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_total",
			Help: "Permission cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Requests rejected by the gateway rate limiter",
		},
	)

	VoiceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Number of open voice WebSocket sessions",
		},
	)

	VoicePipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "voice_pipeline_duration_seconds",
			Help: "Duration of one utterance pipeline stage in seconds",
		},
		[]string{"stage"}, // stt, intent, route, tts
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Platform events published to the event bus",
		},
		[]string{"event_type", "status"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Platform events consumed by the analytics worker",
		},
		[]string{"event_type", "status"}, // status: ok, duplicate, malformed, failed
	)
)
