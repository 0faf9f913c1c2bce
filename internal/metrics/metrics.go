// Package metrics exposes Prometheus instrumentation for the remote
// session and playback pipeline. It is ambient observability (SPEC_FULL.md
// §C) bound to an HTTP listener only when --metrics-addr is set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReconnectsTotal counts WebSocket reconnect attempts by cause.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pleezer_reconnects_total",
			Help: "Total number of remote session reconnect attempts",
		},
		[]string{"cause"},
	)

	// QueueDepth tracks the current queue length.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pleezer_queue_depth",
			Help: "Number of items in the current queue",
		},
	)

	// ActiveDownloads tracks concurrently open AudioFile downloads (current + preload).
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pleezer_active_downloads",
			Help: "Number of active track downloads",
		},
	)

	// DownloadBytesTotal counts bytes received from the CDN.
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pleezer_download_bytes_total",
			Help: "Total bytes downloaded from the CDN",
		},
	)

	// DecoderUnderrunsTotal counts audio render underruns (silence inserted).
	DecoderUnderrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pleezer_decoder_underruns_total",
			Help: "Total PCM ring buffer underruns",
		},
	)

	// ErrorsTotal counts errors observed by category.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pleezer_errors_total",
			Help: "Total errors by category",
		},
		[]string{"type"},
	)

	// GatewayRequestDuration tracks gateway RPC latency by method.
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pleezer_gateway_request_duration_seconds",
			Help:    "Gateway RPC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordError increments ErrorsTotal for the given category.
func RecordError(category string) {
	ErrorsTotal.WithLabelValues(category).Inc()
}

// RecordReconnect increments ReconnectsTotal for the given cause.
func RecordReconnect(cause string) {
	ReconnectsTotal.WithLabelValues(cause).Inc()
}
