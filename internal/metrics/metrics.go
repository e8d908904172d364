// Package metrics exposes prometheus counters for the answer stream, uploads
// and the live transcription relay.
package metrics

import (
	"net/http"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doclens"

// Metrics holds all collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	queries         *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	audioDropped    prometheus.Counter
	transcripts     *prometheus.CounterVec
	activeListeners prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Answer stream frames by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries sent to the answer service by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads forwarded to the answer service by status.",
		}, []string{"status"}),
		audioDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fragments_dropped_total",
			Help:      "Audio fragments dropped because the listen channel was not open.",
		}),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_fragments_total",
			Help:      "Transcript fragments received from the listen socket.",
		}, []string{"final"}),
		activeListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_listen_sessions",
			Help:      "Open live transcription relays.",
		}),
	}

	m.registry.MustRegister(
		m.frames,
		m.queries,
		m.uploads,
		m.audioDropped,
		m.transcripts,
		m.activeListeners,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FrameDecoded counts a frame that produced an event
func (m *Metrics) FrameDecoded(kind domain.EventKind) {
	m.frames.WithLabelValues(kind.String()).Inc()
}

// FrameDropped counts a malformed frame
func (m *Metrics) FrameDropped() {
	m.frames.WithLabelValues("dropped").Inc()
}

// FrameTruncated counts an incomplete frame left at end of stream
func (m *Metrics) FrameTruncated() {
	m.frames.WithLabelValues("truncated").Inc()
}

// QueryFinished counts a finished query; result is complete, error or canceled
func (m *Metrics) QueryFinished(result string) {
	m.queries.WithLabelValues(result).Inc()
}

// UploadFinished counts an upload by status
func (m *Metrics) UploadFinished(status string) {
	m.uploads.WithLabelValues(status).Inc()
}

// AudioDropped counts an audio fragment that could not be sent
func (m *Metrics) AudioDropped() {
	m.audioDropped.Inc()
}

// TranscriptReceived counts a transcript fragment
func (m *Metrics) TranscriptReceived(final bool) {
	label := "false"
	if final {
		label = "true"
	}
	m.transcripts.WithLabelValues(label).Inc()
}

// ListenerOpened tracks a new relay
func (m *Metrics) ListenerOpened() {
	m.activeListeners.Inc()
}

// ListenerClosed tracks a closed relay
func (m *Metrics) ListenerClosed() {
	m.activeListeners.Dec()
}
