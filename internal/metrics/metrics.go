// Package metrics exposes cadence's Prometheus collectors. All Record
// methods are nil-safe so components can take an optional *Metrics without
// guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the daemon registers.
type Metrics struct {
	ActiveFeeds     prometheus.Gauge
	FeedsStarted    prometheus.Counter
	FeedsEnded      *prometheus.CounterVec
	FramesDelivered *prometheus.CounterVec
	BytesDelivered  *prometheus.CounterVec
	UnderrunTicks   *prometheus.CounterVec
	BufferedFrames  *prometheus.GaugeVec
	IngestBytes     prometheus.Counter
	IngestChunks    prometheus.Counter
	ViewerSessions  prometheus.Gauge
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		ActiveFeeds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_active_feeds",
			Help: "Number of currently active feeds",
		}),
		FeedsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadence_feeds_started_total",
			Help: "Total number of feed sessions started",
		}),
		FeedsEnded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_feeds_ended_total",
				Help: "Total number of feed sessions ended",
			},
			[]string{"reason"}, // drained, stopped, error, superseded
		),
		FramesDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_frames_delivered_total",
				Help: "Total frames forwarded to sinks",
			},
			[]string{"kind"}, // audio or video
		),
		BytesDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_bytes_delivered_total",
				Help: "Total frame bytes forwarded to sinks",
			},
			[]string{"kind"},
		),
		UnderrunTicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_underrun_ticks_total",
				Help: "Clock ticks that found no complete frame buffered",
			},
			[]string{"kind"},
		),
		BufferedFrames: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cadence_buffered_frames",
				Help: "Complete frames currently buffered per feed kind",
			},
			[]string{"kind"},
		),
		IngestBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadence_ingest_bytes_total",
			Help: "Total payload bytes received from publishers",
		}),
		IngestChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadence_ingest_chunks_total",
			Help: "Total payload chunks received from publishers",
		}),
		ViewerSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_viewer_sessions",
			Help: "Number of connected viewer sessions",
		}),
	}
}

// RecordFeedStart records a feed session starting.
func (m *Metrics) RecordFeedStart() {
	if m == nil {
		return
	}
	m.ActiveFeeds.Inc()
	m.FeedsStarted.Inc()
}

// RecordFeedEnd records a feed session ending with the given reason.
func (m *Metrics) RecordFeedEnd(reason string) {
	if m == nil {
		return
	}
	m.ActiveFeeds.Dec()
	m.FeedsEnded.WithLabelValues(reason).Inc()
}

// RecordFrameOut records one frame forwarded to a sink.
func (m *Metrics) RecordFrameOut(kind string, bytes int) {
	if m == nil {
		return
	}
	m.FramesDelivered.WithLabelValues(kind).Inc()
	m.BytesDelivered.WithLabelValues(kind).Add(float64(bytes))
}

// RecordUnderrun records a tick that found nothing to deliver.
func (m *Metrics) RecordUnderrun(kind string) {
	if m == nil {
		return
	}
	m.UnderrunTicks.WithLabelValues(kind).Inc()
}

// RecordDepth records the current buffered-frame count.
func (m *Metrics) RecordDepth(kind string, frames int) {
	if m == nil {
		return
	}
	m.BufferedFrames.WithLabelValues(kind).Set(float64(frames))
}

// RecordIngest records one received payload chunk.
func (m *Metrics) RecordIngest(bytes int) {
	if m == nil {
		return
	}
	m.IngestBytes.Add(float64(bytes))
	m.IngestChunks.Inc()
}

// RecordViewerStart records a viewer connecting.
func (m *Metrics) RecordViewerStart() {
	if m == nil {
		return
	}
	m.ViewerSessions.Inc()
}

// RecordViewerStop records a viewer disconnecting.
func (m *Metrics) RecordViewerStop() {
	if m == nil {
		return
	}
	m.ViewerSessions.Dec()
}
