// Package metrics provides Prometheus metrics for pingdrop.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pingdrop"
)

// Transfer results used as the "result" label.
const (
	ResultComplete   = "complete"
	ResultIncomplete = "incomplete"
	ResultAborted    = "aborted"
)

// Drop reasons used as the "reason" label of FramesDropped.
const (
	DropMalformed    = "malformed"
	DropUnknownType  = "unknown_type"
	DropBadMetadata  = "bad_metadata"
	DropBadFilename  = "bad_filename"
	DropNoSession    = "no_session"
	DropOutOfRange   = "out_of_range"
	DropDuplicate    = "duplicate"
	DropWriteFailure = "write_failure"
	DropPanic        = "panic"
)

// Transfer roles used as the "role" label.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Metrics contains all Prometheus metrics for both roles.
type Metrics struct {
	// Frame metrics
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec

	// Sender metrics
	Retransmissions prometheus.Counter
	AckLatency      prometheus.Histogram
	BytesSent       prometheus.Counter

	// Receiver metrics
	SessionsActive prometheus.Gauge
	ChunksWritten  prometheus.Counter
	BytesWritten   prometheus.Counter
	ChunksPending  prometheus.Gauge
	EchoSuppressed prometheus.Gauge

	// Transfer outcomes
	Transfers *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total frames sent by type",
		}, []string{"frame_type"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total owned frames received by type",
		}, []string{"frame_type"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total received frames discarded by reason",
		}, []string{"reason"}),

		Retransmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "Total frames resent after an ACK timeout",
		}),
		AckLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ack_latency_seconds",
			Help:      "Histogram of time from send to matching ACK",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_bytes_sent_total",
			Help:      "Total file bytes acknowledged by the receiver",
		}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open receive sessions",
		}),
		ChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Total chunks flushed to output files",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_bytes_written_total",
			Help:      "Total bytes flushed to output files",
		}),
		ChunksPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_pending",
			Help:      "Chunks received out of order and not yet written",
		}),
		EchoSuppressed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kernel_echo_suppressed",
			Help:      "1 while kernel echo replies are suppressed by the receiver",
		}),

		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total transfers by role and result",
		}, []string{"role", "result"}),
	}

	return m
}

// RecordFrameSent records a frame being sent.
func (m *Metrics) RecordFrameSent(frameType string) {
	m.FramesSent.WithLabelValues(frameType).Inc()
}

// RecordFrameReceived records an owned frame being received.
func (m *Metrics) RecordFrameReceived(frameType string) {
	m.FramesReceived.WithLabelValues(frameType).Inc()
}

// RecordFrameDropped records a frame discarded before or during dispatch.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordRetransmit records a resend after timeout.
func (m *Metrics) RecordRetransmit() {
	m.Retransmissions.Inc()
}

// RecordAck records a matching ACK with its latency.
func (m *Metrics) RecordAck(latencySeconds float64) {
	m.AckLatency.Observe(latencySeconds)
}

// RecordBytesSent records acknowledged file bytes.
func (m *Metrics) RecordBytesSent(bytes int) {
	m.BytesSent.Add(float64(bytes))
}

// RecordSessionOpen records a receive session being opened.
func (m *Metrics) RecordSessionOpen() {
	m.SessionsActive.Inc()
}

// RecordSessionClose records a receive session being closed.
func (m *Metrics) RecordSessionClose() {
	m.SessionsActive.Dec()
	m.ChunksPending.Set(0)
}

// RecordChunksWritten records chunks flushed to disk.
func (m *Metrics) RecordChunksWritten(chunks, bytes int) {
	m.ChunksWritten.Add(float64(chunks))
	m.BytesWritten.Add(float64(bytes))
}

// SetChunksPending sets the number of buffered out-of-order chunks.
func (m *Metrics) SetChunksPending(count int) {
	m.ChunksPending.Set(float64(count))
}

// SetEchoSuppressed records whether kernel echo replies are suppressed.
func (m *Metrics) SetEchoSuppressed(on bool) {
	if on {
		m.EchoSuppressed.Set(1)
	} else {
		m.EchoSuppressed.Set(0)
	}
}

// RecordTransfer records a finished transfer.
func (m *Metrics) RecordTransfer(role, result string) {
	m.Transfers.WithLabelValues(role, result).Inc()
}
