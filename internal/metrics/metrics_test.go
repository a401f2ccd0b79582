package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Create a new registry for isolated testing
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}

	if m.FramesSent == nil {
		t.Error("FramesSent metric is nil")
	}
	if m.SessionsActive == nil {
		t.Error("SessionsActive metric is nil")
	}
	if m.Transfers == nil {
		t.Error("Transfers metric is nil")
	}
}

func TestRecordFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordFrameSent("DATA")
	m.RecordFrameSent("DATA")
	m.RecordFrameSent("METADATA")
	m.RecordFrameReceived("ACK")
	m.RecordFrameDropped("invalid_metadata")

	if got := testutil.ToFloat64(m.FramesSent.WithLabelValues("DATA")); got != 2 {
		t.Errorf("FramesSent[DATA] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FramesSent.WithLabelValues("METADATA")); got != 1 {
		t.Errorf("FramesSent[METADATA] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesReceived.WithLabelValues("ACK")); got != 1 {
		t.Errorf("FramesReceived[ACK] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues("invalid_metadata")); got != 1 {
		t.Errorf("FramesDropped[invalid_metadata] = %v, want 1", got)
	}
}

func TestRecordSenderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordRetransmit()
	m.RecordRetransmit()
	m.RecordAck(0.01)
	m.RecordBytesSent(503)
	m.RecordBytesSent(10)

	if got := testutil.ToFloat64(m.Retransmissions); got != 2 {
		t.Errorf("Retransmissions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesSent); got != 513 {
		t.Errorf("BytesSent = %v, want 513", got)
	}
	if got := testutil.CollectAndCount(m.AckLatency); got != 1 {
		t.Errorf("AckLatency series = %d, want 1", got)
	}
}

func TestRecordSessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSessionOpen()
	m.SetChunksPending(3)
	m.RecordChunksWritten(1, 100)
	m.RecordChunksWritten(1, 50)

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("SessionsActive = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ChunksPending); got != 3 {
		t.Errorf("ChunksPending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ChunksWritten); got != 2 {
		t.Errorf("ChunksWritten = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesWritten); got != 150 {
		t.Errorf("BytesWritten = %v, want 150", got)
	}

	m.RecordSessionClose()

	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("SessionsActive = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ChunksPending); got != 0 {
		t.Errorf("ChunksPending = %v, want 0 after close", got)
	}
}

func TestSetEchoSuppressed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SetEchoSuppressed(true)
	if got := testutil.ToFloat64(m.EchoSuppressed); got != 1 {
		t.Errorf("EchoSuppressed = %v, want 1", got)
	}
	m.SetEchoSuppressed(false)
	if got := testutil.ToFloat64(m.EchoSuppressed); got != 0 {
		t.Errorf("EchoSuppressed = %v, want 0", got)
	}
}

func TestRecordTransfer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordTransfer(RoleSender, ResultComplete)
	m.RecordTransfer(RoleSender, ResultAborted)
	m.RecordTransfer(RoleReceiver, ResultIncomplete)
	m.RecordTransfer(RoleReceiver, ResultIncomplete)

	tests := []struct {
		role, result string
		want         float64
	}{
		{RoleSender, ResultComplete, 1},
		{RoleSender, ResultAborted, 1},
		{RoleReceiver, ResultIncomplete, 2},
		{RoleReceiver, ResultComplete, 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.Transfers.WithLabelValues(tt.role, tt.result)); got != tt.want {
			t.Errorf("Transfers[%s,%s] = %v, want %v", tt.role, tt.result, got, tt.want)
		}
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()
	if m1 != m2 {
		t.Error("Default() should return the same instance")
	}
}
