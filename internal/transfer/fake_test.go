package transfer

import (
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/postalsys/pingdrop/internal/echoguard"
	"github.com/postalsys/pingdrop/internal/icmp"
	"github.com/postalsys/pingdrop/internal/metrics"
	"github.com/postalsys/pingdrop/internal/protocol"
)

var (
	senderIP   = net.IPv4(192, 0, 2, 10).To4()
	receiverIP = net.IPv4(192, 0, 2, 20).To4()
)

type sentPacket struct {
	Dst     net.IP
	Kind    icmp.EchoKind
	Seq     uint32
	Payload []byte
}

func (p sentPacket) frame() *protocol.Frame {
	f, err := protocol.Decode(p.Payload)
	if err != nil {
		panic(err)
	}
	return f
}

// fakeTransport records sends and serves reads from an inbox. onSend runs
// synchronously for every send, outside the lock.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []sentPacket
	onSend func(sentPacket)

	inbox     chan *icmp.Packet
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan *icmp.Packet, 1024),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(dst net.IP, kind icmp.EchoKind, seq uint32, payload []byte) error {
	p := sentPacket{Dst: dst, Kind: kind, Seq: seq, Payload: append([]byte(nil), payload...)}
	f.mu.Lock()
	f.sent = append(f.sent, p)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (f *fakeTransport) ReadPacket(timeout time.Duration) (*icmp.Packet, error) {
	select {
	case <-f.closed:
		return nil, net.ErrClosed
	default:
	}
	select {
	case p := <-f.inbox:
		return p, nil
	case <-f.closed:
		return nil, net.ErrClosed
	case <-time.After(timeout):
		return nil, icmp.ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) inject(p *icmp.Packet) {
	select {
	case f.inbox <- p:
	default:
	}
}

func (f *fakeTransport) Sent() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentPacket, len(f.sent))
	copy(out, f.sent)
	return out
}

// autoAck makes the transport acknowledge every frame it sends, unless
// drop returns true for it. n counts sends of that sequence, starting at 1.
func (f *fakeTransport) autoAck(drop func(p sentPacket, n int) bool) {
	var mu sync.Mutex
	counts := make(map[uint32]int)
	f.onSend = func(p sentPacket) {
		mu.Lock()
		counts[p.Seq]++
		n := counts[p.Seq]
		mu.Unlock()
		if drop != nil && drop(p, n) {
			return
		}
		f.inject(echoPacket(receiverIP, icmp.EchoReply, protocol.Encode(protocol.FrameAck, p.Seq, nil)))
	}
}

func echoPacket(src net.IP, kind icmp.EchoKind, frame []byte) *icmp.Packet {
	f, err := protocol.Decode(frame)
	seq := uint16(0)
	if err == nil {
		seq = uint16(f.Seq)
	}
	return &icmp.Packet{Src: src, Kind: kind, ID: icmp.EchoID, Seq: seq, Payload: frame}
}

func request(frame []byte) *icmp.Packet {
	return echoPacket(senderIP, icmp.EchoRequest, frame)
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
}

// fakeSuppressor counts Suppress and restore calls.
type fakeSuppressor struct {
	mu       sync.Mutex
	calls    int
	restores int
	err      error
}

func (s *fakeSuppressor) Suppress() (echoguard.Restore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return func() error { return nil }, s.err
	}
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.restores++
		return nil
	}, nil
}

func (s *fakeSuppressor) counts() (calls, restores int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.restores
}
