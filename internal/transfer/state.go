package transfer

import "sync/atomic"

// FrameState is the ARQ state of the outstanding frame.
type FrameState int

const (
	// StatePrepared means the frame is encoded but not yet sent.
	StatePrepared FrameState = iota
	// StateSent means the frame is on the wire and awaiting its ACK.
	StateSent
	// StateAcked means the matching ACK arrived.
	StateAcked
	// StateTimedOut means AckTimeout expired; the frame is resent or the
	// transfer aborts.
	StateTimedOut
)

// String returns a human-readable name for the state.
func (s FrameState) String() string {
	switch s {
	case StatePrepared:
		return "PREPARED"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// noSeq marks that no frame is awaiting an ACK.
const noSeq = -1

// sendState is shared by the send loop and the ACK listener. The listener
// only ever calls deliver; everything else belongs to the send loop.
type sendState struct {
	expected atomic.Int64
	acks     chan uint32
}

func newSendState() *sendState {
	s := &sendState{acks: make(chan uint32, 1)}
	s.expected.Store(noSeq)
	return s
}

// expect arms the state for seq and discards any ACK left in the slot.
func (s *sendState) expect(seq uint32) {
	s.expected.Store(int64(seq))
	s.drain()
}

// clear disarms the state.
func (s *sendState) clear() {
	s.expected.Store(noSeq)
}

func (s *sendState) drain() {
	select {
	case <-s.acks:
	default:
	}
}

// deliver hands an ACK to the send loop if it matches the outstanding
// sequence. It never blocks; a second ACK while the slot is full is dropped.
func (s *sendState) deliver(seq uint32) bool {
	if int64(seq) != s.expected.Load() {
		return false
	}
	select {
	case s.acks <- seq:
		return true
	default:
		return false
	}
}
