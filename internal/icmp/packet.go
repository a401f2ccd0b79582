package icmp

import (
	"errors"
	"net"
	"time"

	"github.com/postalsys/pingdrop/internal/protocol"
)

// EchoID is the ICMP echo identifier carried by every pingdrop packet.
const EchoID uint16 = 0x4F41

// ErrTimeout is returned by ReadPacket when no echo packet arrived in time.
var ErrTimeout = errors.New("timeout waiting for ICMP packet")

// EchoKind is the echo subtype of a packet.
type EchoKind uint8

const (
	// EchoRequest is ICMP type 8, used for frames sent to the receiver.
	EchoRequest EchoKind = iota
	// EchoReply is ICMP type 0, used for acknowledgments.
	EchoReply
)

// String returns a human-readable name for the kind.
func (k EchoKind) String() string {
	switch k {
	case EchoRequest:
		return "echo-request"
	case EchoReply:
		return "echo-reply"
	default:
		return "unknown"
	}
}

// Packet is one captured ICMP echo packet.
type Packet struct {
	Src     net.IP
	Kind    EchoKind
	ID      uint16
	Seq     uint16
	Payload []byte
}

// Transport sends and captures ICMP echo packets.
// Send and ReadPacket may be called concurrently.
type Transport interface {
	// Send writes one echo packet with the pingdrop identifier to dst.
	// seq is the frame sequence; only its low 16 bits fit the ICMP header.
	Send(dst net.IP, kind EchoKind, seq uint32, payload []byte) error

	// ReadPacket blocks until an echo packet arrives or timeout elapses,
	// in which case it returns ErrTimeout.
	ReadPacket(timeout time.Duration) (*Packet, error)

	// Close releases the socket. Blocked reads return net.ErrClosed.
	Close() error
}

// IsOwned reports whether p belongs to this protocol: it must carry EchoID
// and its payload must decode as a frame.
func IsOwned(p *Packet) bool {
	if p == nil || p.ID != EchoID {
		return false
	}
	return protocol.Valid(p.Payload)
}
