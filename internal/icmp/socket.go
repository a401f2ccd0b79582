package icmp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPv4ProtocolNumber is the IANA protocol number for ICMP.
const ICMPv4ProtocolNumber = 1

// Conn is a Transport backed by a raw ICMP socket.
type Conn struct {
	pc  *icmp.PacketConn
	cfg Config
}

// Listen opens the ICMP socket described by cfg.
func Listen(cfg Config) (*Conn, error) {
	if cfg.Network == "" {
		cfg.Network = DefaultConfig().Network
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultConfig().ListenAddress
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}

	pc, err := icmp.ListenPacket(cfg.Network, cfg.ListenAddress)
	if err != nil {
		if perr := CheckPrivileges(); perr != nil {
			return nil, fmt.Errorf("create ICMP socket: %w (%v)", err, perr)
		}
		return nil, fmt.Errorf("create ICMP socket: %w", err)
	}

	return &Conn{pc: pc, cfg: cfg}, nil
}

// MarshalEcho builds the wire bytes of an echo packet with the pingdrop
// identifier.
func MarshalEcho(kind EchoKind, seq uint32, payload []byte) ([]byte, error) {
	var typ icmp.Type = ipv4.ICMPTypeEcho
	if kind == EchoReply {
		typ = ipv4.ICMPTypeEchoReply
	}

	msg := icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(EchoID),
			Seq:  int(uint16(seq)),
			Data: payload,
		},
	}

	return msg.Marshal(nil)
}

// ParseEcho parses the wire bytes of an ICMP message. Non-echo messages
// return an error.
func ParseEcho(src net.IP, buf []byte) (*Packet, error) {
	msg, err := icmp.ParseMessage(ICMPv4ProtocolNumber, buf)
	if err != nil {
		return nil, fmt.Errorf("parse ICMP: %w", err)
	}

	var kind EchoKind
	switch msg.Type {
	case ipv4.ICMPTypeEcho:
		kind = EchoRequest
	case ipv4.ICMPTypeEchoReply:
		kind = EchoReply
	default:
		return nil, fmt.Errorf("unexpected ICMP type: %v", msg.Type)
	}

	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return nil, fmt.Errorf("invalid echo body")
	}

	return &Packet{
		Src:     src,
		Kind:    kind,
		ID:      uint16(echo.ID),
		Seq:     uint16(echo.Seq),
		Payload: echo.Data,
	}, nil
}

// Send writes one echo packet to dst.
func (c *Conn) Send(dst net.IP, kind EchoKind, seq uint32, payload []byte) error {
	msgBytes, err := MarshalEcho(kind, seq, payload)
	if err != nil {
		return fmt.Errorf("marshal ICMP message: %w", err)
	}

	if _, err := c.pc.WriteTo(msgBytes, &net.IPAddr{IP: dst.To4()}); err != nil {
		return fmt.Errorf("send ICMP: %w", err)
	}

	return nil
}

// ReadPacket reads echo packets until one from an allowed source arrives or
// timeout elapses. Other ICMP messages are skipped.
func (c *Conn) ReadPacket(timeout time.Duration) (*Packet, error) {
	deadline := time.Now().Add(timeout)
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, peer, err := c.pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, err
		}

		src := peerIP(peer)
		if !c.cfg.IsSourceAllowed(src) {
			continue
		}

		pkt, err := ParseEcho(src, buf[:n])
		if err != nil {
			continue
		}

		// Echo data aliases buf; copy before the next read reuses it
		pkt.Payload = append([]byte(nil), pkt.Payload...)
		return pkt, nil
	}
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// LocalAddr returns the bound local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.pc.LocalAddr()
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}
