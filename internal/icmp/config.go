package icmp

import (
	"fmt"
	"net"
)

// Config holds configuration for the ICMP transport.
type Config struct {
	// Network is the socket network passed to icmp.ListenPacket.
	// Default is "ip4:icmp" (raw socket).
	Network string

	// ListenAddress is the local address to bind.
	// Default is "0.0.0.0".
	ListenAddress string

	// ReadBufferSize is the size of the receive buffer for one packet.
	// Default is 65535.
	ReadBufferSize int

	// AllowedCIDRs restricts which source IPs are accepted.
	// Empty list means all sources are allowed.
	AllowedCIDRs []*net.IPNet
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Network:        "ip4:icmp",
		ListenAddress:  "0.0.0.0",
		ReadBufferSize: 65535,
	}
}

// ParseCIDRs parses a list of CIDR strings into IPNets.
func ParseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	result := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		result = append(result, ipNet)
	}
	return result, nil
}

// IsSourceAllowed reports whether packets from ip may be processed.
// An empty AllowedCIDRs list allows every IPv4 source.
func (c Config) IsSourceAllowed(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	if len(c.AllowedCIDRs) == 0 {
		return true
	}
	for _, cidr := range c.AllowedCIDRs {
		if cidr.Contains(ip4) {
			return true
		}
	}
	return false
}
