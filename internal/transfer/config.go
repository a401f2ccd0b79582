package transfer

import (
	"fmt"
	"net"
	"time"

	"github.com/postalsys/pingdrop/internal/echoguard"
	"github.com/postalsys/pingdrop/internal/metrics"
	"github.com/postalsys/pingdrop/internal/protocol"
)

// ClientConfig holds configuration for the sender.
type ClientConfig struct {
	// Destination is the receiver's IPv4 address.
	Destination net.IP

	// PayloadSize is the ICMP data size per frame, header included.
	// Must be greater than protocol.HeaderSize.
	PayloadSize int

	// Interval is the minimum gap between sending consecutive frames.
	// Retransmissions are not paced. 0 disables pacing.
	Interval time.Duration

	// AckTimeout is how long each send waits for its ACK.
	AckTimeout time.Duration

	// MaxRetries is the number of sends per frame before the transfer aborts.
	MaxRetries int

	// BufferSize is the look-ahead buffer capacity in chunks.
	BufferSize int

	// PollInterval bounds each socket read of the ACK listener so it notices
	// cancellation. Default is 200ms.
	PollInterval time.Duration

	// OnProgress is called after each DATA frame is acknowledged.
	OnProgress func(Progress)

	// Metrics receives sender metrics. nil uses metrics.Default().
	Metrics *metrics.Metrics
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
// Destination must still be set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PayloadSize:  512,
		Interval:     50 * time.Millisecond,
		AckTimeout:   2 * time.Second,
		MaxRetries:   5,
		BufferSize:   64,
		PollInterval: 200 * time.Millisecond,
	}
}

// ChunkSize returns the file bytes carried per DATA frame.
func (c ClientConfig) ChunkSize() int {
	return c.PayloadSize - protocol.HeaderSize
}

// Validate checks the configuration for errors.
func (c ClientConfig) Validate() error {
	if c.PayloadSize <= protocol.HeaderSize {
		return fmt.Errorf("%w (got %d)", ErrPayloadTooSmall, c.PayloadSize)
	}
	if c.Destination == nil || c.Destination.To4() == nil {
		return fmt.Errorf("destination must be an IPv4 address")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}

// ServerConfig holds configuration for the receiver.
type ServerConfig struct {
	// OutputDir is where received files are written. Created if missing.
	OutputDir string

	// ListenTimeout bounds the whole Serve call. 0 means no limit.
	ListenTimeout time.Duration

	// KeepListening keeps the receive loop running after a FIN so several
	// transfers can arrive one after another.
	KeepListening bool

	// PollInterval bounds each socket read so the loop notices Stop and
	// cancellation. Default is 200ms.
	PollInterval time.Duration

	// Suppressor disables kernel echo replies while serving. nil means no
	// suppression.
	Suppressor echoguard.Suppressor

	// Metrics receives receiver metrics. nil uses metrics.Default().
	Metrics *metrics.Metrics
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		OutputDir:     ".",
		ListenTimeout: 60 * time.Second,
		PollInterval:  200 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c ServerConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.ListenTimeout < 0 {
		return fmt.Errorf("listen timeout must not be negative")
	}
	return nil
}
