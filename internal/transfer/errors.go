package transfer

import (
	"errors"
	"fmt"

	"github.com/postalsys/pingdrop/internal/protocol"
)

var (
	// ErrPayloadTooSmall is returned by NewClient when the payload size
	// leaves no room for file data after the frame header.
	ErrPayloadTooSmall = fmt.Errorf("payload size must be greater than %d", protocol.HeaderSize)

	// ErrTransferAborted is matched by *AbortError.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrFileTooLarge is returned when a file needs more chunks than the
	// 32-bit sequence space allows.
	ErrFileTooLarge = errors.New("file too large for payload size")
)

// AbortError reports a frame that was never acknowledged.
type AbortError struct {
	Type     protocol.FrameType
	Seq      uint32
	Attempts int
}

// Error implements error.
func (e *AbortError) Error() string {
	return fmt.Sprintf("failed to get ACK for %s seq=%d after %d attempts", e.Type, e.Seq, e.Attempts)
}

// Unwrap lets errors.Is match ErrTransferAborted.
func (e *AbortError) Unwrap() error {
	return ErrTransferAborted
}
