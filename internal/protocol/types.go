// Package protocol defines the wire protocol for pingdrop file transfers.
//
// Every frame travels inside the data section of a single ICMP echo packet.
// Header format (9 bytes):
//
//	Magic    [4 bytes] - "OASI"
//	Type     [1 byte]  - Frame type
//	Sequence [4 bytes] - Sequence number (big-endian)
//
// The payload takes the rest of the echo data. METADATA always uses sequence
// 0, DATA frames use 1..N for a transfer of N chunks and FIN uses N+1.
package protocol

// FrameType identifies the kind of a frame.
type FrameType uint8

// Frame type constants
const (
	FrameMetadata FrameType = 0x01 // Transfer announcement (chunk count + filename)
	FrameData     FrameType = 0x02 // One file chunk
	FrameAck      FrameType = 0x03 // Acknowledgment of a sequence
	FrameFin      FrameType = 0x04 // End of transfer
)

// Protocol constants
const (
	// HeaderSize is the fixed size of the frame header.
	HeaderSize = 9

	// MetadataHeaderSize is the size of the total_chunks field that
	// precedes the filename in a METADATA payload.
	MetadataHeaderSize = 4

	// MetadataSeq is the sequence number carried by METADATA frames.
	MetadataSeq uint32 = 0

	// FirstDataSeq is the sequence number of the first DATA frame.
	FirstDataSeq uint32 = 1
)

// Magic identifies frames belonging to this protocol.
var Magic = [4]byte{'O', 'A', 'S', 'I'}

// String returns the human-readable name of a frame type.
func (t FrameType) String() string {
	switch t {
	case FrameMetadata:
		return "METADATA"
	case FrameData:
		return "DATA"
	case FrameAck:
		return "ACK"
	case FrameFin:
		return "FIN"
	default:
		return "UNKNOWN"
	}
}

// Known reports whether t is one of the defined frame types.
func (t FrameType) Known() bool {
	return t >= FrameMetadata && t <= FrameFin
}

// FinSeq returns the sequence number of the FIN frame for a transfer of
// totalChunks chunks.
func FinSeq(totalChunks uint32) uint32 {
	return totalChunks + 1
}
