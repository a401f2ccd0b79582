package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidMetadata is returned when a METADATA payload is too short or the
// filename is not valid UTF-8.
var ErrInvalidMetadata = errors.New("invalid metadata")

// Metadata is the payload of a METADATA frame.
// Format:
//
//	TotalChunks [4 bytes] - Number of DATA frames (big-endian)
//	Filename    [N bytes] - UTF-8, runs to the end of the payload
//
// Seq is the sequence of the carrying frame. It is MetadataSeq for frames
// pingdrop builds but is kept as received so the ACK can echo it.
type Metadata struct {
	Seq         uint32
	TotalChunks uint32
	Filename    string
}

// Encode serializes the metadata record.
func (m *Metadata) Encode() []byte {
	return EncodeMetadata(m.TotalChunks, m.Filename)
}

// EncodeMetadata serializes a metadata record.
func EncodeMetadata(totalChunks uint32, filename string) []byte {
	buf := make([]byte, MetadataHeaderSize+len(filename))
	binary.BigEndian.PutUint32(buf[0:4], totalChunks)
	copy(buf[MetadataHeaderSize:], filename)
	return buf
}

// DecodeMetadata deserializes a metadata record. The filename is returned
// as sent; callers must run it through SanitizeFilename before use.
func DecodeMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < MetadataHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidMetadata, len(buf))
	}

	name := buf[MetadataHeaderSize:]
	if !utf8.Valid(name) {
		return nil, fmt.Errorf("%w: filename is not valid UTF-8", ErrInvalidMetadata)
	}

	return &Metadata{
		TotalChunks: binary.BigEndian.Uint32(buf[0:4]),
		Filename:    string(name),
	}, nil
}
