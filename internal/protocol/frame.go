package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned when a frame is too short or carries the
	// wrong magic bytes.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnknownFrameType is returned for unrecognized frame types.
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Frame is a decoded wire frame. Type is passed through verbatim from the
// wire and may hold a value outside the defined set.
type Frame struct {
	Type    FrameType
	Seq     uint32
	Payload []byte
}

// Encode serializes a frame: magic, type, big-endian sequence, payload.
func Encode(frameType FrameType, seq uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))

	copy(buf[0:4], Magic[:])
	buf[4] = byte(frameType)
	binary.BigEndian.PutUint32(buf[5:9], seq)
	copy(buf[HeaderSize:], payload)

	return buf
}

// Encode serializes the frame to bytes.
func (f *Frame) Encode() []byte {
	return Encode(f.Type, f.Seq, f.Payload)
}

// Decode deserializes a frame from bytes. It only checks the length and the
// magic; the type byte is not validated here.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrInvalidFrame, len(buf))
	}
	if !bytes.Equal(buf[0:4], Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFrame)
	}

	payload := make([]byte, len(buf)-HeaderSize)
	copy(payload, buf[HeaderSize:])

	return &Frame{
		Type:    FrameType(buf[4]),
		Seq:     binary.BigEndian.Uint32(buf[5:9]),
		Payload: payload,
	}, nil
}

// Valid reports whether buf would decode into a frame.
func Valid(buf []byte) bool {
	return len(buf) >= HeaderSize && bytes.Equal(buf[0:4], Magic[:])
}

// String returns a debug representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Type=%s, Seq=%d, PayloadLen=%d}",
		f.Type, f.Seq, len(f.Payload))
}
