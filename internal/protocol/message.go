package protocol

import "fmt"

// Message is a frame decoded into its typed form. It is implemented only by
// *Metadata, *Data, *Ack and *Fin.
type Message interface {
	// Sequence returns the frame sequence number.
	Sequence() uint32

	// FrameType returns the wire type of the message.
	FrameType() FrameType

	isMessage()
}

// Data carries one chunk of the file. Seq is the 1-based chunk index.
type Data struct {
	Seq     uint32
	Payload []byte
}

// Ack acknowledges the frame with the same sequence number.
type Ack struct {
	Seq uint32
}

// Fin ends a transfer. Seq is total_chunks+1.
type Fin struct {
	Seq uint32
}

func (m *Metadata) Sequence() uint32 { return m.Seq }
func (m *Data) Sequence() uint32     { return m.Seq }
func (m *Ack) Sequence() uint32      { return m.Seq }
func (m *Fin) Sequence() uint32      { return m.Seq }

func (m *Metadata) FrameType() FrameType { return FrameMetadata }
func (m *Data) FrameType() FrameType     { return FrameData }
func (m *Ack) FrameType() FrameType      { return FrameAck }
func (m *Fin) FrameType() FrameType      { return FrameFin }

func (*Metadata) isMessage() {}
func (*Data) isMessage()     {}
func (*Ack) isMessage()      {}
func (*Fin) isMessage()      {}

// Parse converts a decoded frame into its typed message. It returns
// ErrUnknownFrameType for type values outside the defined set and
// ErrInvalidMetadata when a METADATA payload cannot be decoded.
func Parse(f *Frame) (Message, error) {
	switch f.Type {
	case FrameMetadata:
		m, err := DecodeMetadata(f.Payload)
		if err != nil {
			return nil, err
		}
		m.Seq = f.Seq
		return m, nil
	case FrameData:
		return &Data{Seq: f.Seq, Payload: f.Payload}, nil
	case FrameAck:
		return &Ack{Seq: f.Seq}, nil
	case FrameFin:
		return &Fin{Seq: f.Seq}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrameType, uint8(f.Type))
	}
}

// ParseBytes decodes raw bytes straight into a typed message.
func ParseBytes(buf []byte) (Message, error) {
	f, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	return Parse(f)
}

// EncodeMessage serializes a typed message into a wire frame.
func EncodeMessage(m Message) []byte {
	switch v := m.(type) {
	case *Metadata:
		return Encode(FrameMetadata, v.Seq, v.Encode())
	case *Data:
		return Encode(FrameData, v.Seq, v.Payload)
	case *Ack:
		return Encode(FrameAck, v.Seq, nil)
	case *Fin:
		return Encode(FrameFin, v.Seq, nil)
	default:
		panic(fmt.Sprintf("protocol: unexpected message type %T", m))
	}
}
