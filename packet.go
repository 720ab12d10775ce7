package mqtt311

import "io"

// Packet is the interface that all MQTT control packets implement.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet, fixed header included, to the writer.
	// Returns the number of bytes written.
	Encode(w io.Writer) (int, error)

	// Decode reads the packet body from the reader.
	// The fixed header should already be decoded.
	// Returns the number of bytes read.
	Decode(r io.Reader, header FixedHeader) (int, error)

	// Validate validates the packet contents.
	Validate() error
}

// PacketWithID is implemented by packets that carry a packet identifier.
type PacketWithID interface {
	Packet

	// GetPacketID returns the packet identifier.
	GetPacketID() uint16

	// SetPacketID sets the packet identifier.
	SetPacketID(id uint16)
}

// Message represents an MQTT application message.
type Message struct {
	// Topic is the topic name the message was published to.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the Quality of Service level (0, 1, or 2).
	QoS QoS

	// Retain indicates if this is a retained message.
	Retain bool

	// Duplicate is set when the broker flagged the PUBLISH as a redelivery.
	Duplicate bool

	// PacketID is the identifier of the PUBLISH that carried the message.
	// Zero for QoS 0.
	PacketID uint16
}

// Clone creates a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := *m
	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}

	return &clone
}

// messageFromPublish builds a Message view over an inbound PUBLISH.
func messageFromPublish(p *PublishPacket) *Message {
	return &Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       p.QoS,
		Retain:    p.Retain,
		Duplicate: p.DUP,
		PacketID:  p.PacketID,
	}
}
