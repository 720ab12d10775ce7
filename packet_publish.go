package mqtt311

import (
	"bytes"
	"errors"
	"io"
)

// PUBLISH packet errors.
var (
	ErrTopicNameEmpty   = errors.New("topic name cannot be empty")
	ErrInvalidQoS       = errors.New("invalid QoS level")
	ErrPacketIDRequired = errors.New("packet identifier required for QoS > 0")
)

// PublishPacket represents an MQTT PUBLISH packet.
type PublishPacket struct {
	// Topic is the topic name.
	Topic string

	// Payload is the application message.
	Payload []byte

	// QoS is the Quality of Service level.
	QoS QoS

	// Retain indicates if the message should be retained.
	Retain bool

	// DUP indicates if this is a retransmission.
	DUP bool

	// PacketID is the packet identifier (only for QoS > 0).
	PacketID uint16
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType {
	return PacketPUBLISH
}

// GetPacketID returns the packet identifier.
func (p *PublishPacket) GetPacketID() uint16 {
	return p.PacketID
}

// SetPacketID sets the packet identifier.
func (p *PublishPacket) SetPacketID(id uint16) {
	p.PacketID = id
}

func (p *PublishPacket) flags() byte {
	var flags byte
	if p.DUP {
		flags |= 0x08
	}
	flags |= byte(p.QoS&0x03) << 1
	if p.Retain {
		flags |= 0x01
	}
	return flags
}

// Encode writes the packet to the writer.
func (p *PublishPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(p.Topic) + 2 + len(p.Payload))

	if _, err := encodeString(&buf, p.Topic); err != nil {
		return 0, err
	}

	if p.QoS > AtMostOnce {
		if _, err := encodeUint16(&buf, p.PacketID); err != nil {
			return 0, err
		}
	}

	buf.Write(p.Payload)

	return encodePacket(w, PacketPUBLISH, p.flags(), buf.Bytes())
}

// Decode reads the packet from the reader.
func (p *PublishPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketPUBLISH {
		return 0, ErrInvalidPacketType
	}

	p.DUP = header.DUP()
	p.QoS = QoS(header.QoS())
	p.Retain = header.Retain()

	if !p.QoS.Valid() {
		return 0, ErrInvalidQoS
	}

	var totalRead int

	topic, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.Topic = topic

	if p.QoS > AtMostOnce {
		p.PacketID, n, err = decodeUint16(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if p.PacketID == 0 {
			return totalRead, ErrPacketIDRequired
		}
	}

	payloadLen := int(header.RemainingLength) - totalRead
	if payloadLen < 0 {
		return totalRead, ErrVarintMalformed
	}

	if br, ok := r.(*bytesReader); ok {
		p.Payload = br.rest()
	} else if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		n, err = io.ReadFull(r, p.Payload)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		return totalRead, nil
	}

	return totalRead + len(p.Payload), nil
}

// Validate validates the packet contents.
func (p *PublishPacket) Validate() error {
	if p.Topic == "" {
		return ErrTopicNameEmpty
	}

	if err := ValidateTopicName(p.Topic); err != nil {
		return err
	}

	if !p.QoS.Valid() {
		return ErrInvalidQoS
	}

	if p.QoS > AtMostOnce && p.PacketID == 0 {
		return ErrPacketIDRequired
	}

	return nil
}
