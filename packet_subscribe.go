package mqtt311

import (
	"bytes"
	"errors"
	"io"
)

var ErrProtocolViolation = errors.New("protocol violation")

// Subscription is a topic filter with its requested QoS.
type Subscription struct {
	TopicFilter string
	QoS         QoS
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *SubscribePacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}
		buf.WriteByte(byte(sub.QoS & 0x03))
	}

	return encodePacket(w, PacketSUBSCRIBE, 0x02, buf.Bytes())
}

// Decode reads the packet from the reader.
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x02 {
		return 0, ErrInvalidPacketFlags
	}

	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = id

	p.Subscriptions = nil
	for totalRead < int(header.RemainingLength) {
		filter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		var opt [1]byte
		n, err = io.ReadFull(r, opt[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		// Upper six bits are reserved.
		if opt[0]&0xFC != 0 {
			return totalRead, ErrProtocolViolation
		}

		p.Subscriptions = append(p.Subscriptions, Subscription{
			TopicFilter: filter,
			QoS:         QoS(opt[0]),
		})
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	for _, sub := range p.Subscriptions {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
		if !sub.QoS.Valid() {
			return ErrInvalidQoS
		}
	}
	return nil
}
