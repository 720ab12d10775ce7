package mqtt311

import (
	"bytes"
	"io"
)

// UnsubscribePacket represents an MQTT UNSUBSCRIBE packet.
type UnsubscribePacket struct {
	PacketID     uint16
	TopicFilters []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() PacketType { return PacketUNSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *UnsubscribePacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *UnsubscribePacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *UnsubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, filter := range p.TopicFilters {
		if _, err := encodeString(&buf, filter); err != nil {
			return 0, err
		}
	}

	return encodePacket(w, PacketUNSUBSCRIBE, 0x02, buf.Bytes())
}

// Decode reads the packet from the reader.
func (p *UnsubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketUNSUBSCRIBE {
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

	p.TopicFilters = nil
	for totalRead < int(header.RemainingLength) {
		filter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.TopicFilters = append(p.TopicFilters, filter)
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *UnsubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.TopicFilters) == 0 {
		return ErrProtocolViolation
	}
	for _, filter := range p.TopicFilters {
		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}
	}
	return nil
}
