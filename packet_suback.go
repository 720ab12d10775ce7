package mqtt311

import (
	"io"
)

// SubackPacket represents an MQTT SUBACK packet.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []SubackReturnCode
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// GetPacketID returns the packet identifier.
func (p *SubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	body := make([]byte, 2, 2+len(p.ReturnCodes))
	body[0] = byte(p.PacketID >> 8)
	body[1] = byte(p.PacketID)
	for _, rc := range p.ReturnCodes {
		body = append(body, byte(rc))
	}

	return encodePacket(w, PacketSUBACK, 0x00, body)
}

// Decode reads the packet from the reader.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, ErrInvalidPacketType
	}
	if header.RemainingLength < 3 {
		return 0, ErrProtocolViolation
	}

	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	p.PacketID = id

	codes := make([]byte, header.RemainingLength-2)
	n2, err := io.ReadFull(r, codes)
	n += n2
	if err != nil {
		return n, err
	}

	p.ReturnCodes = make([]SubackReturnCode, len(codes))
	for i, c := range codes {
		p.ReturnCodes[i] = SubackReturnCode(c)
	}

	return n, p.Validate()
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.ReturnCodes) == 0 {
		return ErrProtocolViolation
	}
	for _, rc := range p.ReturnCodes {
		if !rc.Valid() {
			return ErrInvalidReturnCode
		}
	}
	return nil
}
