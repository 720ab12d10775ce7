package mqtt311

import "io"

// emptyDecode checks the header of a packet that carries no body.
func emptyDecode(header FixedHeader, want PacketType) (int, error) {
	if header.PacketType != want {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return 0, ErrInvalidPacketFlags
	}
	if header.RemainingLength != 0 {
		return 0, ErrProtocolViolation
	}
	return 0, nil
}

// PingreqPacket represents an MQTT PINGREQ packet.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// Encode writes the packet to the writer.
func (p *PingreqPacket) Encode(w io.Writer) (int, error) {
	return encodePacket(w, PacketPINGREQ, 0x00, nil)
}

// Decode reads the packet from the reader.
func (p *PingreqPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return emptyDecode(header, PacketPINGREQ)
}

// Validate validates the packet contents.
func (p *PingreqPacket) Validate() error { return nil }

// PingrespPacket represents an MQTT PINGRESP packet.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// Encode writes the packet to the writer.
func (p *PingrespPacket) Encode(w io.Writer) (int, error) {
	return encodePacket(w, PacketPINGRESP, 0x00, nil)
}

// Decode reads the packet from the reader.
func (p *PingrespPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return emptyDecode(header, PacketPINGRESP)
}

// Validate validates the packet contents.
func (p *PingrespPacket) Validate() error { return nil }
