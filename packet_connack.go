package mqtt311

import (
	"errors"
	"io"
)

// CONNACK packet errors.
var (
	ErrInvalidConnackFlags = errors.New("invalid CONNACK flags")
	ErrInvalidReturnCode   = errors.New("invalid return code")
)

// ConnackPacket represents an MQTT CONNACK packet.
type ConnackPacket struct {
	// SessionPresent indicates if the broker resumed a previous session.
	SessionPresent bool

	// ReturnCode is the connection result.
	ReturnCode ConnectReturnCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var flags byte
	if p.SessionPresent {
		flags = 0x01
	}

	return encodePacket(w, PacketCONNACK, 0x00, []byte{flags, byte(p.ReturnCode)})
}

// Decode reads the packet from the reader.
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}

	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	if buf[0]&0xFE != 0 {
		return n, ErrInvalidConnackFlags
	}

	p.SessionPresent = buf[0]&0x01 != 0
	p.ReturnCode = ConnectReturnCode(buf[1])

	return n, nil
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	if !p.ReturnCode.Valid() {
		return ErrInvalidReturnCode
	}

	if p.ReturnCode != ConnectAccepted && p.SessionPresent {
		return ErrInvalidConnackFlags
	}

	return nil
}
