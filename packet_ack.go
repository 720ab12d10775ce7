package mqtt311

import (
	"errors"
	"io"
)

// ErrInvalidPacketID is returned for a zero packet identifier.
var ErrInvalidPacketID = errors.New("packet identifier cannot be zero")

// encodeAck encodes a packet whose body is only a packet identifier
// (PUBACK, PUBREC, PUBREL, PUBCOMP, UNSUBACK).
func encodeAck(w io.Writer, packetType PacketType, flags byte, id uint16) (int, error) {
	if id == 0 {
		return 0, ErrInvalidPacketID
	}
	return encodePacket(w, packetType, flags, []byte{byte(id >> 8), byte(id)})
}

func decodeAck(r io.Reader, header FixedHeader, want PacketType) (uint16, int, error) {
	if header.PacketType != want {
		return 0, 0, ErrInvalidPacketType
	}
	if header.RemainingLength != 2 {
		return 0, 0, ErrVarintMalformed
	}

	id, n, err := decodeUint16(r)
	if err != nil {
		return 0, n, err
	}
	if id == 0 {
		return 0, n, ErrInvalidPacketID
	}
	return id, n, nil
}

func validateAckID(id uint16) error {
	if id == 0 {
		return ErrInvalidPacketID
	}
	return nil
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID uint16
}

func (p *PubackPacket) Type() PacketType      { return PacketPUBACK }
func (p *PubackPacket) GetPacketID() uint16   { return p.PacketID }
func (p *PubackPacket) SetPacketID(id uint16) { p.PacketID = id }
func (p *PubackPacket) Validate() error       { return validateAckID(p.PacketID) }

func (p *PubackPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBACK, 0x00, p.PacketID)
}

func (p *PubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var n int
	var err error
	p.PacketID, n, err = decodeAck(r, header, PacketPUBACK)
	return n, err
}

// PubrecPacket is the first acknowledgement of a QoS 2 PUBLISH.
type PubrecPacket struct {
	PacketID uint16
}

func (p *PubrecPacket) Type() PacketType      { return PacketPUBREC }
func (p *PubrecPacket) GetPacketID() uint16   { return p.PacketID }
func (p *PubrecPacket) SetPacketID(id uint16) { p.PacketID = id }
func (p *PubrecPacket) Validate() error       { return validateAckID(p.PacketID) }

func (p *PubrecPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBREC, 0x00, p.PacketID)
}

func (p *PubrecPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var n int
	var err error
	p.PacketID, n, err = decodeAck(r, header, PacketPUBREC)
	return n, err
}

// PubrelPacket releases a QoS 2 message. Its fixed header flags are 0x02.
type PubrelPacket struct {
	PacketID uint16
}

func (p *PubrelPacket) Type() PacketType      { return PacketPUBREL }
func (p *PubrelPacket) GetPacketID() uint16   { return p.PacketID }
func (p *PubrelPacket) SetPacketID(id uint16) { p.PacketID = id }
func (p *PubrelPacket) Validate() error       { return validateAckID(p.PacketID) }

func (p *PubrelPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBREL, 0x02, p.PacketID)
}

func (p *PubrelPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var n int
	var err error
	p.PacketID, n, err = decodeAck(r, header, PacketPUBREL)
	return n, err
}

// PubcompPacket completes a QoS 2 exchange.
type PubcompPacket struct {
	PacketID uint16
}

func (p *PubcompPacket) Type() PacketType      { return PacketPUBCOMP }
func (p *PubcompPacket) GetPacketID() uint16   { return p.PacketID }
func (p *PubcompPacket) SetPacketID(id uint16) { p.PacketID = id }
func (p *PubcompPacket) Validate() error       { return validateAckID(p.PacketID) }

func (p *PubcompPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBCOMP, 0x00, p.PacketID)
}

func (p *PubcompPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var n int
	var err error
	p.PacketID, n, err = decodeAck(r, header, PacketPUBCOMP)
	return n, err
}

// UnsubackPacket acknowledges an UNSUBSCRIBE.
type UnsubackPacket struct {
	PacketID uint16
}

func (p *UnsubackPacket) Type() PacketType      { return PacketUNSUBACK }
func (p *UnsubackPacket) GetPacketID() uint16   { return p.PacketID }
func (p *UnsubackPacket) SetPacketID(id uint16) { p.PacketID = id }
func (p *UnsubackPacket) Validate() error       { return validateAckID(p.PacketID) }

func (p *UnsubackPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketUNSUBACK, 0x00, p.PacketID)
}

func (p *UnsubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var n int
	var err error
	p.PacketID, n, err = decodeAck(r, header, PacketUNSUBACK)
	return n, err
}
