package mqtt311

import (
	"errors"
	"io"
)

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT 3.1.1 control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
)

var packetTypeNames = [...]string{
	PacketCONNECT:     "CONNECT",
	PacketCONNACK:     "CONNACK",
	PacketPUBLISH:     "PUBLISH",
	PacketPUBACK:      "PUBACK",
	PacketPUBREC:      "PUBREC",
	PacketPUBREL:      "PUBREL",
	PacketPUBCOMP:     "PUBCOMP",
	PacketSUBSCRIBE:   "SUBSCRIBE",
	PacketSUBACK:      "SUBACK",
	PacketUNSUBSCRIBE: "UNSUBSCRIBE",
	PacketUNSUBACK:    "UNSUBACK",
	PacketPINGREQ:     "PINGREQ",
	PacketPINGRESP:    "PINGRESP",
	PacketDISCONNECT:  "DISCONNECT",
}

// String returns the string representation of the packet type.
func (p PacketType) String() string {
	if !p.Valid() {
		return "UNKNOWN"
	}
	return packetTypeNames[p]
}

// Valid returns true if the packet type is defined by MQTT 3.1.1.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketDISCONNECT
}

// Fixed header errors.
var (
	ErrInvalidPacketType  = errors.New("invalid packet type")
	ErrInvalidPacketFlags = errors.New("invalid packet flags")
)

// FixedHeader represents the fixed header of an MQTT control packet.
type FixedHeader struct {
	PacketType      PacketType
	Flags           byte
	RemainingLength uint32
}

// Encode writes the fixed header to the writer.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	if !h.PacketType.Valid() {
		return 0, ErrInvalidPacketType
	}

	var buf [5]byte
	buf[0] = byte(h.PacketType)<<4 | (h.Flags & 0x0F)

	n, err := putVarint(buf[1:], h.RemainingLength)
	if err != nil {
		return 0, err
	}

	return w.Write(buf[:1+n])
}

// Decode reads the fixed header from the reader.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var buf [1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	h.PacketType = PacketType(buf[0] >> 4)
	h.Flags = buf[0] & 0x0F

	if !h.PacketType.Valid() {
		return n, ErrInvalidPacketType
	}

	length, n2, err := decodeVarint(r)
	n += n2
	if err != nil {
		return n, err
	}

	h.RemainingLength = length
	return n, h.ValidateFlags()
}

// Size returns the encoded size of the fixed header in bytes.
func (h *FixedHeader) Size() int {
	return 1 + varintSize(h.RemainingLength)
}

// ValidateFlags checks the reserved flag bits for the packet type.
func (h *FixedHeader) ValidateFlags() error {
	switch h.PacketType {
	case PacketPUBLISH:
		if h.QoS() > 2 {
			return ErrInvalidPacketFlags
		}
		return nil

	case PacketPUBREL, PacketSUBSCRIBE, PacketUNSUBSCRIBE:
		if h.Flags != 0x02 {
			return ErrInvalidPacketFlags
		}
		return nil

	case PacketCONNECT, PacketCONNACK, PacketPUBACK, PacketPUBREC,
		PacketPUBCOMP, PacketSUBACK, PacketUNSUBACK, PacketPINGREQ,
		PacketPINGRESP, PacketDISCONNECT:
		if h.Flags != 0x00 {
			return ErrInvalidPacketFlags
		}
		return nil

	default:
		return ErrInvalidPacketType
	}
}

// DUP returns the DUP flag of a PUBLISH header.
func (h *FixedHeader) DUP() bool {
	return h.Flags&0x08 != 0
}

// QoS returns the QoS bits of a PUBLISH header.
func (h *FixedHeader) QoS() byte {
	return (h.Flags >> 1) & 0x03
}

// Retain returns the RETAIN flag of a PUBLISH header.
func (h *FixedHeader) Retain() bool {
	return h.Flags&0x01 != 0
}
