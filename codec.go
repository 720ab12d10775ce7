package mqtt311

import (
	"errors"
	"io"
)

var (
	ErrPacketTooLarge    = errors.New("mqtt311: packet exceeds maximum size")
	ErrUnknownPacketType = errors.New("mqtt311: unknown packet type")
)

// newPacket returns an empty packet for the given type.
func newPacket(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

// ReadPacket reads a complete MQTT packet from the reader.
// If maxSize is greater than 0, packets larger than maxSize will return ErrPacketTooLarge.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, n, err
	}

	reader := getBytesReader(remaining)
	defer putBytesReader(reader)

	if _, err := packet.Decode(reader, header); err != nil {
		return nil, n, err
	}

	return packet, n, nil
}

// WritePacket writes a complete MQTT packet to the writer as a single write.
// If maxSize is greater than 0, packets larger than maxSize will return ErrPacketTooLarge.
func WritePacket(w io.Writer, packet Packet, maxSize uint32) (int, error) {
	if err := packet.Validate(); err != nil {
		return 0, err
	}

	buf := getBytesBuffer()
	defer putBytesBuffer(buf)

	n, err := packet.Encode(buf)
	if err != nil {
		return 0, err
	}
	if maxSize > 0 && uint32(n) > maxSize {
		return 0, ErrPacketTooLarge
	}

	return w.Write(buf.Bytes())
}

// encodePacket writes the fixed header followed by body.
func encodePacket(w io.Writer, t PacketType, flags byte, body []byte) (int, error) {
	header := FixedHeader{
		PacketType:      t,
		Flags:           flags,
		RemainingLength: uint32(len(body)),
	}

	n, err := header.Encode(w)
	if err != nil {
		return n, err
	}
	if len(body) == 0 {
		return n, nil
	}

	n2, err := w.Write(body)
	return n + n2, err
}

// bytesReader wraps a byte slice for io.Reader interface.
type bytesReader struct {
	data []byte
	pos  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// rest returns the unread bytes.
func (r *bytesReader) rest() []byte {
	if r.pos >= len(r.data) {
		return nil
	}
	out := r.data[r.pos:]
	r.pos = len(r.data)
	return out
}

// bytesBuffer is a simple append buffer for encoding.
type bytesBuffer struct {
	data []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bytesBuffer) WriteByte(c byte) error {
	b.data = append(b.data, c)
	return nil
}

func (b *bytesBuffer) Bytes() []byte {
	return b.data
}

func (b *bytesBuffer) Len() int {
	return len(b.data)
}
