package mqtt311

import (
	"bytes"
	"errors"
	"io"
)

// Protocol versions.
const (
	// ProtocolVersion31 is MQTT 3.1, announced as "MQIsdp".
	ProtocolVersion31 byte = 3
	// ProtocolVersion311 is MQTT 3.1.1, announced as "MQTT".
	ProtocolVersion311 byte = 4
)

// Connect flag bit positions.
const (
	connectFlagCleanSession = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
)

// CONNECT packet errors.
var (
	ErrInvalidProtocolName    = errors.New("invalid protocol name")
	ErrInvalidProtocolVersion = errors.New("unsupported protocol version")
	ErrInvalidConnectFlags    = errors.New("invalid connect flags")
	ErrClientIDTooLong        = errors.New("client ID too long")
	ErrClientIDRequired       = errors.New("client ID required with clean session false")
	ErrPasswordWithoutUser    = errors.New("password requires a username")
)

// protocolName returns the protocol name announced for a protocol level.
func protocolName(version byte) (string, error) {
	switch version {
	case ProtocolVersion31:
		return "MQIsdp", nil
	case ProtocolVersion311:
		return "MQTT", nil
	default:
		return "", ErrInvalidProtocolVersion
	}
}

// ConnectPacket represents an MQTT CONNECT packet.
type ConnectPacket struct {
	// ProtocolVersion is the protocol level, 3 or 4. Zero encodes as 4.
	ProtocolVersion byte

	// ClientID is the client identifier.
	ClientID string

	// CleanSession asks the broker to discard any previous session state.
	CleanSession bool

	// KeepAlive is the keep alive interval in seconds.
	KeepAlive uint16

	// Username for authentication.
	Username string

	// Password for authentication.
	Password []byte

	// Will message configuration.
	WillFlag    bool
	WillRetain  bool
	WillQoS     QoS
	WillTopic   string
	WillPayload []byte
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

func (p *ConnectPacket) version() byte {
	if p.ProtocolVersion == 0 {
		return ProtocolVersion311
	}
	return p.ProtocolVersion
}

func (p *ConnectPacket) connectFlags() byte {
	var flags byte

	if p.CleanSession {
		flags |= connectFlagCleanSession
	}

	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= byte(p.WillQoS&0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}

	if len(p.Password) > 0 {
		flags |= connectFlagPassword
	}

	if p.Username != "" {
		flags |= connectFlagUsername
	}

	return flags
}

func (p *ConnectPacket) setConnectFlags(flags byte) error {
	if flags&0x01 != 0 {
		return ErrInvalidConnectFlags
	}

	p.CleanSession = flags&connectFlagCleanSession != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = QoS((flags >> 3) & 0x03)
	p.WillRetain = flags&connectFlagWillRetain != 0

	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return ErrInvalidConnectFlags
	}
	if !p.WillQoS.Valid() {
		return ErrInvalidConnectFlags
	}

	return nil
}

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	name, err := protocolName(p.version())
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Variable header
	if _, err := encodeString(&buf, name); err != nil {
		return 0, err
	}
	buf.WriteByte(p.version())
	buf.WriteByte(p.connectFlags())
	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	// Payload
	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	if p.WillFlag {
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBinary(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}

	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}

	if len(p.Password) > 0 {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	return encodePacket(w, PacketCONNECT, 0x00, buf.Bytes())
}

// Decode reads the packet from the reader.
func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	name, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	var hdr [2]byte
	n, err = io.ReadFull(r, hdr[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	expected, err := protocolName(hdr[0])
	if err != nil {
		return totalRead, err
	}
	if name != expected {
		return totalRead, ErrInvalidProtocolName
	}
	p.ProtocolVersion = hdr[0]

	if err := p.setConnectFlags(hdr[1]); err != nil {
		return totalRead, err
	}
	usernameFlag := hdr[1]&connectFlagUsername != 0
	passwordFlag := hdr[1]&connectFlagPassword != 0

	p.KeepAlive, n, err = decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if p.WillFlag {
		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		p.WillPayload, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if usernameFlag {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if passwordFlag {
		p.Password, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	if _, err := protocolName(p.version()); err != nil {
		return err
	}

	if len(p.ClientID) > maxUint16 {
		return ErrClientIDTooLong
	}

	// MQTT 3.1 caps identifiers at 23 bytes.
	if p.version() == ProtocolVersion31 && len(p.ClientID) > 23 {
		return ErrClientIDTooLong
	}

	if !p.CleanSession && p.ClientID == "" {
		return ErrClientIDRequired
	}

	if !p.WillQoS.Valid() {
		return ErrInvalidConnectFlags
	}

	if !p.WillFlag && (p.WillRetain || p.WillQoS != 0) {
		return ErrInvalidConnectFlags
	}

	if p.WillFlag {
		if err := ValidateTopicName(p.WillTopic); err != nil {
			return err
		}
	}

	if len(p.Password) > 0 && p.Username == "" {
		return ErrPasswordWithoutUser
	}

	return nil
}
