package mqtt311

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeToBytes(t *testing.T, p Packet) []byte {
	t.Helper()

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestNewPacket(t *testing.T) {
	for pt := PacketCONNECT; pt <= PacketDISCONNECT; pt++ {
		p, err := newPacket(pt)
		require.NoError(t, err)
		assert.Equal(t, pt, p.Type())
	}

	_, err := newPacket(15)
	assert.ErrorIs(t, err, ErrUnknownPacketType)
}

func TestEmptyPackets(t *testing.T) {
	tests := []struct {
		packet  Packet
		encoded []byte
	}{
		{&PingreqPacket{}, []byte{0xC0, 0x00}},
		{&PingrespPacket{}, []byte{0xD0, 0x00}},
		{&DisconnectPacket{}, []byte{0xE0, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.packet.Type().String(), func(t *testing.T) {
			assert.Equal(t, tt.encoded, encodeToBytes(t, tt.packet))
			assert.NoError(t, tt.packet.Validate())

			_, err := tt.packet.Decode(nil, FixedHeader{PacketType: tt.packet.Type(), RemainingLength: 1})
			assert.ErrorIs(t, err, ErrProtocolViolation)

			_, err = tt.packet.Decode(nil, FixedHeader{PacketType: PacketCONNECT})
			assert.ErrorIs(t, err, ErrInvalidPacketType)
		})
	}
}

func TestPacketWithID(t *testing.T) {
	packets := []PacketWithID{
		&PublishPacket{},
		&PubackPacket{},
		&PubrecPacket{},
		&PubrelPacket{},
		&PubcompPacket{},
		&SubscribePacket{},
		&SubackPacket{},
		&UnsubscribePacket{},
		&UnsubackPacket{},
	}

	for _, p := range packets {
		p.SetPacketID(42)
		assert.Equal(t, uint16(42), p.GetPacketID(), p.Type().String())
	}
}

func TestMessageClone(t *testing.T) {
	msg := &Message{Topic: "a", Payload: []byte("data"), QoS: AtLeastOnce, PacketID: 3}
	clone := msg.Clone()

	assert.Equal(t, msg, clone)
	clone.Payload[0] = 'D'
	assert.Equal(t, "data", string(msg.Payload))

	assert.Nil(t, (*Message)(nil).Clone())
}

func TestMessageFromPublish(t *testing.T) {
	p := &PublishPacket{Topic: "t", Payload: []byte("x"), QoS: ExactlyOnce, Retain: true, DUP: true, PacketID: 9}
	msg := messageFromPublish(p)

	assert.Equal(t, &Message{
		Topic:     "t",
		Payload:   []byte("x"),
		QoS:       ExactlyOnce,
		Retain:    true,
		Duplicate: true,
		PacketID:  9,
	}, msg)
}
