package mqtt311

import (
	"bytes"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests check the codec against the Eclipse Paho packet library, in
// both directions and byte for byte.

func pahoPacket(t *testing.T, packetType byte, fill func(cp packets.ControlPacket)) packets.ControlPacket {
	t.Helper()
	cp := packets.NewControlPacket(packetType)
	require.NotNil(t, cp)
	fill(cp)
	return cp
}

func TestConformanceWithPaho(t *testing.T) {
	tests := []struct {
		name string
		ours Packet
		paho packets.ControlPacket
	}{
		{
			name: "CONNECT 3.1.1 full",
			ours: &ConnectPacket{
				ProtocolVersion: ProtocolVersion311,
				ClientID:        "paho-check",
				CleanSession:    true,
				KeepAlive:       30,
				Username:        "user",
				Password:        []byte("secret"),
				WillFlag:        true,
				WillQoS:         AtLeastOnce,
				WillRetain:      true,
				WillTopic:       "clients/paho-check/status",
				WillPayload:     []byte("offline"),
			},
			paho: pahoPacket(t, packets.Connect, func(cp packets.ControlPacket) {
				p := cp.(*packets.ConnectPacket)
				p.ProtocolName = "MQTT"
				p.ProtocolVersion = 4
				p.ClientIdentifier = "paho-check"
				p.CleanSession = true
				p.Keepalive = 30
				p.UsernameFlag = true
				p.Username = "user"
				p.PasswordFlag = true
				p.Password = []byte("secret")
				p.WillFlag = true
				p.WillQos = 1
				p.WillRetain = true
				p.WillTopic = "clients/paho-check/status"
				p.WillMessage = []byte("offline")
			}),
		},
		{
			name: "CONNECT 3.1",
			ours: &ConnectPacket{
				ProtocolVersion: ProtocolVersion31,
				ClientID:        "legacy",
				KeepAlive:       60,
			},
			paho: pahoPacket(t, packets.Connect, func(cp packets.ControlPacket) {
				p := cp.(*packets.ConnectPacket)
				p.ProtocolName = "MQIsdp"
				p.ProtocolVersion = 3
				p.ClientIdentifier = "legacy"
				p.Keepalive = 60
			}),
		},
		{
			name: "CONNACK",
			ours: &ConnackPacket{SessionPresent: true, ReturnCode: ConnectAccepted},
			paho: pahoPacket(t, packets.Connack, func(cp packets.ControlPacket) {
				cp.(*packets.ConnackPacket).SessionPresent = true
			}),
		},
		{
			name: "CONNACK refused",
			ours: &ConnackPacket{ReturnCode: ConnectRefusedBadUsernamePassword},
			paho: pahoPacket(t, packets.Connack, func(cp packets.ControlPacket) {
				cp.(*packets.ConnackPacket).ReturnCode = packets.ErrRefusedBadUsernameOrPassword
			}),
		},
		{
			name: "PUBLISH QoS 0 retained",
			ours: &PublishPacket{Topic: "a/b", Payload: []byte("hello"), Retain: true},
			paho: pahoPacket(t, packets.Publish, func(cp packets.ControlPacket) {
				p := cp.(*packets.PublishPacket)
				p.TopicName = "a/b"
				p.Payload = []byte("hello")
				p.Retain = true
			}),
		},
		{
			name: "PUBLISH QoS 2 DUP",
			ours: &PublishPacket{Topic: "a/b", Payload: make([]byte, 300), QoS: ExactlyOnce, DUP: true, PacketID: 513},
			paho: pahoPacket(t, packets.Publish, func(cp packets.ControlPacket) {
				p := cp.(*packets.PublishPacket)
				p.TopicName = "a/b"
				p.Payload = make([]byte, 300)
				p.Qos = 2
				p.Dup = true
				p.MessageID = 513
			}),
		},
		{
			name: "PUBACK",
			ours: &PubackPacket{PacketID: 1},
			paho: pahoPacket(t, packets.Puback, func(cp packets.ControlPacket) {
				cp.(*packets.PubackPacket).MessageID = 1
			}),
		},
		{
			name: "PUBREC",
			ours: &PubrecPacket{PacketID: 2},
			paho: pahoPacket(t, packets.Pubrec, func(cp packets.ControlPacket) {
				cp.(*packets.PubrecPacket).MessageID = 2
			}),
		},
		{
			name: "PUBREL",
			ours: &PubrelPacket{PacketID: 3},
			paho: pahoPacket(t, packets.Pubrel, func(cp packets.ControlPacket) {
				cp.(*packets.PubrelPacket).MessageID = 3
			}),
		},
		{
			name: "PUBCOMP",
			ours: &PubcompPacket{PacketID: 65535},
			paho: pahoPacket(t, packets.Pubcomp, func(cp packets.ControlPacket) {
				cp.(*packets.PubcompPacket).MessageID = 65535
			}),
		},
		{
			name: "SUBSCRIBE",
			ours: &SubscribePacket{
				PacketID: 10,
				Subscriptions: []Subscription{
					{TopicFilter: "sensors/+/temp", QoS: AtLeastOnce},
					{TopicFilter: "alerts/#", QoS: ExactlyOnce},
				},
			},
			paho: pahoPacket(t, packets.Subscribe, func(cp packets.ControlPacket) {
				p := cp.(*packets.SubscribePacket)
				p.MessageID = 10
				p.Topics = []string{"sensors/+/temp", "alerts/#"}
				p.Qoss = []byte{1, 2}
			}),
		},
		{
			name: "SUBACK",
			ours: &SubackPacket{PacketID: 10, ReturnCodes: []SubackReturnCode{SubackGrantedQoS1, SubackFailure}},
			paho: pahoPacket(t, packets.Suback, func(cp packets.ControlPacket) {
				p := cp.(*packets.SubackPacket)
				p.MessageID = 10
				p.ReturnCodes = []byte{0x01, 0x80}
			}),
		},
		{
			name: "UNSUBSCRIBE",
			ours: &UnsubscribePacket{PacketID: 11, TopicFilters: []string{"sensors/+/temp", "alerts/#"}},
			paho: pahoPacket(t, packets.Unsubscribe, func(cp packets.ControlPacket) {
				p := cp.(*packets.UnsubscribePacket)
				p.MessageID = 11
				p.Topics = []string{"sensors/+/temp", "alerts/#"}
			}),
		},
		{
			name: "UNSUBACK",
			ours: &UnsubackPacket{PacketID: 11},
			paho: pahoPacket(t, packets.Unsuback, func(cp packets.ControlPacket) {
				cp.(*packets.UnsubackPacket).MessageID = 11
			}),
		},
		{name: "PINGREQ", ours: &PingreqPacket{}, paho: packets.NewControlPacket(packets.Pingreq)},
		{name: "PINGRESP", ours: &PingrespPacket{}, paho: packets.NewControlPacket(packets.Pingresp)},
		{name: "DISCONNECT", ours: &DisconnectPacket{}, paho: packets.NewControlPacket(packets.Disconnect)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ours, theirs bytes.Buffer
			_, err := WritePacket(&ours, tt.ours, 0)
			require.NoError(t, err)
			require.NoError(t, tt.paho.Write(&theirs))

			assert.Equal(t, theirs.Bytes(), ours.Bytes())

			decoded, err := packets.ReadPacket(bytes.NewReader(ours.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, tt.paho.Details(), decoded.Details())

			back, _, err := ReadPacket(&theirs, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.ours, back)
		})
	}
}

func TestConformanceConnectReturnCodes(t *testing.T) {
	codes := []ConnectReturnCode{
		ConnectAccepted,
		ConnectRefusedProtocolVersion,
		ConnectRefusedIdentifierRejected,
		ConnectRefusedServerUnavailable,
		ConnectRefusedBadUsernamePassword,
		ConnectRefusedNotAuthorized,
	}

	for _, code := range codes {
		_, known := packets.ConnackReturnCodes[byte(code)]
		assert.True(t, known, code.String())
		assert.Equal(t, packets.ConnErrors[byte(code)] == nil, code == ConnectAccepted)
	}
}

func TestConformanceRejectsWhatPahoRejects(t *testing.T) {
	// PUBREL with reserved flags 0000 instead of 0010.
	raw := []byte{0x60, 0x02, 0x00, 0x01}
	_, _, err := ReadPacket(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, ErrInvalidPacketFlags)

	// A remaining length that needs a fifth byte.
	raw = []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	_, _, err = ReadPacket(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, ErrVarintMalformed)
	_, err = packets.ReadPacket(bytes.NewReader(raw))
	assert.Error(t, err)
}
