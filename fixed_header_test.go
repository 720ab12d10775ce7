package mqtt311

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "CONNECT", PacketCONNECT.String())
	assert.Equal(t, "PUBREL", PacketPUBREL.String())
	assert.Equal(t, "DISCONNECT", PacketDISCONNECT.String())
	assert.Equal(t, "UNKNOWN", PacketType(0).String())
	assert.Equal(t, "UNKNOWN", PacketType(15).String())
}

func TestPacketTypeValid(t *testing.T) {
	for pt := PacketCONNECT; pt <= PacketDISCONNECT; pt++ {
		assert.True(t, pt.Valid(), pt.String())
	}
	// AUTH (15) does not exist before MQTT 5.
	assert.False(t, PacketType(15).Valid())
	assert.False(t, PacketType(0).Valid())
}

func TestFixedHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		encoded []byte
	}{
		{
			name:    "PINGREQ",
			header:  FixedHeader{PacketType: PacketPINGREQ},
			encoded: []byte{0xC0, 0x00},
		},
		{
			name:    "PUBREL",
			header:  FixedHeader{PacketType: PacketPUBREL, Flags: 0x02, RemainingLength: 2},
			encoded: []byte{0x62, 0x02},
		},
		{
			name:    "PUBLISH QoS 1 retain",
			header:  FixedHeader{PacketType: PacketPUBLISH, Flags: 0x03, RemainingLength: 321},
			encoded: []byte{0x33, 0xC1, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.header.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.encoded, buf.Bytes())
			assert.Equal(t, tt.header.Size(), n)

			var decoded FixedHeader
			n, err = decoded.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, len(tt.encoded), n)
			assert.Equal(t, tt.header, decoded)
		})
	}
}

func TestFixedHeaderInvalidPacketType(t *testing.T) {
	h := FixedHeader{PacketType: 0}
	_, err := h.Encode(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrInvalidPacketType)

	var decoded FixedHeader
	_, err = decoded.Decode(bytes.NewReader([]byte{0xF0, 0x00}))
	assert.ErrorIs(t, err, ErrInvalidPacketType)
}

func TestFixedHeaderValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		wantErr bool
	}{
		{"PUBREL requires 0x02", FixedHeader{PacketType: PacketPUBREL, Flags: 0x00}, true},
		{"SUBSCRIBE 0x02", FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02}, false},
		{"UNSUBSCRIBE 0x00", FixedHeader{PacketType: PacketUNSUBSCRIBE, Flags: 0x00}, true},
		{"PUBACK reserved bits", FixedHeader{PacketType: PacketPUBACK, Flags: 0x01}, true},
		{"PUBLISH QoS 3", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x06}, true},
		{"PUBLISH DUP QoS 2", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0C}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.ValidateFlags()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPacketFlags)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFixedHeaderPublishFlags(t *testing.T) {
	h := FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0D}
	assert.True(t, h.DUP())
	assert.Equal(t, byte(2), h.QoS())
	assert.True(t, h.Retain())

	h.Flags = 0
	assert.False(t, h.DUP())
	assert.Equal(t, byte(0), h.QoS())
	assert.False(t, h.Retain())
}
