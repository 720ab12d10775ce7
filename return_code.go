package mqtt311

import "fmt"

// ConnectReturnCode is the result carried by a CONNACK packet.
type ConnectReturnCode byte

// CONNACK return codes.
const (
	ConnectAccepted                   ConnectReturnCode = 0x00
	ConnectRefusedProtocolVersion     ConnectReturnCode = 0x01
	ConnectRefusedIdentifierRejected  ConnectReturnCode = 0x02
	ConnectRefusedServerUnavailable   ConnectReturnCode = 0x03
	ConnectRefusedBadUsernamePassword ConnectReturnCode = 0x04
	ConnectRefusedNotAuthorized       ConnectReturnCode = 0x05
)

var connectReturnCodeText = map[ConnectReturnCode]string{
	ConnectAccepted:                   "connection accepted",
	ConnectRefusedProtocolVersion:     "unacceptable protocol version",
	ConnectRefusedIdentifierRejected:  "identifier rejected",
	ConnectRefusedServerUnavailable:   "server unavailable",
	ConnectRefusedBadUsernamePassword: "bad user name or password",
	ConnectRefusedNotAuthorized:       "not authorized",
}

func (c ConnectReturnCode) String() string {
	if s, ok := connectReturnCodeText[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown return code 0x%02X", byte(c))
}

// Valid reports whether c is defined by MQTT 3.1.1.
func (c ConnectReturnCode) Valid() bool {
	return c <= ConnectRefusedNotAuthorized
}

// IsAuthFailure reports whether the broker rejected the credentials.
func (c ConnectReturnCode) IsAuthFailure() bool {
	return c == ConnectRefusedBadUsernamePassword || c == ConnectRefusedNotAuthorized
}

// SubackReturnCode is the per-topic result carried by a SUBACK packet.
type SubackReturnCode byte

// SUBACK return codes.
const (
	SubackGrantedQoS0 SubackReturnCode = 0x00
	SubackGrantedQoS1 SubackReturnCode = 0x01
	SubackGrantedQoS2 SubackReturnCode = 0x02
	SubackFailure     SubackReturnCode = 0x80
)

// Valid reports whether c is defined by MQTT 3.1.1.
func (c SubackReturnCode) Valid() bool {
	return c <= SubackGrantedQoS2 || c == SubackFailure
}

// Failed reports whether the broker refused the subscription.
func (c SubackReturnCode) Failed() bool {
	return c == SubackFailure
}

func (c SubackReturnCode) String() string {
	switch c {
	case SubackGrantedQoS0, SubackGrantedQoS1, SubackGrantedQoS2:
		return fmt.Sprintf("granted QoS %d", byte(c))
	case SubackFailure:
		return "failure"
	default:
		return fmt.Sprintf("unknown return code 0x%02X", byte(c))
	}
}
