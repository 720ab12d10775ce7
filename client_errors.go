package mqtt311

import (
	"errors"
	"fmt"
	"time"
)

// EventHandler receives lifecycle events. Match them with errors.Is and errors.As.
type EventHandler func(client *Client, event error)

// Sentinel events for client lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted when the client successfully connects.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the client disconnects gracefully.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the connection is lost unexpectedly.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReconnecting is emitted when a reconnect attempt is scheduled.
	ErrReconnecting = errors.New("reconnecting")
)

// Sentinel errors for connection issues - check with errors.Is().
var (
	// ErrConnectRefused is wrapped by ConnectError for non-credential refusals.
	ErrConnectRefused = errors.New("connection refused")

	// ErrAuthFailed is wrapped by ConnectError for return codes 4 and 5.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrServerDisconnect is emitted when the server sends a DISCONNECT packet.
	ErrServerDisconnect = errors.New("server disconnect")

	// ErrKeepAliveTimeout is the close cause when the server doesn't answer PINGREQ.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrConnackTimeout is the close cause when no CONNACK arrives in time.
	ErrConnackTimeout = errors.New("connack timeout")

	// ErrChannelClosed fails every pending operation when the connection closes.
	ErrChannelClosed = errors.New("channel closed")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrSubscribeFailed is wrapped by SubscribeError.
	ErrSubscribeFailed = errors.New("subscribe failed")

	// ErrMaxRetransmissions is wrapped by RetransmissionError.
	ErrMaxRetransmissions = errors.New("max retransmissions reached")

	// ErrClientClosed is returned when an operation is attempted on a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectNotCalled is returned by Reconnect before the first Connect.
	ErrConnectNotCalled = errors.New("connect was never called")

	// ErrInvalidTopic is returned when a topic is invalid.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrAlreadyConnected is returned by Connect and Reconnect while a
	// connection is open or being opened.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("nil message handler")
)

// ConnectedEvent contains details about a successful connection.
// Extract with errors.As().
type ConnectedEvent struct {
	err            error
	SessionPresent bool
	Reconnect      bool
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

// NewConnectedEvent creates a new ConnectedEvent.
func NewConnectedEvent(sessionPresent, reconnect bool) *ConnectedEvent {
	return &ConnectedEvent{
		err:            ErrConnected,
		SessionPresent: sessionPresent,
		Reconnect:      reconnect,
	}
}

// DisconnectError contains details about a disconnection.
// Extract with errors.As().
type DisconnectError struct {
	err    error
	Remote bool // true if server sent disconnect
}

func (e *DisconnectError) Error() string { return e.err.Error() }
func (e *DisconnectError) Unwrap() error { return e.err }

// NewDisconnectError creates a new DisconnectError.
func NewDisconnectError(remote bool) *DisconnectError {
	baseErr := ErrDisconnected
	if remote {
		baseErr = ErrServerDisconnect
	}
	return &DisconnectError{
		err:    baseErr,
		Remote: remote,
	}
}

// ReconnectEvent contains details about a scheduled reconnect.
// Extract with errors.As().
type ReconnectEvent struct {
	err      error
	Attempt  int
	Delay    time.Duration
	cancelFn func()
}

func (e *ReconnectEvent) Error() string { return e.err.Error() }
func (e *ReconnectEvent) Unwrap() error { return e.err }

// Cancel stops the scheduled attempt.
func (e *ReconnectEvent) Cancel() {
	if e.cancelFn != nil {
		e.cancelFn()
	}
}

// NewReconnectEvent creates a new ReconnectEvent.
func NewReconnectEvent(attempt int, delay time.Duration, cancelFn func()) *ReconnectEvent {
	return &ReconnectEvent{
		err:      ErrReconnecting,
		Attempt:  attempt,
		Delay:    delay,
		cancelFn: cancelFn,
	}
}

// SubscribeError contains details about a subscription the broker refused.
// Extract with errors.As().
type SubscribeError struct {
	err        error
	Topic      string
	ReturnCode SubackReturnCode
}

func (e *SubscribeError) Error() string {
	return "subscribe failed: " + e.Topic + ": " + e.ReturnCode.String()
}

func (e *SubscribeError) Unwrap() error { return e.err }

// NewSubscribeError creates a new SubscribeError.
func NewSubscribeError(topic string, code SubackReturnCode) *SubscribeError {
	return &SubscribeError{
		err:        ErrSubscribeFailed,
		Topic:      topic,
		ReturnCode: code,
	}
}

// ConnectionLostError contains details about an unexpected disconnection.
// Extract with errors.As(). Both ErrConnectionLost and Cause match errors.Is.
type ConnectionLostError struct {
	err   error
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.err}
	}
	return []error{e.err, e.Cause}
}

// NewConnectionLostError creates a new ConnectionLostError.
func NewConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{
		err:   ErrConnectionLost,
		Cause: cause,
	}
}

// ConnectError contains details about a refused connection attempt.
// Extract with errors.As().
type ConnectError struct {
	err        error
	ReturnCode ConnectReturnCode
}

func (e *ConnectError) Error() string {
	return "connect failed: " + e.ReturnCode.String()
}

func (e *ConnectError) Unwrap() error { return e.err }

// NewConnectError creates a new ConnectError from a CONNACK return code.
func NewConnectError(code ConnectReturnCode) *ConnectError {
	baseErr := ErrConnectRefused
	if code.IsAuthFailure() {
		baseErr = ErrAuthFailed
	}
	return &ConnectError{
		err:        baseErr,
		ReturnCode: code,
	}
}

// RetransmissionError is returned when a packet stays unacknowledged after
// every retransmission attempt. Extract with errors.As().
type RetransmissionError struct {
	err      error
	Packet   PacketType
	PacketID uint16
	Attempts int
	Elapsed  time.Duration
}

func (e *RetransmissionError) Error() string {
	return fmt.Sprintf("%s %d not acknowledged after %d attempts in %s",
		e.Packet, e.PacketID, e.Attempts, e.Elapsed)
}

func (e *RetransmissionError) Unwrap() error { return e.err }

// NewRetransmissionError creates a new RetransmissionError.
func NewRetransmissionError(packet PacketType, id uint16, attempts int, elapsed time.Duration) *RetransmissionError {
	return &RetransmissionError{
		err:      ErrMaxRetransmissions,
		Packet:   packet,
		PacketID: id,
		Attempts: attempts,
		Elapsed:  elapsed,
	}
}
