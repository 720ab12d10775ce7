package mqtt311

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WebSocketSubprotocol is the MQTT WebSocket subprotocol.
	WebSocketSubprotocol = "mqtt"
)

// WSConn adapts a WebSocket connection to net.Conn. MQTT packets travel in
// binary frames; a packet may span frames and a frame may hold several packets.
type WSConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Read reads data from the current binary frame, advancing to the next frame when needed.
func (c *WSConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				return 0, ErrProtocolViolation
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write writes b as one binary frame.
func (c *WSConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the connection.
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *WSConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *WSConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *WSConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *WSConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// WSDialer connects to MQTT brokers over WebSocket (ws://) or secure WebSocket (wss://).
type WSDialer struct {
	// Dialer is the underlying WebSocket dialer.
	Dialer *websocket.Dialer

	// Header is the HTTP header to send with the handshake.
	Header http.Header
}

// Dial connects to a ws:// or wss:// URL.
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = NewWSDialer().Dialer
	}

	header := d.Header
	if header == nil {
		header = http.Header{}
	}

	conn, resp, err := dialer.DialContext(ctx, address, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return NewWSConn(conn), nil
}

// NewWSDialer creates a WebSocket dialer that negotiates the "mqtt" subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:     []string{WebSocketSubprotocol},
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// newWSDialerWith builds a dialer honouring TLS and proxy settings.
func newWSDialerWith(tlsConfig *tls.Config, proxyDialer contextDialer) *WSDialer {
	d := NewWSDialer()
	d.Dialer.TLSClientConfig = tlsConfig
	if proxyDialer != nil {
		d.Dialer.NetDialContext = proxyDialer.DialContext
	}
	return d
}
