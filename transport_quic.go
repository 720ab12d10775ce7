package mqtt311

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICALPN is the ALPN protocol announced on QUIC connections.
const QUICALPN = "mqtt"

// QUICConn carries one MQTT session on a single bidirectional QUIC stream.
type QUICConn struct {
	conn   *quic.Conn
	stream *quic.Stream

	closeOnce sync.Once
	closeErr  error
}

// Read reads data from the QUIC stream.
func (c *QUICConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

// Write writes data to the QUIC stream.
func (c *QUICConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

// Close closes the stream and then the QUIC connection.
func (c *QUICConn) Close() error {
	c.closeOnce.Do(func() {
		streamErr := c.stream.Close()
		connErr := c.conn.CloseWithError(0, "")
		c.closeErr = errors.Join(streamErr, connErr)
	})
	return c.closeErr
}

// LocalAddr returns the local network address.
func (c *QUICConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *QUICConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *QUICConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *QUICConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

// QUICDialer connects to MQTT brokers over QUIC.
type QUICDialer struct {
	// TLSConfig is the TLS configuration. QUIC always runs TLS 1.3.
	TLSConfig *tls.Config

	// QUICConfig is the QUIC configuration.
	QUICConfig *quic.Config
}

// Dial connects to a "host:port" address and opens the MQTT stream.
func (d *QUICDialer) Dial(ctx context.Context, address string) (Conn, error) {
	conn, err := quic.DialAddr(ctx, address, quicTLSConfig(d.TLSConfig), d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return &QUICConn{
		conn:   conn,
		stream: stream,
	}, nil
}

// NewQUICDialer creates a new QUIC dialer.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	return &QUICDialer{TLSConfig: quicTLSConfig(tlsConfig)}
}

// quicTLSConfig returns a config with TLS 1.3 and the MQTT ALPN set.
func quicTLSConfig(base *tls.Config) *tls.Config {
	if base == nil {
		return &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{QUICALPN},
		}
	}
	if len(base.NextProtos) > 0 {
		return base
	}
	config := base.Clone()
	config.NextProtos = []string{QUICALPN}
	return config
}
