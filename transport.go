package mqtt311

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Conn represents a network connection for MQTT communication.
type Conn interface {
	net.Conn
}

// Dialer establishes MQTT connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Conn, error)

// Dial calls f(ctx, address).
func (f DialerFunc) Dial(ctx context.Context, address string) (Conn, error) {
	return f(ctx, address)
}

// contextDialer matches net.Dialer and proxy dialers.
type contextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Proxy, when set, is used instead of a direct connection.
	Proxy contextDialer
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	if d.Proxy != nil {
		return d.Proxy.DialContext(ctx, "tcp", address)
	}

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Proxy, when set, carries the TCP connection the TLS session runs over.
	Proxy contextDialer
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Proxy == nil {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{
				Timeout: d.Timeout,
			},
			Config: d.Config,
		}
		return dialer.DialContext(ctx, "tcp", address)
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	raw, err := d.Proxy.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	config := d.Config.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		host, _, err := net.SplitHostPort(address)
		if err == nil {
			config.ServerName = host
		}
	}

	conn := tls.Client(raw, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}
