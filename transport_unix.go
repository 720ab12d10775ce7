package mqtt311

import (
	"context"
	"net"
)

// UnixDialer connects to brokers listening on a Unix domain socket. It is
// selected for "unix://" addresses, whose path is the socket file.
type UnixDialer struct {
	net.Dialer
}

// Dial connects to the socket at path, e.g. "/var/run/mosquitto.sock".
func (d *UnixDialer) Dial(ctx context.Context, path string) (Conn, error) {
	return d.DialContext(ctx, "unix", path)
}

func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}
