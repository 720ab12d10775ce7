package mqtt311

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned for broker addresses with an unknown scheme.
var ErrUnsupportedScheme = errors.New("mqtt311: unsupported scheme")

// DefaultPort is the broker port assumed for plain TCP addresses.
const DefaultPort = "1883"

var defaultPorts = map[string]string{
	"tcp":   DefaultPort,
	"mqtt":  DefaultPort,
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"quic":  "8883",
	"ws":    "80",
	"wss":   "443",
}

// brokerAddress is a parsed Connect address.
type brokerAddress struct {
	scheme string
	// target is what the transport dials: host:port, a ws(s) URL or a socket path.
	target string
	// raw is the address as given, used for proxy lookups.
	raw string
}

// parseAddress accepts "host", "host:port" or "scheme://host[:port][/path]".
func parseAddress(address string) (brokerAddress, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return brokerAddress{}, errors.New("mqtt311: empty broker address")
	}

	if !strings.Contains(address, "://") {
		return brokerAddress{
			scheme: "tcp",
			target: withDefaultPort(address, DefaultPort),
			raw:    "tcp://" + address,
		}, nil
	}

	u, err := url.Parse(address)
	if err != nil {
		return brokerAddress{}, fmt.Errorf("invalid address: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	addr := brokerAddress{scheme: scheme, raw: address}

	switch scheme {
	case "unix":
		// unix:///path/to/socket or unix://localhost/path/to/socket
		addr.target = u.Path
		if u.Host != "" && u.Host != "localhost" {
			addr.target = u.Host + u.Path
		}
		if addr.target == "" {
			return brokerAddress{}, errors.New("mqtt311: unix address without socket path")
		}

	case "ws", "wss":
		if u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), defaultPorts[scheme])
		}
		addr.target = u.String()

	default:
		port, ok := defaultPorts[scheme]
		if !ok {
			return brokerAddress{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
		}
		if u.Hostname() == "" {
			return brokerAddress{}, fmt.Errorf("invalid address %q: missing host", address)
		}
		addr.target = withDefaultPort(u.Host, port)
	}

	return addr, nil
}

func withDefaultPort(hostport, port string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), port)
}

// resolveProxy returns the proxy dialer configured for addr, if any.
func (o *clientOptions) resolveProxy(addr brokerAddress) (*ProxyDialer, error) {
	if o.proxyConfig != nil {
		return NewProxyDialer(o.proxyConfig.URL, o.proxyConfig.Username, o.proxyConfig.Password)
	}

	if o.proxyFromEnv {
		proxyURL, err := ProxyFromEnvironment(addr.raw)
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			return NewProxyDialer(proxyURL.String(), "", "")
		}
	}

	return nil, nil
}

// dialerFor selects the transport for addr.
func (o *clientOptions) dialerFor(addr brokerAddress) (Dialer, error) {
	if o.dialer != nil {
		return o.dialer, nil
	}

	var proxyDialer contextDialer
	switch addr.scheme {
	case "unix", "quic":
		// Proxies only carry TCP.
	default:
		p, err := o.resolveProxy(addr)
		if err != nil {
			return nil, fmt.Errorf("proxy configuration error: %w", err)
		}
		if p != nil {
			proxyDialer = p
		}
	}

	switch addr.scheme {
	case "tcp", "mqtt":
		return &TCPDialer{Proxy: proxyDialer}, nil

	case "ssl", "tls", "mqtts":
		config := o.tlsConfig
		if config == nil {
			config = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return &TLSDialer{Config: config, Proxy: proxyDialer}, nil

	case "ws", "wss":
		return newWSDialerWith(o.tlsConfig, proxyDialer), nil

	case "unix":
		return NewUnixDialer(), nil

	case "quic":
		return NewQUICDialer(o.tlsConfig), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, addr.scheme)
	}
}
