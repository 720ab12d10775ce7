package mqtt311

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the client options, used by command line tools.
//
// Example:
//
//	broker: tls://broker.example.com:8883
//	client_id: sensor-01
//	keep_alive: 30
//	tls:
//	  ca_file: /etc/mqtt/ca.pem
//	reconnect:
//	  min_delay: 2s
//	  max_delay: 1m
type Config struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ProtocolVersion int    `yaml:"protocol_version"`

	// KeepAlive in seconds. Zero disables pings; unset keeps the default.
	KeepAlive    *int  `yaml:"keep_alive"`
	CleanSession *bool `yaml:"clean_session"`

	Will  *WillConfig  `yaml:"will"`
	TLS   *TLSConfig   `yaml:"tls"`
	Proxy *ProxyConfig `yaml:"proxy"`

	// ProxyFromEnvironment reads HTTP_PROXY style variables when Proxy is unset.
	ProxyFromEnvironment bool `yaml:"proxy_from_environment"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`

	Retransmission *RetransmissionSettings `yaml:"retransmission"`
	Reconnect      ReconnectSettings       `yaml:"reconnect"`
	RateLimit      RateLimitSettings       `yaml:"rate_limit"`

	MaxPacketSize uint32 `yaml:"max_packet_size"`
	MaxInflight   int    `yaml:"max_inflight"`
}

// WillConfig is the Will message announced in CONNECT.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// TLSConfig locates the certificates for a TLS connection.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// RetransmissionSettings mirrors RetransmissionConfig.
type RetransmissionSettings struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

// ReconnectSettings controls automatic reconnection.
type ReconnectSettings struct {
	Enabled  *bool         `yaml:"enabled"`
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// RateLimitSettings caps outgoing publishes. Zero PerSecond means unlimited.
type RateLimitSettings struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// String returns a representation with the password masked.
func (c Config) String() string {
	password := ""
	if c.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("Config{Broker:%q, ClientID:%q, Username:%q, Password:%s}",
		c.Broker, c.ClientID, c.Username, password)
}

// LoadConfig reads, parses and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker == "" {
		errs = append(errs, "broker is required")
	} else if _, err := parseAddress(c.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("broker: %v", err))
	}

	if len(c.ClientID) > 23 && c.ProtocolVersion == int(ProtocolVersion31) {
		errs = append(errs, "client_id must be at most 23 characters for MQTT 3.1")
	}

	switch c.ProtocolVersion {
	case 0, int(ProtocolVersion31), int(ProtocolVersion311):
	default:
		errs = append(errs, "protocol_version must be 3 or 4")
	}

	if k := c.KeepAlive; k != nil && (*k < 0 || *k > 65535) {
		errs = append(errs, "keep_alive must be between 0 and 65535")
	}

	if c.Password != "" && c.Username == "" {
		errs = append(errs, "password requires username")
	}

	if w := c.Will; w != nil {
		if err := ValidateTopicName(w.Topic); err != nil {
			errs = append(errs, fmt.Sprintf("will.topic: %v", err))
		}
		if !QoS(w.QoS).Valid() || w.QoS < 0 {
			errs = append(errs, "will.qos must be 0, 1, or 2")
		}
	}

	if t := c.TLS; t != nil && (t.CertFile == "") != (t.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}

	if p := c.Proxy; p != nil && p.URL == "" {
		errs = append(errs, "proxy.url is required")
	}

	if c.ConnectTimeout < 0 {
		errs = append(errs, "connect_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, "write_timeout must not be negative")
	}

	if r := c.Reconnect; r.MinDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, "reconnect delays must not be negative")
	} else if r.MaxDelay > 0 && r.MinDelay > r.MaxDelay {
		errs = append(errs, "reconnect.min_delay must not exceed reconnect.max_delay")
	}

	if r := c.Retransmission; r != nil {
		if r.MaxAttempts < 0 {
			errs = append(errs, "retransmission.max_attempts must not be negative")
		}
		if r.InitialDelay < 0 {
			errs = append(errs, "retransmission.initial_delay must not be negative")
		}
		if r.JitterFactor < 0 || r.JitterFactor > 1 {
			errs = append(errs, "retransmission.jitter_factor must be between 0 and 1")
		}
	}

	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, "rate_limit values must not be negative")
	}
	if c.MaxInflight < 0 {
		errs = append(errs, "max_inflight must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Options converts the configuration to client options. Certificate files
// are read here.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.KeepAlive != nil {
		opts = append(opts, WithKeepAlive(uint16(*c.KeepAlive)))
	}
	if c.ClientID != "" {
		opts = append(opts, WithClientID(c.ClientID))
	}
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.ProtocolVersion != 0 {
		opts = append(opts, WithProtocolVersion(byte(c.ProtocolVersion)))
	}
	if c.CleanSession != nil {
		opts = append(opts, WithCleanSession(*c.CleanSession))
	}
	if w := c.Will; w != nil {
		opts = append(opts, WithWill(w.Topic, []byte(w.Payload), QoS(w.QoS), w.Retain))
	}

	if c.TLS != nil {
		tlsConfig, err := c.TLS.load()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTLS(tlsConfig))
	}

	switch {
	case c.Proxy != nil:
		opts = append(opts, WithProxyAuth(c.Proxy.URL, c.Proxy.Username, c.Proxy.Password))
	case c.ProxyFromEnvironment:
		opts = append(opts, WithProxyFromEnvironment(true))
	}

	if c.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(c.ConnectTimeout))
	}
	if c.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(c.WriteTimeout))
	}

	if r := c.Retransmission; r != nil {
		opts = append(opts, WithRetransmission(RetransmissionConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: r.InitialDelay,
			JitterFactor: r.JitterFactor,
		}))
	}

	if c.Reconnect.Enabled != nil {
		opts = append(opts, WithAutoReconnect(*c.Reconnect.Enabled))
	}
	if c.Reconnect.MinDelay > 0 || c.Reconnect.MaxDelay > 0 {
		opts = append(opts, WithReconnectDelay(c.Reconnect.MinDelay, c.Reconnect.MaxDelay))
	}

	if c.RateLimit.PerSecond > 0 {
		opts = append(opts, WithPublishRateLimit(c.RateLimit.PerSecond, c.RateLimit.Burst))
	}
	if c.MaxPacketSize > 0 {
		opts = append(opts, WithMaxPacketSize(c.MaxPacketSize))
	}
	if c.MaxInflight > 0 {
		opts = append(opts, WithMaxInflight(c.MaxInflight))
	}

	return opts, nil
}

var errNoCertificates = errors.New("no certificates found")

func (t *TLSConfig) load() (*tls.Config, error) {
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("loading CA file %s: %w", t.CAFile, errNoCertificates)
		}
		config.RootCAs = pool
	}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
