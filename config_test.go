package mqtt311

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
broker: tls://broker.example.com:8883
client_id: sensor-01
username: device
password: secret
keep_alive: 0
clean_session: false
will:
  topic: status/sensor-01
  payload: offline
  qos: 1
  retain: true
connect_timeout: 5s
write_timeout: 2s
retransmission:
  max_attempts: 5
  initial_delay: 2s
  jitter_factor: 0.2
reconnect:
  enabled: true
  min_delay: 1s
  max_delay: 30s
rate_limit:
  per_second: 100
  burst: 10
max_packet_size: 65536
max_inflight: 20
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "tls://broker.example.com:8883", cfg.Broker)
	assert.Equal(t, "sensor-01", cfg.ClientID)
	require.NotNil(t, cfg.KeepAlive)
	assert.Equal(t, 0, *cfg.KeepAlive)
	require.NotNil(t, cfg.CleanSession)
	assert.False(t, *cfg.CleanSession)
	require.NotNil(t, cfg.Will)
	assert.Equal(t, 1, cfg.Will.QoS)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, uint32(65536), cfg.MaxPacketSize)

	opts, err := cfg.Options()
	require.NoError(t, err)

	o := applyOptions(opts...)
	assert.Equal(t, "sensor-01", o.clientID)
	assert.Equal(t, []byte("secret"), o.password)
	assert.Zero(t, o.keepAlive)
	assert.False(t, o.cleanSession)
	assert.True(t, o.willSet)
	assert.Equal(t, AtLeastOnce, o.willQoS)
	assert.Equal(t, 5*time.Second, o.connectTimeout)
	assert.Equal(t, 2*time.Second, o.writeTimeout)
	assert.Equal(t, RetransmissionConfig{MaxAttempts: 5, InitialDelay: 2 * time.Second, JitterFactor: 0.2}, o.retransmission)
	assert.True(t, o.autoReconnect)
	assert.Equal(t, time.Second, o.reconnectMin)
	assert.Equal(t, 10, o.publishBurst)
	assert.Equal(t, uint32(65536), o.maxPacketSize)
	assert.Equal(t, 20, o.maxInflight)
	assert.Nil(t, o.tlsConfig)
}

func TestParseConfigDefaultsUntouched(t *testing.T) {
	cfg, err := ParseConfig([]byte("broker: localhost\n"))
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)

	assert.Equal(t, applyOptions().keepAlive, applyOptions(opts...).keepAlive)
	assert.True(t, applyOptions(opts...).cleanSession)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing broker", "client_id: a\n", "broker is required"},
		{"bad scheme", "broker: gopher://x\n", "broker:"},
		{"long 3.1 client id", "broker: x\nprotocol_version: 3\nclient_id: abcdefghijklmnopqrstuvwxyz\n", "23 characters"},
		{"protocol version", "broker: x\nprotocol_version: 5\n", "protocol_version"},
		{"keep alive", "broker: x\nkeep_alive: 70000\n", "keep_alive"},
		{"password without user", "broker: x\npassword: p\n", "password requires username"},
		{"will topic", "broker: x\nwill:\n  topic: a/+\n", "will.topic"},
		{"will qos", "broker: x\nwill:\n  topic: a\n  qos: 3\n", "will.qos"},
		{"tls pair", "broker: x\ntls:\n  cert_file: c.pem\n", "tls.cert_file"},
		{"proxy url", "broker: x\nproxy:\n  username: u\n", "proxy.url"},
		{"negative timeout", "broker: x\nconnect_timeout: -1s\n", "connect_timeout"},
		{"reconnect order", "broker: x\nreconnect:\n  min_delay: 1m\n  max_delay: 1s\n", "min_delay"},
		{"jitter", "broker: x\nretransmission:\n  jitter_factor: 2\n", "jitter_factor"},
		{"initial delay", "broker: x\nretransmission:\n  initial_delay: -1s\n", "initial_delay"},
		{"rate limit", "broker: x\nrate_limit:\n  per_second: -1\n", "rate_limit"},
		{"inflight", "broker: x\nmax_inflight: -1\n", "max_inflight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validating config")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigValidateCollectsAll(t *testing.T) {
	cfg := &Config{ProtocolVersion: 9, MaxInflight: -1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker is required")
	assert.Contains(t, err.Error(), "protocol_version")
	assert.Contains(t, err.Error(), "max_inflight")
}

func TestParseConfigInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("broker: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestConfigString(t *testing.T) {
	cfg := Config{Broker: "localhost", Username: "u", Password: "hunter2"}
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "[REDACTED]")

	cfg.Password = ""
	assert.NotContains(t, cfg.String(), "[REDACTED]")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker: tcp://localhost:1883\nclient_id: loaded\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "loaded", cfg.ClientID)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// writeTestCertificate writes a self-signed certificate and its key as PEM.
func writeTestCertificate(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	certPEM, keyPEM := testCertificatePEM(t)
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	return certFile, keyFile
}

func TestTLSConfigLoad(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, dir)

	tc := &TLSConfig{CAFile: certFile, CertFile: certFile, KeyFile: keyFile, ServerName: "localhost"}
	config, err := tc.load()
	require.NoError(t, err)

	assert.NotNil(t, config.RootCAs)
	assert.Len(t, config.Certificates, 1)
	assert.Equal(t, "localhost", config.ServerName)
}

func TestTLSConfigLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := (&TLSConfig{CAFile: filepath.Join(dir, "missing.pem")}).load()
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	_, err = (&TLSConfig{CAFile: garbage}).load()
	assert.ErrorIs(t, err, errNoCertificates)

	_, err = (&TLSConfig{CertFile: garbage, KeyFile: garbage}).load()
	assert.Error(t, err)
}

func TestConfigOptionsWithTLSAndProxy(t *testing.T) {
	certFile, _ := writeTestCertificate(t, t.TempDir())

	cfg := &Config{
		Broker: "tls://localhost",
		TLS:    &TLSConfig{CAFile: certFile},
		Proxy:  &ProxyConfig{URL: "socks5://127.0.0.1:1080", Username: "u", Password: "p"},
	}
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options()
	require.NoError(t, err)

	o := applyOptions(opts...)
	require.NotNil(t, o.tlsConfig)
	assert.NotNil(t, o.tlsConfig.RootCAs)
	require.NotNil(t, o.proxyConfig)
	assert.Equal(t, "u", o.proxyConfig.Username)

	cfg.TLS.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = cfg.Options()
	assert.Error(t, err)
}
