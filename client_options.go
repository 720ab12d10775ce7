package mqtt311

import (
	"crypto/tls"
	"time"

	"golang.org/x/time/rate"
)

// Packet size limits.
const (
	// MaxPacketSizeProtocol is the largest remaining length MQTT 3.1.1 can encode.
	MaxPacketSizeProtocol uint32 = maxVarint

	// MaxPacketSizeDefault is the default limit for packets in both directions.
	MaxPacketSizeDefault uint32 = 4 * 1024 * 1024

	// MaxPacketSizeMinimal suits constrained devices.
	MaxPacketSizeMinimal uint32 = 16 * 1024
)

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Connection settings
	clientID        string
	username        string
	password        []byte
	protocolVersion byte
	keepAlive       uint16
	cleanSession    bool

	// TLS configuration
	tlsConfig *tls.Config

	// Proxy configuration
	proxyConfig  *ProxyConfig
	proxyFromEnv bool

	// Custom transport, bypassing scheme selection
	dialer Dialer

	// Timeouts
	connectTimeout time.Duration
	writeTimeout   time.Duration

	// Will message
	willTopic   string
	willPayload []byte
	willRetain  bool
	willQoS     QoS
	willSet     bool

	// Retransmission of unacknowledged packets
	retransmission RetransmissionConfig

	// Auto reconnect settings
	autoReconnect     bool
	reconnectMin      time.Duration
	reconnectMax      time.Duration
	reconnectStrategy ReconnectStrategy

	// Limits
	maxPacketSize uint32
	maxInflight   int
	publishRate   rate.Limit
	publishBurst  int

	// Handlers and callbacks
	defaultHandler MessageHandler
	callback       Callback
	onEvent        EventHandler

	// Observability
	logger  Logger
	metrics Metrics

	// Interceptors
	producerInterceptors []ProducerInterceptor
	consumerInterceptors []ConsumerInterceptor

	// scheduler overrides the timer source. Tests only.
	scheduler scheduler
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		protocolVersion: ProtocolVersion311,
		keepAlive:       60,
		cleanSession:    true,
		connectTimeout:  10 * time.Second,
		writeTimeout:    5 * time.Second,
		retransmission:  DefaultRetransmissionConfig(),
		autoReconnect:   true,
		reconnectMin:    DefaultReconnectMinDelay,
		reconnectMax:    DefaultReconnectMaxDelay,
		maxPacketSize:   MaxPacketSizeDefault,
		publishRate:     rate.Inf,
		logger:          NewNoOpLogger(),
		metrics:         &NoOpMetrics{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithClientID sets the client identifier. An empty identifier is replaced
// by a generated one.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password for authentication.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		if password != "" {
			o.password = []byte(password)
		} else {
			o.password = nil
		}
	}
}

// WithProtocolVersion selects MQTT 3.1 (ProtocolVersion31) or 3.1.1
// (ProtocolVersion311). Other values are ignored.
func WithProtocolVersion(version byte) Option {
	return func(o *clientOptions) {
		if version == ProtocolVersion31 || version == ProtocolVersion311 {
			o.protocolVersion = version
		}
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables pings.
func WithKeepAlive(seconds uint16) Option {
	return func(o *clientOptions) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets whether the broker should discard previous session state.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithWill sets the Will message that the broker publishes if the client disconnects unexpectedly.
func WithWill(topic string, payload []byte, qos QoS, retain bool) Option {
	return func(o *clientOptions) {
		o.willTopic = topic
		o.willPayload = payload
		o.willQoS = qos
		o.willRetain = retain
		o.willSet = topic != ""
	}
}

// WithTLS sets the TLS configuration for tls, ssl, mqtts, wss and quic addresses.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithProxy routes tcp, tls and websocket connections through an HTTP CONNECT
// or SOCKS5 proxy.
func WithProxy(proxyURL string) Option {
	return WithProxyAuth(proxyURL, "", "")
}

// WithProxyAuth is WithProxy with explicit proxy credentials.
func WithProxyAuth(proxyURL, username, password string) Option {
	return func(o *clientOptions) {
		o.proxyConfig = &ProxyConfig{
			URL:      proxyURL,
			Username: username,
			Password: password,
		}
	}
}

// WithProxyFromEnvironment reads the proxy from HTTP_PROXY, HTTPS_PROXY,
// ALL_PROXY and NO_PROXY when no explicit proxy is configured.
func WithProxyFromEnvironment(enabled bool) Option {
	return func(o *clientOptions) {
		o.proxyFromEnv = enabled
	}
}

// WithDialer replaces the transport chosen from the address scheme.
// The dialer receives host:port, the websocket URL or the socket path.
func WithDialer(dialer Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

// WithConnectTimeout bounds the dial and the wait for CONNACK.
// Zero disables the CONNACK timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithWriteTimeout sets the deadline for each socket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.writeTimeout = d
	}
}

// WithRetransmission sets how unacknowledged PUBLISH, PUBREL, SUBSCRIBE,
// UNSUBSCRIBE and PUBREC packets are resent.
func WithRetransmission(cfg RetransmissionConfig) Option {
	return func(o *clientOptions) {
		o.retransmission = cfg.normalize()
	}
}

// WithAutoReconnect enables automatic reconnection on connection loss.
// It is enabled by default.
func WithAutoReconnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enabled
	}
}

// WithReconnectDelay sets the bounds of the default exponential backoff.
func WithReconnectDelay(minDelay, maxDelay time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectMin = minDelay
		o.reconnectMax = maxDelay
	}
}

// WithReconnectStrategy replaces the default exponential backoff.
func WithReconnectStrategy(strategy ReconnectStrategy) Option {
	return func(o *clientOptions) {
		o.reconnectStrategy = strategy
	}
}

// WithMaxPacketSize sets the largest packet the client sends or accepts.
// Values exceeding MaxPacketSizeProtocol are clamped to the protocol maximum.
//
// Default: MaxPacketSizeDefault (4MB)
func WithMaxPacketSize(size uint32) Option {
	return func(o *clientOptions) {
		if size > MaxPacketSizeProtocol {
			size = MaxPacketSizeProtocol
		}
		o.maxPacketSize = size
	}
}

// WithMaxInflight limits the QoS 1 and 2 publishes awaiting acknowledgement.
// Further publishes wait in the outbox. Zero means the packet identifier space.
func WithMaxInflight(n int) Option {
	return func(o *clientOptions) {
		o.maxInflight = n
	}
}

// WithPublishRateLimit paces outbound publishes to perSecond with bursts of burst.
// A non-positive rate removes the limit.
func WithPublishRateLimit(perSecond float64, burst int) Option {
	return func(o *clientOptions) {
		if perSecond <= 0 {
			o.publishRate = rate.Inf
			o.publishBurst = 0
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.publishRate = rate.Limit(perSecond)
		o.publishBurst = burst
	}
}

// WithDefaultHandler sets the handler for messages no subscription matches.
func WithDefaultHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.defaultHandler = handler
	}
}

// WithCallback sets the connection callback.
func WithCallback(callback Callback) Option {
	return func(o *clientOptions) {
		o.callback = callback
	}
}

// OnEvent sets the event handler for client lifecycle events and errors.
func OnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = handler
	}
}

// WithLogger sets the logger. The client adds its client_id field.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics Metrics) Option {
	return func(o *clientOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithProducerInterceptors sets the producer interceptors for outgoing messages.
// Interceptors are called in order before a message is published.
// Each interceptor can modify the message before passing it to the next.
func WithProducerInterceptors(interceptors ...ProducerInterceptor) Option {
	return func(o *clientOptions) {
		o.producerInterceptors = append(o.producerInterceptors, interceptors...)
	}
}

// WithConsumerInterceptors sets the consumer interceptors for incoming messages.
// Interceptors are called in order before a message is delivered to handlers.
// Each interceptor can modify the message before passing it to the next.
func WithConsumerInterceptors(interceptors ...ConsumerInterceptor) Option {
	return func(o *clientOptions) {
		o.consumerInterceptors = append(o.consumerInterceptors, interceptors...)
	}
}

func withScheduler(s scheduler) Option {
	return func(o *clientOptions) {
		o.scheduler = s
	}
}

// applyOptions applies all options to the default options.
func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// strategy returns the configured reconnect strategy.
func (o *clientOptions) strategy() ReconnectStrategy {
	if o.reconnectStrategy != nil {
		return o.reconnectStrategy
	}
	return NewExponentialBackoff(o.reconnectMin, o.reconnectMax)
}

// limiter returns the publish rate limiter, or nil when publishes are unlimited.
func (o *clientOptions) limiter() *rate.Limiter {
	if o.publishRate == rate.Inf {
		return nil
	}
	return rate.NewLimiter(o.publishRate, o.publishBurst)
}

// connectPacket builds the CONNECT packet for clientID.
func (o *clientOptions) connectPacket(clientID string) *ConnectPacket {
	p := &ConnectPacket{
		ProtocolVersion: o.protocolVersion,
		ClientID:        clientID,
		CleanSession:    o.cleanSession,
		KeepAlive:       o.keepAlive,
		Username:        o.username,
		Password:        o.password,
	}
	if o.willSet {
		p.WillFlag = true
		p.WillTopic = o.willTopic
		p.WillPayload = o.willPayload
		p.WillQoS = o.willQoS
		p.WillRetain = o.willRetain
	}
	return p
}
