package mqtt311

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// disconnectGrace is how long Disconnect waits for the broker to close the
// connection after DISCONNECT.
const disconnectGrace = time.Second

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Client is an MQTT 3.1/3.1.1 client.
//
// All methods are safe for concurrent use. Operations are queued to a single
// event loop and report their outcome through tokens, so no method waits on
// the network except Close.
type Client struct {
	options  *clientOptions
	clientID string
	logger   Logger
	metrics  *ClientMetrics

	box      *mailbox
	sched    scheduler
	exec     *executor
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	connected     atomic.Bool
	closed        atomic.Bool
	connectCalled atomic.Bool

	// Everything below is owned by the event loop.
	state             connState
	addr              brokerAddress
	conn              *connection
	connSeq           uint64
	connectToken      *ConnectToken
	everConnected     bool
	userDisconnect    bool
	refused           bool
	disconnectWaiters []*Token
	callback          Callback
	strategy          ReconnectStrategy
	reconnectAttempt  int
	keepAlive         *keepAliveMonitor

	connackTimer   func()
	reconnectTimer func()
	forceClose     func()
	flushTimer     func()

	ids     *PacketIDManager
	flow    *FlowController
	limiter *rate.Limiter

	publishes                map[uint16]*pendingPublish
	outbox                   []*pendingPublish
	subscribes               map[uint16]*pendingSubscribe
	subscribeQueue           []*pendingSubscribe
	pendingSubscribeTopics   map[string]*pendingSubscribe
	unsubscribes             map[uint16]*pendingUnsubscribe
	pendingUnsubscribeTopics map[string]*pendingUnsubscribe
	incoming                 map[uint16]*incomingPublish
	serverSubs               map[string]QoS
	subs                     *subscriptionTable
}

// NewClient creates a client. It does not connect; call Connect.
func NewClient(opts ...Option) *Client {
	options := applyOptions(opts...)

	clientID := options.clientID
	if clientID == "" {
		clientID = generateClientID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := options.logger.WithFields(LogFields{LogFieldClientID: clientID})

	c := &Client{
		options:  options,
		clientID: clientID,
		logger:   logger,
		metrics:  NewClientMetrics(options.metrics),
		box:      newMailbox(),
		exec:     newExecutor(logger),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),

		callback: options.callback,
		strategy: options.strategy(),
		ids:      NewPacketIDManager(),
		flow:     NewFlowController(options.maxInflight),
		limiter:  options.limiter(),

		publishes:                make(map[uint16]*pendingPublish),
		subscribes:               make(map[uint16]*pendingSubscribe),
		pendingSubscribeTopics:   make(map[string]*pendingSubscribe),
		unsubscribes:             make(map[uint16]*pendingUnsubscribe),
		pendingUnsubscribeTopics: make(map[string]*pendingUnsubscribe),
		incoming:                 make(map[uint16]*incomingPublish),
		serverSubs:               make(map[string]QoS),
		subs:                     newSubscriptionTable(),
	}

	c.sched = options.scheduler
	if c.sched == nil {
		c.sched = loopScheduler{post: func(f func()) { c.post(f) }}
	}

	go c.run()
	return c
}

// Dial creates a client, connects it to address and waits for the CONNACK.
func Dial(ctx context.Context, address string, opts ...Option) (*Client, error) {
	c := NewClient(opts...)
	if err := c.Connect(address).Wait(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// generateClientID returns a 23 character identifier, the longest MQTT 3.1 accepts.
func generateClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "mqtt311-" + id[:15]
}

func (c *Client) run() {
	defer close(c.loopDone)

	for {
		select {
		case <-c.box.ready():
			for _, f := range c.box.drain() {
				f()
			}
		case <-c.ctx.Done():
			for _, f := range c.box.close() {
				f()
			}
			c.shutdown()
			return
		}
	}
}

func (c *Client) post(f func()) bool {
	return c.box.post(f)
}

// shutdown fails whatever is left once the loop stops.
func (c *Client) shutdown() {
	c.stopConnectionTimers()
	cancelTimer(&c.reconnectTimer)

	if c.conn != nil {
		c.conn.close(ErrClientClosed)
		c.conn = nil
	}
	if t := c.connectToken; t != nil {
		c.connectToken = nil
		t.resolve(ConnectResult{}, ErrClientClosed)
	}

	c.cancelAll(ErrClientClosed)
	for _, w := range c.disconnectWaiters {
		w.complete(nil)
	}
	c.disconnectWaiters = nil
	c.state = stateDisconnected
	c.connected.Store(false)
}

// ClientID returns the client identifier sent in CONNECT.
func (c *Client) ClientID() string {
	return c.clientID
}

// IsConnected reports whether the broker accepted the current connection.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetCallback replaces the connection callback.
func (c *Client) SetCallback(cb Callback) {
	c.post(func() { c.callback = cb })
}

// Connect opens a connection to address: "host", "host:port" or a URL with
// scheme tcp, mqtt, tls, ssl, mqtts, ws, wss, quic or unix. The token
// resolves when the broker answers CONNECT.
//
// If the dial fails and auto reconnect is enabled, a retry is scheduled.
func (c *Client) Connect(address string) *ConnectToken {
	token := newConnectToken()
	if c.closed.Load() {
		token.resolve(ConnectResult{}, ErrClientClosed)
		return token
	}

	addr, err := parseAddress(address)
	if err != nil {
		token.resolve(ConnectResult{}, err)
		return token
	}
	c.connectCalled.Store(true)

	if !c.post(func() { c.connect(addr, token) }) {
		token.resolve(ConnectResult{}, ErrClientClosed)
	}
	return token
}

// Reconnect connects again to the address given to Connect.
func (c *Client) Reconnect() (*ConnectToken, error) {
	if !c.connectCalled.Load() {
		return nil, ErrConnectNotCalled
	}

	token := newConnectToken()
	if c.closed.Load() || !c.post(func() { c.connect(c.addr, token) }) {
		token.resolve(ConnectResult{}, ErrClientClosed)
	}
	return token, nil
}

func (c *Client) connect(addr brokerAddress, token *ConnectToken) {
	if c.state != stateDisconnected {
		token.resolve(ConnectResult{}, ErrAlreadyConnected)
		return
	}

	c.addr = addr
	c.userDisconnect = false
	cancelTimer(&c.reconnectTimer)
	c.dial(token)
}

func (c *Client) dial(token *ConnectToken) {
	dialer, err := c.options.dialerFor(c.addr)
	if err != nil {
		token.resolve(ConnectResult{}, err)
		return
	}

	c.state = stateConnecting
	c.connectToken = token

	target := c.addr.target
	timeout := c.options.connectTimeout
	ctx := c.ctx

	c.logger.Debug("dialing broker", LogFields{LogFieldRemoteAddr: target})

	go func() {
		dialCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		netConn, err := dialer.Dial(dialCtx, target)
		if !c.post(func() { c.dialed(token, netConn, err) }) && netConn != nil {
			_ = netConn.Close()
		}
	}()
}

func (c *Client) dialed(token *ConnectToken, netConn Conn, err error) {
	if c.connectToken != token || c.state != stateConnecting || c.conn != nil {
		if netConn != nil {
			_ = netConn.Close()
		}
		return
	}

	if err != nil {
		c.state = stateDisconnected
		c.connectToken = nil
		c.logger.Warn("dial failed", LogFields{
			LogFieldRemoteAddr: c.addr.target,
			LogFieldError:      err,
		})
		token.resolve(ConnectResult{}, err)

		if c.options.autoReconnect && !c.userDisconnect && !c.closed.Load() {
			c.scheduleReconnect()
		}
		return
	}

	c.connSeq++
	conn := newConnection(c.connSeq, netConn, connectionConfig{
		maxPacketSize: c.options.maxPacketSize,
		writeTimeout:  c.options.writeTimeout,
		post:          func(f func()) { c.post(f) },
		onPacket:      c.handlePacket,
		onClose:       c.handleClosed,
	})
	c.conn = conn
	conn.start(c.ctx)

	if err := c.write(c.options.connectPacket(c.clientID), nil); err != nil {
		conn.close(err)
		return
	}

	if timeout := c.options.connectTimeout; timeout > 0 {
		c.connackTimer = c.sched.schedule(timeout, func() {
			c.connackTimer = nil
			if c.conn == conn && c.state == stateConnecting {
				c.logger.Warn("no CONNACK received", LogFields{LogFieldDelay: timeout})
				conn.close(ErrConnackTimeout)
			}
		})
	}
}

// write encodes p onto the current connection. done, if set, runs on the
// loop once the write finished.
func (c *Client) write(p Packet, done func(error)) error {
	conn := c.conn
	if conn == nil {
		return ErrChannelClosed
	}

	observed := c.observedPacket(p)
	return conn.send(p, func(err error) {
		if err == nil {
			c.metrics.PacketSent(p.Type())
			if c.keepAlive != nil && c.conn == conn {
				c.keepAlive.writeActivity()
			}
			c.observeSent(observed)
		}
		if done != nil {
			done(err)
		}
	})
}

// Disconnect sends DISCONNECT and closes the connection once the broker
// does, or after one second. Pending operations fail with ErrChannelClosed
// and no reconnect is attempted. Calling it again, or while disconnected,
// is harmless.
func (c *Client) Disconnect() *Token {
	token := newToken()
	if !c.post(func() { c.disconnect(token) }) {
		token.complete(nil)
	}
	return token
}

func (c *Client) disconnect(token *Token) {
	c.userDisconnect = true
	cancelTimer(&c.reconnectTimer)

	switch {
	case c.conn != nil:
		c.disconnectWaiters = append(c.disconnectWaiters, token)
		if c.state == stateDisconnecting {
			return
		}

		c.state = stateDisconnecting
		c.connected.Store(false)
		conn := c.conn
		conn.setCause(ErrDisconnected)

		if err := c.write(&DisconnectPacket{}, nil); err != nil {
			conn.close(ErrDisconnected)
			return
		}
		c.forceClose = c.sched.schedule(disconnectGrace, func() {
			c.forceClose = nil
			if c.conn == conn {
				conn.close(ErrDisconnected)
			}
		})

	case c.state == stateConnecting:
		// Still dialing; dialed discards the connection.
		c.state = stateDisconnected
		if t := c.connectToken; t != nil {
			c.connectToken = nil
			t.resolve(ConnectResult{}, ErrDisconnected)
		}
		c.cancelAll(ErrChannelClosed)
		token.complete(nil)

	default:
		// Offline, possibly waiting for a reconnect: operations queued for
		// the next connection are dropped.
		c.cancelAll(ErrChannelClosed)
		token.complete(nil)
	}
}

// Close disconnects, waits for the connection to close and stops the
// client. The client cannot be used afterwards.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	<-c.Disconnect().Done()

	c.cancel()
	<-c.loopDone
	c.exec.stop()
	return nil
}

func (c *Client) handleClosed(seq uint64, cause error) {
	if c.conn == nil || c.conn.seq != seq {
		return
	}

	remote := c.conn.remoteAddr()
	c.conn = nil
	wasConnected := c.state == stateConnected
	c.state = stateDisconnected
	c.connected.Store(false)
	c.stopConnectionTimers()

	explicit := c.userDisconnect
	refused := c.refused
	c.refused = false

	if t := c.connectToken; t != nil {
		c.connectToken = nil
		t.resolve(ConnectResult{}, cause)
	}

	c.cancelAll(ErrChannelClosed)
	clear(c.serverSubs)
	c.subs.clear()
	c.ids.Reset()

	for _, w := range c.disconnectWaiters {
		w.complete(nil)
	}
	c.disconnectWaiters = nil

	if explicit {
		c.logger.Info("disconnected", LogFields{LogFieldRemoteAddr: remote})
		c.emit(NewDisconnectError(false))
		return
	}
	if refused {
		return
	}

	c.logger.Warn("connection lost", LogFields{
		LogFieldRemoteAddr: remote,
		LogFieldError:      cause,
		"was_connected":    wasConnected,
	})
	c.metrics.ConnectionLost()

	lost := NewConnectionLostError(cause)
	c.notify(func(cb Callback) { cb.ConnectionLost(lost) })
	c.emit(lost)

	if c.options.autoReconnect && !c.closed.Load() {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	delay := c.strategy.NextDelay()
	c.reconnectAttempt++
	attempt := c.reconnectAttempt

	cancelTimer(&c.reconnectTimer)
	c.reconnectTimer = c.sched.schedule(delay, c.reconnectNow)
	c.metrics.ReconnectScheduled()

	c.logger.Info("reconnect scheduled", LogFields{
		LogFieldAttempt: attempt,
		LogFieldDelay:   delay,
	})
	c.emit(NewReconnectEvent(attempt, delay, func() {
		c.post(func() { cancelTimer(&c.reconnectTimer) })
	}))
}

func (c *Client) reconnectNow() {
	c.reconnectTimer = nil
	if c.state != stateDisconnected || c.userDisconnect || c.closed.Load() {
		return
	}
	c.dial(newConnectToken())
}

func (c *Client) handleConnack(p *ConnackPacket) {
	cancelTimer(&c.connackTimer)

	token := c.connectToken
	c.connectToken = nil
	result := ConnectResult{
		Accepted:       p.ReturnCode == ConnectAccepted,
		ReturnCode:     p.ReturnCode,
		SessionPresent: p.SessionPresent,
	}

	if !result.Accepted {
		err := NewConnectError(p.ReturnCode)
		c.refused = true
		c.logger.Warn("connection refused", LogFields{LogFieldReturnCode: p.ReturnCode.String()})
		if token != nil {
			token.resolve(result, err)
		}
		c.emit(err)
		c.conn.close(err)
		return
	}

	reconnect := c.everConnected
	c.everConnected = true
	c.state = stateConnected
	c.connected.Store(true)
	c.reconnectAttempt = 0
	c.metrics.Connected()

	c.logger.Info("connected", LogFields{
		LogFieldRemoteAddr: c.conn.remoteAddr(),
		"session_present":  p.SessionPresent,
	})

	if c.options.keepAlive > 0 {
		conn := c.conn
		c.keepAlive = newKeepAliveMonitor(
			time.Duration(c.options.keepAlive)*time.Second,
			c.sched,
			func() {
				c.logger.Debug("sending PINGREQ", nil)
				_ = c.write(&PingreqPacket{}, nil)
			},
			func() { c.keepAliveExpired(conn) },
		)
		c.keepAlive.start()
	}

	if token != nil {
		token.resolve(result, nil)
	}

	c.flushSubscribes()
	c.flush()

	if reconnect {
		c.notify(func(cb Callback) { cb.OnSuccessfulReconnect() })
	}
	c.emit(NewConnectedEvent(p.SessionPresent, reconnect))
}

func (c *Client) keepAliveExpired(conn *connection) {
	if c.conn != conn {
		return
	}

	c.logger.Warn("keep-alive timeout", nil)
	conn.setCause(ErrKeepAliveTimeout)
	if err := c.write(&DisconnectPacket{}, func(error) { conn.close(ErrKeepAliveTimeout) }); err != nil {
		conn.close(ErrKeepAliveTimeout)
	}
}

func (c *Client) stopConnectionTimers() {
	if c.keepAlive != nil {
		c.keepAlive.stop()
		c.keepAlive = nil
	}
	cancelTimer(&c.connackTimer)
	cancelTimer(&c.flushTimer)
	cancelTimer(&c.forceClose)
}

func cancelTimer(cancel *func()) {
	if *cancel != nil {
		(*cancel)()
		*cancel = nil
	}
}

// emit sends event to the OnEvent handler on the handler goroutine.
func (c *Client) emit(event error) {
	if c.options.onEvent == nil {
		return
	}
	handler := c.options.onEvent
	c.exec.submit(func() { handler(c, event) })
}

// notify runs f with the current callback on the handler goroutine.
func (c *Client) notify(f func(cb Callback)) {
	cb := c.callback
	if cb == nil {
		return
	}
	c.exec.submit(func() { f(cb) })
}

func (c *Client) observeReceived(p Packet) {
	obs, ok := c.callback.(PacketObserver)
	if !ok {
		return
	}
	c.exec.submit(func() { obs.PacketReceived(p) })
}

// observedPacket returns what PacketObserver.PacketSent will see, or nil
// without an observer. Outbound payloads live in pooled buffers, so
// PUBLISH packets are copied.
func (c *Client) observedPacket(p Packet) Packet {
	if _, ok := c.callback.(PacketObserver); !ok {
		return nil
	}
	if pub, isPublish := p.(*PublishPacket); isPublish {
		clone := *pub
		clone.Payload = bytes.Clone(pub.Payload)
		return &clone
	}
	return p
}

func (c *Client) observeSent(p Packet) {
	obs, ok := c.callback.(PacketObserver)
	if !ok || p == nil {
		return
	}
	c.exec.submit(func() { obs.PacketSent(p) })
}
